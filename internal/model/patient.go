package model

import (
	"time"

	"github.com/jwalitptl/adherence-portal/internal/adherence"
)

// DOBLayout is how search results and roster rows print a date of birth.
const DOBLayout = "01/02/2006"

type Patient struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	DOB    time.Time `json:"dob"`
	Sex    string    `json:"sex"`
	Height float64   `json:"height"`
	Weight float64   `json:"weight"`
}

// PatientSummary is a roster row as the patient API returns it.
type PatientSummary struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	DOB       time.Time          `json:"dob"`
	Sex       string             `json:"sex"`
	Adherence []adherence.Record `json:"-"`
}

// RosterEntry is a summary with its compact adherence strip.
type RosterEntry struct {
	PatientSummary
	DOBDisplay    string                 `json:"dob_display"`
	MiniAdherence []adherence.DaySummary `json:"mini_adherence"`
}

type SearchResult struct {
	ID        string `json:"id"`
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

type PatientLog struct {
	ID        int64     `json:"id"`
	PatientID string    `json:"patient_id"`
	Date      time.Time `json:"date"`
	Content   string    `json:"content"`
}

type PatientHistory struct {
	ID        int64     `json:"id"`
	PatientID string    `json:"patient_id"`
	Date      time.Time `json:"date"`
	Notes     string    `json:"notes"`
}

// AdherenceGrid carries the grid and its rendered view for one patient.
type AdherenceGrid struct {
	PatientID string         `json:"patient_id"`
	Grid      adherence.Grid `json:"grid"`
	View      adherence.View `json:"view"`
}

// PatientPage aggregates everything the patient screen shows.
type PatientPage struct {
	Patient     *Patient         `json:"patient"`
	Adherence   AdherenceGrid    `json:"adherence"`
	Medications []Medication     `json:"medications"`
	Logs        []PatientLog     `json:"logs"`
	History     []PatientHistory `json:"history"`
}

type AddPatientRequest struct {
	Username string  `json:"username" form:"username" binding:"required,max=64"`
	Name     string  `json:"name" form:"name" binding:"required,max=128"`
	DOB      string  `json:"dob" form:"dob" binding:"required,datetime=2006-01-02"`
	Sex      string  `json:"sex" form:"sex" binding:"required,max=32"`
	Height   float64 `json:"height" form:"height" binding:"required,gt=0,lte=300"`
	Weight   float64 `json:"weight" form:"weight" binding:"required,gt=0,lte=700"`
}

// BirthDate parses the validated DOB field.
func (r AddPatientRequest) BirthDate() (time.Time, error) {
	return time.Parse("2006-01-02", r.DOB)
}

// PatientURI binds the :id path parameter.
type PatientURI struct {
	ID string `uri:"id" binding:"required,max=64,printascii"`
}

// AdherenceQuery binds the optional window length.
type AdherenceQuery struct {
	Days int `form:"days" binding:"omitempty,gte=1,lte=366"`
}

type SearchQuery struct {
	Name string `form:"name" binding:"max=128"`
}
