package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/adherence-portal/internal/adherence"
	"github.com/jwalitptl/adherence-portal/internal/model"
)

// flexID accepts identifiers sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

func parseTime(s string) time.Time {
	t, _ := adherence.ParseDate(s)
	return t
}

func parseOptionalTime(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, ok := adherence.ParseDate(*s)
	if !ok {
		return nil
	}
	return &t
}

type loginResponse struct {
	IsDoctor bool `json:"is_doctor"`
}

type checkLoginResponse struct {
	IsLoggedIn bool `json:"is_logged_in"`
	IsDoctor   bool `json:"is_doctor"`
}

type doseDTO struct {
	Medication string `json:"medication"`
	Taken      bool   `json:"taken"`
}

type adherenceDayDTO struct {
	Date    string    `json:"date"`
	Content []doseDTO `json:"content"`
}

type adherenceResponse struct {
	Adherence []adherenceDayDTO `json:"adherence"`
	PatientID flexID            `json:"patientid"`
}

// toRecords drops days whose date cannot be parsed.
func toRecords(days []adherenceDayDTO) []adherence.Record {
	out := make([]adherence.Record, 0, len(days))
	for _, d := range days {
		date, ok := adherence.ParseDate(d.Date)
		if !ok {
			continue
		}
		doses := make([]adherence.Dose, len(d.Content))
		for i, c := range d.Content {
			doses[i] = adherence.Dose{MedicationName: c.Medication, Taken: c.Taken}
		}
		out = append(out, adherence.Record{Date: date, Doses: doses})
	}
	return out
}

type patientDTO struct {
	PatientID flexID            `json:"patientid"`
	Name      string            `json:"name"`
	DOB       string            `json:"dob"`
	Sex       string            `json:"sex"`
	Height    float64           `json:"height"`
	Weight    float64           `json:"weight"`
	Adherence []adherenceDayDTO `json:"adherence"`
}

func (p patientDTO) toPatient() *model.Patient {
	return &model.Patient{
		ID:     string(p.PatientID),
		Name:   p.Name,
		DOB:    parseTime(p.DOB),
		Sex:    p.Sex,
		Height: p.Height,
		Weight: p.Weight,
	}
}

func (p patientDTO) toSummary() model.PatientSummary {
	return model.PatientSummary{
		ID:        string(p.PatientID),
		Name:      p.Name,
		DOB:       parseTime(p.DOB),
		Sex:       p.Sex,
		Adherence: toRecords(p.Adherence),
	}
}

func toSummaries(in []patientDTO) []model.PatientSummary {
	out := make([]model.PatientSummary, len(in))
	for i, p := range in {
		out[i] = p.toSummary()
	}
	return out
}

type medicationDTO struct {
	ActiveID           int64   `json:"activeid"`
	PatientID          flexID  `json:"patientid"`
	Name               string  `json:"name"`
	Description        string  `json:"description"`
	Dosage             float64 `json:"dosage"`
	Frequency          int     `json:"frequency"`
	Duration           int     `json:"duration"`
	Quantity           int     `json:"quantity"`
	RemainingQuantity  int     `json:"remaining_quantity"`
	IsFlexibleDuration bool    `json:"is_flexible_duration"`
	DateCollected      *string `json:"date_collected"`
	LastTaken          *string `json:"last_taken"`
}

func (m medicationDTO) toMedication() model.Medication {
	return model.Medication{
		ActiveID:           m.ActiveID,
		PatientID:          string(m.PatientID),
		Name:               m.Name,
		Description:        m.Description,
		Dosage:             m.Dosage,
		Frequency:          m.Frequency,
		Duration:           m.Duration,
		Quantity:           m.Quantity,
		RemainingQuantity:  m.RemainingQuantity,
		IsFlexibleDuration: m.IsFlexibleDuration,
		DateCollected:      parseOptionalTime(m.DateCollected),
		LastTaken:          parseOptionalTime(m.LastTaken),
	}
}

type logDTO struct {
	LogsID    int64  `json:"logsid"`
	PatientID flexID `json:"patientid"`
	Date      string `json:"date"`
	Content   string `json:"content"`
}

type historyDTO struct {
	HistoryID int64  `json:"historyid"`
	PatientID flexID `json:"patientid"`
	Date      string `json:"date"`
	Notes     string `json:"notes"`
}
