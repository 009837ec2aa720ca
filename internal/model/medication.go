package model

import "time"

// Medication is an active prescription for a patient.
type Medication struct {
	ActiveID           int64      `json:"active_id"`
	PatientID          string     `json:"patient_id"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Dosage             float64    `json:"dosage"`
	Frequency          int        `json:"frequency"`
	Duration           int        `json:"duration"`
	Quantity           int        `json:"quantity"`
	RemainingQuantity  int        `json:"remaining_quantity"`
	IsFlexibleDuration bool       `json:"is_flexible_duration"`
	DateCollected      *time.Time `json:"date_collected"`
	LastTaken          *time.Time `json:"last_taken"`
}

// MedicationSummary is a catalog entry a doctor can prescribe.
type MedicationSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type PrescribeRequest struct {
	Name               string  `json:"name" form:"name" binding:"required,max=128"`
	Dosage             float64 `json:"dosage" form:"dosage" binding:"required,gt=0"`
	Frequency          int     `json:"frequency" form:"frequency" binding:"required,gt=0,lte=24"`
	Quantity           int     `json:"quantity" form:"quantity" binding:"required,gt=0"`
	IsFlexibleDuration bool    `json:"is_flexible_duration" form:"is_flexible_duration"`
	// Duration in days; required unless the duration is flexible.
	Duration int `json:"duration" form:"duration" binding:"required_if=IsFlexibleDuration false,gte=0"`
}

// PickupURI binds the :activeId path parameter.
type PickupURI struct {
	ActiveID int64 `uri:"activeId" binding:"required,gt=0"`
}
