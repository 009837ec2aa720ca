package model

import "time"

// AccessEvent records one request that touched patient data.
type AccessEvent struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	RequestID string    `json:"request_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	IsDoctor  bool      `json:"is_doctor"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	PatientID string    `json:"patient_id,omitempty"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	ClientIP  string    `json:"client_ip"`
}

const (
	// Action types
	AuditActionRead   = "read"
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionLogin  = "login"
	AuditActionLogout = "logout"

	// Resource types
	AuditResourcePatient    = "patient"
	AuditResourceAdherence  = "adherence"
	AuditResourceMedication = "medication"
	AuditResourceSession    = "session"
)

// AuditChannel is the pub/sub channel access events are published on.
const AuditChannel = "portal.audit"
