package model

import "errors"

type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"required,max=128"`
	Password string `json:"password" form:"password" binding:"required,max=256"`
}

// SessionInfo is what the UI learns about the current login.
type SessionInfo struct {
	LoggedIn  bool   `json:"is_logged_in"`
	Username  string `json:"username,omitempty"`
	IsDoctor  bool   `json:"is_doctor"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// Auth errors
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
)
