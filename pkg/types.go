package pkg

import (
	"time"

	"clinical-intake/internal/intake"
)

// BasicInfo is the biodata and vital signs captured alongside the history.
// Every field is free text as entered by the clinician.
type BasicInfo struct {
	Name string `json:"name,omitempty"`
	Age  string `json:"age,omitempty"`
	Sex  string `json:"sex,omitempty"`
	Temp string `json:"temp,omitempty"`
	BP   string `json:"bp,omitempty"`
	RR   string `json:"rr,omitempty"`
	SpO2 string `json:"spo2,omitempty"`
	HR   string `json:"hr,omitempty"`
}

// StoryRequest asks for a narrative to be written from a grouped record.
// Answers is a flat fallback used when Structured is empty.
type StoryRequest struct {
	Structured intake.GroupedRecord     `json:"structured"`
	Department string                   `json:"department,omitempty"`
	BasicInfo  *BasicInfo               `json:"basicInfo,omitempty"`
	Answers    map[string]intake.Answer `json:"answers,omitempty"`
}

// Story is a generated narrative.
type Story struct {
	Story       string    `json:"story"`
	Department  string    `json:"department"`
	GeneratedAt time.Time `json:"generatedAt"`
	Model       string    `json:"model,omitempty"`
	RecordID    string    `json:"record_id,omitempty"`
}

// Record is a finalized intake, persisted so narrative generation can be
// retried without replaying the session.
type Record struct {
	ID         string               `json:"id"`
	SessionID  string               `json:"session_id"`
	Department string               `json:"department"`
	BasicInfo  *BasicInfo           `json:"basic_info,omitempty"`
	Structured intake.GroupedRecord `json:"structured"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Narrative is a stored story for a record. A record may have several; the
// latest one is shown.
type Narrative struct {
	ID         int64     `json:"id"`
	RecordID   string    `json:"record_id"`
	Department string    `json:"department"`
	Story      string    `json:"story"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordView is returned by the record lookup endpoint.
type RecordView struct {
	Record    *Record    `json:"record"`
	Narrative *Narrative `json:"narrative,omitempty"`
}

// CreateSessionRequest opens a new intake session.
type CreateSessionRequest struct {
	Department string `json:"department"`
}

// ComplaintRequest selects a presenting complaint.
type ComplaintRequest struct {
	Name string `json:"name"`
}

// AnswerRequest answers the current question. On a multi-choice question the
// value is toggled.
type AnswerRequest struct {
	Value string `json:"value"`
}

// RawAnswerRequest records an answer outside the structured flow.
type RawAnswerRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FinalizeRequest closes a session and persists its record.
type FinalizeRequest struct {
	BasicInfo *BasicInfo `json:"basicInfo,omitempty"`
}

// FinalizeResponse carries the persisted record id so the client can request
// (and retry) narrative generation.
type FinalizeResponse struct {
	RecordID   string               `json:"record_id"`
	Structured intake.GroupedRecord `json:"structured"`
}

// SessionView is the client-facing snapshot of a session.
type SessionView struct {
	Session  *intake.Session  `json:"session"`
	Current  *intake.Question `json:"current,omitempty"`
	Default  *intake.Answer   `json:"default,omitempty"`
	Progress float64          `json:"progress"`
}

// CatalogResponse lists the complaints a department should be offered.
type CatalogResponse struct {
	Department string   `json:"department,omitempty"`
	Suggested  []string `json:"suggested"`
	Known      []string `json:"known"`
}

// StoryEvent is pushed to stream subscribers when a narrative is saved.
type StoryEvent struct {
	RecordID string `json:"record_id"`
}
