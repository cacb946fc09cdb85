package models

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a DomainRecord.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// IsTerminal reports whether an analysis cycle has finished for the record.
// Unrecognized values are not terminal and are handled like pending.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// DomainRecord is the persisted analysis state of one domain.
//
// Invariants:
//   - Domain is lowercased and immutable after creation
//   - Status moves pending → completed or pending → error; a finished record
//     only returns to pending through Store.Reopen
//   - ReputationRaw and RegistrationRaw are nil while pending
//   - LastScanAt is nil until the first analysis finishes
type DomainRecord struct {
	Domain          string          `json:"domain"`
	Status          Status          `json:"status"`
	RegistrationRaw json.RawMessage `json:"whois_data"`
	ReputationRaw   json.RawMessage `json:"virustotal_data"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	LastScanAt      *time.Time      `json:"last_scan_date"`
}

// AnalysisResult is what one analysis run writes back to the store.
type AnalysisResult struct {
	Status          Status
	ReputationRaw   json.RawMessage
	RegistrationRaw json.RawMessage
	ScannedAt       time.Time
}

// ErrorPayload builds the placeholder stored in both payload columns when an
// analysis fails. Only the failure category is recorded.
func ErrorPayload(category string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": category})
	return b
}

// Summary is the canonical, display-ready reduction of both provider
// payloads. It is derived on every read and never persisted.
type Summary struct {
	Domain string       `json:"domain"`
	VT     VTSummary    `json:"vt_summary"`
	Whois  WhoisSummary `json:"whois_summary"`
}

type VTSummary struct {
	Malicious        int64  `json:"malicious"`
	Harmless         int64  `json:"harmless"`
	Suspicious       int64  `json:"suspicious"`
	Undetected       int64  `json:"undetected"`
	Reputation       *int64 `json:"reputation,omitempty"`
	Rank             *int64 `json:"rank,omitempty"`
	TLD              string `json:"tld,omitempty"`
	CreationDate     string `json:"creation_date,omitempty"`
	ExpirationDate   string `json:"expiration_date,omitempty"`
	LastAnalysisDate string `json:"last_analysis_date,omitempty"`
}

type WhoisSummary struct {
	CreatedDate       string `json:"createdDate,omitempty"`
	ExpiresDate       string `json:"expiresDate,omitempty"`
	Registrar         string `json:"registrar,omitempty"`
	RegistrantCountry string `json:"registrant_country,omitempty"`
	Organization      string `json:"organization,omitempty"`
}

// Source identifies what triggered an analysis run.
type Source string

const (
	SourceQueue     Source = "queue"
	SourceScheduler Source = "scheduler"
)
