package handler

import (
	"domainintel/internal/analysis/models"
	"domainintel/internal/analysis/service"
)

const (
	messageCached    = "Domain already analyzed. Returning cached result."
	messageSubmitted = "Domain submitted for analysis"
)

// SubmissionResponse is returned by both submission endpoints. Message is
// only set for POST.
type SubmissionResponse struct {
	Message  string          `json:"message,omitempty"`
	Domain   string          `json:"domain"`
	Status   string          `json:"status"`
	Analysis *models.Summary `json:"analysis,omitempty"`
}

func fromSubmission(sub *service.Submission) SubmissionResponse {
	return SubmissionResponse{
		Domain:   sub.Domain,
		Status:   sub.Status,
		Analysis: sub.Summary,
	}
}

// HealthResponse reports each dependency as "ok" or "unavailable".
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
