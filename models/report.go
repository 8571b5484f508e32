package models

import (
	"strings"
	"time"
)

// AnonymousUser is the user id recorded for reports submitted without one.
const AnonymousUser = "anon"

// Report is a citizen submission as received by the transport layer.
type Report struct {
	ReportID    string   `json:"report_id,omitempty"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	UserID      string   `json:"user_id,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// HasImage reports whether the report carries a non-blank image URL.
func (r *Report) HasImage() bool {
	return strings.TrimSpace(r.ImageURL) != ""
}

// HasLocation reports whether both coordinates are present.
func (r *Report) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// UserOrAnonymous returns the submitting user, or AnonymousUser.
func (r *Report) UserOrAnonymous() string {
	if id := strings.TrimSpace(r.UserID); id != "" {
		return id
	}
	return AnonymousUser
}

// ClassificationResult is the single externally observable outcome of the
// intake pipeline. Urgency and Priority are only set on accepted reports.
type ClassificationResult struct {
	ReportID   string     `json:"report_id"`
	Accept     bool       `json:"accept"`
	Status     Status     `json:"status"`
	Category   Category   `json:"category"`
	Department Category   `json:"department"`
	Urgency    Urgency    `json:"urgency,omitempty"`
	Priority   Priority   `json:"priority,omitempty"`
	Reason     string     `json:"reason"`
	ReasonCode ReasonCode `json:"reason_code"`
}

// DecisionRecord is what gets handed to the persistence collaborators: the
// original report merged with the decision fields.
type DecisionRecord struct {
	ReportID          string     `json:"report_id"`
	UserID            string     `json:"user_id"`
	Description       string     `json:"description"`
	SubmittedCategory string     `json:"submitted_category,omitempty"`
	ImageURL          string     `json:"image_url,omitempty"`
	Latitude          *float64   `json:"latitude,omitempty"`
	Longitude         *float64   `json:"longitude,omitempty"`
	Accept            bool       `json:"accept"`
	Status            Status     `json:"status"`
	Category          Category   `json:"category"`
	Department        Category   `json:"department"`
	Urgency           Urgency    `json:"urgency,omitempty"`
	Priority          Priority   `json:"priority,omitempty"`
	Reason            string     `json:"reason"`
	ReasonCode        ReasonCode `json:"reason_code"`
	RulesVersion      string     `json:"rules_version"`
	DecidedAt         time.Time  `json:"decided_at"`
}

// NewDecisionRecord merges a report with its decision.
func NewDecisionRecord(report Report, result ClassificationResult, rulesVersion string, decidedAt time.Time) DecisionRecord {
	return DecisionRecord{
		ReportID:          result.ReportID,
		UserID:            report.UserOrAnonymous(),
		Description:       report.Description,
		SubmittedCategory: report.Category,
		ImageURL:          report.ImageURL,
		Latitude:          report.Latitude,
		Longitude:         report.Longitude,
		Accept:            result.Accept,
		Status:            result.Status,
		Category:          result.Category,
		Department:        result.Department,
		Urgency:           result.Urgency,
		Priority:          result.Priority,
		Reason:            result.Reason,
		ReasonCode:        result.ReasonCode,
		RulesVersion:      rulesVersion,
		DecidedAt:         decidedAt,
	}
}
