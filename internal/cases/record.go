// Package cases defines the canonical case record and the total mapping from
// raw store rows into it.
package cases

import (
	"fmt"
	"strings"
	"time"

	"github.com/Ashfaaq98/imaging-case-console/internal/derive"
)

// Status is the review state of a case.
type Status string

const (
	StatusOpen            Status = "open"
	StatusInProgress      Status = "in-progress"
	StatusReviewCompleted Status = "review-completed"
	// StatusRejected is a legacy state kept as-is when read.
	StatusRejected Status = "rejected"
)

// Statuses lists the states an operator can set.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusReviewCompleted}

// ParseStatus normalizes a stored status. Legacy synonyms are mapped onto the
// current names and anything unrecognised reads as open.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in-progress", "in_progress", "in progress", "in_review", "in-review":
		return StatusInProgress
	case "review-completed", "review_completed", "completed":
		return StatusReviewCompleted
	case "rejected":
		return StatusRejected
	default:
		return StatusOpen
	}
}

// ValidateStatus accepts only the states an operator may write.
func ValidateStatus(s string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, st := range Statuses {
		if string(st) == v {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid status %q (want open, in-progress or review-completed)", s)
}

// Source tells which of the two dashboard views a case belongs to.
type Source string

const (
	SourceManual Source = "manual"
	SourceSystem Source = "system"
)

// Unassigned is the assignee filter value that matches cases with no assignee.
const Unassigned = "unassigned"

// DefaultSeverity is used when a row carries no usable severity rating.
const DefaultSeverity = 5

// Record is the canonical in-memory form of one imaging case.
type Record struct {
	ID               string          `json:"id"`
	OwnerID          string          `json:"ownerId,omitempty"`
	PatientName      string          `json:"patientName"`
	PatientID        string          `json:"patientId"`
	Modality         string          `json:"modality,omitempty"`
	BodyPart         string          `json:"bodyPart,omitempty"`
	ImageType        string          `json:"imageType"`
	FileName         string          `json:"fileName,omitempty"`
	Status           Status          `json:"status"`
	SeverityRating   int             `json:"severityRating"`
	Priority         derive.Priority `json:"priority"`
	AIConfidence     int             `json:"aiConfidence"`
	Findings         string          `json:"findings,omitempty"`
	Source           Source          `json:"source"`
	AssignedTo       string          `json:"assignedTo,omitempty"`
	RadiologistNotes string          `json:"radiologistNotes,omitempty"`
	Comment          string          `json:"comment,omitempty"`
	ImageData        string          `json:"imageData,omitempty"`
	ImageAge         string          `json:"imageAge"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	ProcessedAt      time.Time       `json:"processedAt,omitempty"`

	// explicitSource is the stored source column, kept so a patch to the
	// owner or file name can re-derive Source.
	explicitSource string
}

// ConfidenceBand returns the low/medium/high band of the canonical confidence.
func (r Record) ConfidenceBand() string {
	return derive.ConfidenceBand(r.AIConfidence)
}

// Assignee returns the assignee, or Unassigned when there is none.
func (r Record) Assignee() string {
	if r.AssignedTo == "" {
		return Unassigned
	}
	return r.AssignedTo
}
