package pipeline

import (
	"fmt"

	"report-intake-pipeline/models"
)

// ErrorKind classifies why a report was rejected.
type ErrorKind string

const (
	// KindValidation is a malformed submission the user can correct.
	KindValidation ErrorKind = "validation"
	// KindClassificationUnavailable means no category could be determined.
	KindClassificationUnavailable ErrorKind = "classification_unavailable"
	// KindPolicyViolation covers abuse, image mismatch and duplicates.
	KindPolicyViolation ErrorKind = "policy_violation"
	// KindCollaboratorFailure marks a vision, image fetch or store failure.
	// These resolve to a fallback and never reject a report by themselves.
	KindCollaboratorFailure ErrorKind = "collaborator_failure"
	// KindInternal is any unexpected failure inside the pipeline.
	KindInternal ErrorKind = "internal"
)

// Rejection is the error form of a rejected decision.
type Rejection struct {
	Kind     ErrorKind
	Code     models.ReasonCode
	Message  string
	Category models.Category
	Err      error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s (%s): %v", r.Message, r.Code, r.Err)
	}
	return fmt.Sprintf("%s (%s)", r.Message, r.Code)
}

func (r *Rejection) Unwrap() error { return r.Err }

func reject(kind ErrorKind, code models.ReasonCode, message string, category models.Category) *Rejection {
	return &Rejection{Kind: kind, Code: code, Message: message, Category: category}
}

func internalError(err error) *Rejection {
	return &Rejection{
		Kind:     KindInternal,
		Code:     models.ReasonProcessingError,
		Message:  "Processing error",
		Category: models.CategoryOther,
		Err:      err,
	}
}
