package job

import "errors"

var (
	// ErrValidation is returned for malformed requests, before any state changes.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound is returned when a plan or itinerary does not exist or belongs
	// to another owner.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned for a duplicate or concurrent generation attempt.
	ErrConflict = errors.New("conflict")
)

// SynthesisError is a generation failure that has been recorded on the plan.
type SynthesisError struct {
	PlanID  string
	Message string
	Err     error
}

func (e *SynthesisError) Error() string {
	if e.Message == "" {
		return "itinerary generation failed"
	}
	return e.Message
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
