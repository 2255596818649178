package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoClassNames            = errors.New("class names cannot be empty")
	ErrModelNotFound           = errors.New("model file not found")
	ErrImageNotFound           = errors.New("image file not found")
	ErrImageDecode             = errors.New("image cannot be decoded")
	ErrInference               = errors.New("inference failed")
	ErrUnknownCrop             = errors.New("unknown crop")
	ErrIdentificationExhausted = errors.New("could not identify crop or disease with any available model")
)

// Attempt is the outcome of one candidate model during identification.
type Attempt struct {
	Crop       string
	Prediction Prediction
	Err        error
}

func (a Attempt) OK() bool {
	return a.Err == nil
}

// Reason describes the attempt for logs and error bodies. A successful attempt
// only shows up there when the selector turned it down.
func (a Attempt) Reason() string {
	if a.Err != nil {
		return a.Err.Error()
	}
	return fmt.Sprintf("rejected by selector (%s, %.2f%%)", a.Prediction.Label, a.Prediction.Confidence)
}

// IdentificationError is returned when no candidate produced an accepted
// prediction. Cause is set when every candidate failed on the image itself
// (missing or undecodable), which no other model could have avoided.
type IdentificationError struct {
	Attempts []Attempt
	Cause    error
}

func (e *IdentificationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrIdentificationExhausted.Error())
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(a.Crop)
		b.WriteString(": ")
		b.WriteString(a.Reason())
	}
	return b.String()
}

func (e *IdentificationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrIdentificationExhausted}
	}
	return []error{ErrIdentificationExhausted, e.Cause}
}

// imageCause returns the first attempt error that concerns the image rather
// than a model.
func imageCause(attempts []Attempt) error {
	for _, a := range attempts {
		if errors.Is(a.Err, ErrImageNotFound) || errors.Is(a.Err, ErrImageDecode) {
			return a.Err
		}
	}
	return nil
}
