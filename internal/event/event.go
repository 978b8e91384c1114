// Package event defines the submission event exchanged between the API and
// the archive consumer.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Subject is attached to every published submission event.
const Subject = "New Submission Notification"

// ErrMalformed marks events that cannot be processed at all.
var ErrMalformed = errors.New("malformed submission event")

// SubmissionEvent is the payload published after a submission is admitted.
type SubmissionEvent struct {
	SubmissionID   string `json:"submission_id"`
	AssignmentName string `json:"assignment_name"`
	UserEmail      string `json:"user_email"`
	SubmissionURL  string `json:"submission_url"`
	Attempt        string `json:"attempt"`
}

// Validate checks that every field is present and the attempt reads "k/n".
func (e SubmissionEvent) Validate() error {
	fields := []struct{ name, value string }{
		{"submission_id", e.SubmissionID},
		{"assignment_name", e.AssignmentName},
		{"user_email", e.UserEmail},
		{"submission_url", e.SubmissionURL},
		{"attempt", e.Attempt},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformed, strings.Join(missing, ", "))
	}
	if _, _, err := ParseAttempt(e.Attempt); err != nil {
		return err
	}
	return nil
}

// Encode validates and marshals the event.
func (e SubmissionEvent) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal submission event: %w", err)
	}
	return data, nil
}

// Decode unmarshals and validates a payload. Every failure wraps ErrMalformed.
func Decode(data []byte) (SubmissionEvent, error) {
	var e SubmissionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return SubmissionEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := e.Validate(); err != nil {
		return SubmissionEvent{}, err
	}
	return e, nil
}

// FormatAttempt renders the attempt descriptor.
func FormatAttempt(k, n int) string {
	return fmt.Sprintf("%d/%d", k, n)
}

// ParseAttempt splits "k/n" into positive integers. k may exceed n when
// concurrent submissions raced past admission.
func ParseAttempt(s string) (int, int, error) {
	left, right, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("%w: attempt %q", ErrMalformed, s)
	}
	k, errK := strconv.Atoi(left)
	n, errN := strconv.Atoi(right)
	if errK != nil || errN != nil || k < 1 || n < 1 {
		return 0, 0, fmt.Errorf("%w: attempt %q", ErrMalformed, s)
	}
	return k, n, nil
}
