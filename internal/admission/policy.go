// Package admission decides whether a submission attempt may be stored.
package admission

import (
	"fmt"
	"time"

	"github.com/JakeFAU/assignment-webapp/internal/domain"
)

// Rejections. Both satisfy errors.Is(err, domain.ErrPolicyRejected).
var (
	ErrDeadlinePassed    = fmt.Errorf("%w: deadline passed", domain.ErrPolicyRejected)
	ErrAttemptsExhausted = fmt.Errorf("%w: attempts exhausted", domain.ErrPolicyRejected)
)

// Request is the state snapshot a decision is made on.
type Request struct {
	Deadline    time.Time
	MaxAttempts int
	PriorCount  int
	Now         time.Time
}

// Evaluate returns nil to admit the attempt, or one of the rejection errors.
// The deadline is checked first, so it wins when both limits are hit.
func Evaluate(req Request) error {
	if !req.Now.Before(req.Deadline) {
		return ErrDeadlinePassed
	}
	if req.PriorCount >= req.MaxAttempts {
		return ErrAttemptsExhausted
	}
	return nil
}
