// Package submission admits, stores and announces assignment submissions.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/assignment-webapp/internal/admission"
	"github.com/JakeFAU/assignment-webapp/internal/auth"
	"github.com/JakeFAU/assignment-webapp/internal/domain"
	"github.com/JakeFAU/assignment-webapp/internal/event"
	"github.com/JakeFAU/assignment-webapp/internal/metrics"
	"github.com/JakeFAU/assignment-webapp/internal/store"
)

// Publisher emits submission events.
type Publisher interface {
	Publish(ctx context.Context, ev event.SubmissionEvent) (string, error)
}

// IDGenerator issues submission IDs.
type IDGenerator interface {
	NewID() (uuid.UUID, error)
}

// Clock supplies "now" for admission decisions.
type Clock interface {
	Now() time.Time
}

// Service handles the submission endpoint.
type Service struct {
	repo      store.SubmissionRepository
	publisher Publisher
	ids       IDGenerator
	clock     Clock
	logger    *zap.Logger
}

// NewService constructs a Service.
func NewService(repo store.SubmissionRepository, publisher Publisher, ids IDGenerator, clock Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, publisher: publisher, ids: ids, clock: clock, logger: logger}
}

// Submit admits and stores one attempt, then publishes its event. Publish
// failures after commit are logged and do not fail the call.
func (s *Service) Submit(ctx context.Context, rawAssignmentID string, caller auth.Principal, submissionURL string) (domain.Submission, error) {
	assignmentID, err := uuid.Parse(rawAssignmentID)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("invalid assignment id %q: %w", rawAssignmentID, domain.ErrValidation)
	}
	submissionURL = strings.TrimSpace(submissionURL)
	if submissionURL == "" {
		return domain.Submission{}, fmt.Errorf("submission_url is required: %w", domain.ErrValidation)
	}
	id, err := s.ids.NewID()
	if err != nil {
		return domain.Submission{}, err
	}

	now := s.clock.Now()
	receipt, err := s.repo.SubmitAttempt(ctx, store.AttemptRequest{
		SubmissionID:  id,
		AccountID:     caller.AccountID,
		AssignmentID:  assignmentID,
		SubmissionURL: submissionURL,
		At:            now,
	}, func(a domain.Assignment, prior int) error {
		return admission.Evaluate(admission.Request{
			Deadline:    a.Deadline,
			MaxAttempts: a.NumOfAttempts,
			PriorCount:  prior,
			Now:         now,
		})
	})
	if err != nil {
		metrics.ObserveSubmission(outcome(err))
		if errors.Is(err, store.ErrAccountMissing) {
			return domain.Submission{}, fmt.Errorf("caller account: %w", domain.ErrUnauthenticated)
		}
		return domain.Submission{}, err
	}
	metrics.ObserveSubmission("admitted")

	logger := s.logger.With(
		zap.String("submission_id", receipt.Submission.ID.String()),
		zap.String("assignment_id", assignmentID.String()),
	)
	ev := event.SubmissionEvent{
		SubmissionID:   receipt.Submission.ID.String(),
		AssignmentName: receipt.Assignment.Name,
		UserEmail:      receipt.Account.Email,
		SubmissionURL:  receipt.Submission.SubmissionURL,
		Attempt:        event.FormatAttempt(receipt.PriorCount+1, receipt.Assignment.NumOfAttempts),
	}
	msgID, err := s.publisher.Publish(ctx, ev)
	metrics.ObservePublish(err)
	if err != nil {
		logger.Error("submission stored but event publish failed", zap.Error(err))
	} else {
		logger.Info("submission accepted", zap.String("attempt", ev.Attempt), zap.String("message_id", msgID))
	}
	return receipt.Submission, nil
}

// List returns the caller's submissions for an assignment.
func (s *Service) List(ctx context.Context, rawAssignmentID string, caller auth.Principal) ([]domain.Submission, error) {
	assignmentID, err := uuid.Parse(rawAssignmentID)
	if err != nil {
		return nil, fmt.Errorf("invalid assignment id %q: %w", rawAssignmentID, domain.ErrValidation)
	}
	return s.repo.ListSubmissions(ctx, caller.AccountID, assignmentID)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, admission.ErrDeadlinePassed):
		return "deadline_passed"
	case errors.Is(err, admission.ErrAttemptsExhausted):
		return "attempts_exhausted"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
