package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/assignment-webapp/internal/domain"
)

// ErrAccountMissing signals that the account a principal resolved to no longer exists.
var ErrAccountMissing = fmt.Errorf("account: %w", domain.ErrNotFound)

// AccountRepository persists seeded accounts.
type AccountRepository interface {
	// GetAccountByEmail loads an account or returns domain.ErrNotFound.
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)
	// CreateAccount inserts an account. A duplicate email yields domain.ErrConflict.
	CreateAccount(ctx context.Context, account domain.Account) error
}

// AssignmentRepository persists assignments.
type AssignmentRepository interface {
	ListAssignments(ctx context.Context) ([]domain.Assignment, error)
	// GetAssignment loads one assignment or returns domain.ErrNotFound.
	GetAssignment(ctx context.Context, id uuid.UUID) (domain.Assignment, error)
	// CreateAssignment inserts an assignment. A duplicate name yields domain.ErrConflict.
	CreateAssignment(ctx context.Context, assignment domain.Assignment) error
	// UpdateAssignment replaces the mutable columns of an existing assignment.
	UpdateAssignment(ctx context.Context, assignment domain.Assignment) error
	// DeleteAssignment removes an assignment. Existing submissions yield domain.ErrConflict.
	DeleteAssignment(ctx context.Context, id uuid.UUID) error
}

// AttemptRequest describes one submission attempt to be admitted and stored.
type AttemptRequest struct {
	SubmissionID  uuid.UUID
	AccountID     uuid.UUID
	AssignmentID  uuid.UUID
	SubmissionURL string
	At            time.Time
}

// AdmitFunc is called with the assignment and the caller's prior attempt count
// while the attempt is being stored. A non-nil return aborts without mutation.
type AdmitFunc func(assignment domain.Assignment, priorCount int) error

// SubmissionRepository persists submission attempts.
type SubmissionRepository interface {
	// SubmitAttempt loads the caller and assignment, counts prior attempts,
	// consults admit and inserts the submission as one unit. Concurrent calls
	// for the same account are serialized.
	SubmitAttempt(ctx context.Context, req AttemptRequest, admit AdmitFunc) (domain.SubmissionReceipt, error)
	// ListSubmissions returns the account's submissions for an assignment, oldest first.
	ListSubmissions(ctx context.Context, accountID, assignmentID uuid.UUID) ([]domain.Submission, error)
}

// Repository is the full persistence surface used by the API process.
type Repository interface {
	AccountRepository
	AssignmentRepository
	SubmissionRepository
	// Ping reports domain.ErrUnavailable when the backing database cannot be reached.
	Ping(ctx context.Context) error
	Close()
}
