package domain

import (
	"time"

	"github.com/google/uuid"
)

// Range limits enforced on assignments at write time.
const (
	MinPoints   = 1
	MaxPoints   = 100
	MinAttempts = 1
	MaxAttempts = 3
)

// Account is a registered user. Accounts are seeded, never created over HTTP.
type Account struct {
	ID           uuid.UUID
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Created      time.Time
	Updated      time.Time
}

// Assignment is a gradable task owned by the account that created it.
type Assignment struct {
	ID            uuid.UUID
	Name          string
	Points        int
	NumOfAttempts int
	Deadline      time.Time
	CreatedBy     uuid.UUID
	Created       time.Time
	Updated       time.Time
}

// AssignmentInput carries the caller-editable fields of an assignment.
type AssignmentInput struct {
	Name          string    `validate:"required,max=255"`
	Points        int       `validate:"min=1,max=100"`
	NumOfAttempts int       `validate:"min=1,max=3"`
	Deadline      time.Time `validate:"required"`
}

// Submission is one attempt at an assignment. It is never updated or deleted.
type Submission struct {
	ID            uuid.UUID
	AssignmentID  uuid.UUID
	AccountID     uuid.UUID
	SubmissionURL string
	Submitted     time.Time
	Updated       time.Time
}

// SubmissionReceipt is what the persistence layer hands back after an admitted
// attempt: the stored row plus the context needed to build the event.
type SubmissionReceipt struct {
	Submission Submission
	Assignment Assignment
	Account    Account
	// PriorCount is the number of submissions that existed before this one.
	PriorCount int
}
