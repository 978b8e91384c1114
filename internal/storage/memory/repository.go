package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/JakeFAU/assignment-webapp/internal/domain"
	"github.com/JakeFAU/assignment-webapp/internal/store"
)

// Repository provides an in-memory store.Repository for development/testing.
// A single mutex serializes SubmitAttempt, so the count-then-insert is atomic.
type Repository struct {
	mu          sync.RWMutex
	accounts    map[uuid.UUID]domain.Account
	byEmail     map[string]uuid.UUID
	assignments map[uuid.UUID]domain.Assignment
	submissions []domain.Submission
	down        bool
}

var _ store.Repository = (*Repository)(nil)

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		accounts:    make(map[uuid.UUID]domain.Account),
		byEmail:     make(map[string]uuid.UUID),
		assignments: make(map[uuid.UUID]domain.Assignment),
	}
}

// SetUnavailable toggles a simulated database outage for Ping and account lookups.
func (r *Repository) SetUnavailable(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = down
}

// Ping reports domain.ErrUnavailable while the repository is marked down.
func (r *Repository) Ping(context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.down {
		return fmt.Errorf("ping: %w", domain.ErrUnavailable)
	}
	return nil
}

// Close is a no-op.
func (r *Repository) Close() {}

// GetAccountByEmail looks an account up by case-insensitive email.
func (r *Repository) GetAccountByEmail(_ context.Context, email string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.down {
		return domain.Account{}, fmt.Errorf("account lookup: %w", domain.ErrUnavailable)
	}
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return domain.Account{}, fmt.Errorf("account %q: %w", email, domain.ErrNotFound)
	}
	return r.accounts[id], nil
}

// CreateAccount stores a new account.
func (r *Repository) CreateAccount(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(account.Email)
	if _, exists := r.byEmail[key]; exists {
		return fmt.Errorf("account %q: %w", account.Email, domain.ErrConflict)
	}
	r.accounts[account.ID] = account
	r.byEmail[key] = account.ID
	return nil
}

// ListAssignments returns all assignments ordered by creation time.
func (r *Repository) ListAssignments(context.Context) ([]domain.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Assignment, 0, len(r.assignments))
	for _, a := range r.assignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

// GetAssignment fetches an assignment by ID.
func (r *Repository) GetAssignment(_ context.Context, id uuid.UUID) (domain.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assignments[id]
	if !ok {
		return domain.Assignment{}, fmt.Errorf("assignment %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

// CreateAssignment stores a new assignment.
func (r *Repository) CreateAssignment(_ context.Context, a domain.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.CreatedBy]; !ok {
		return fmt.Errorf("assignment creator %s: %w", a.CreatedBy, domain.ErrConflict)
	}
	if r.nameTakenLocked(a.Name, a.ID) {
		return fmt.Errorf("assignment name %q: %w", a.Name, domain.ErrConflict)
	}
	r.assignments[a.ID] = a
	return nil
}

// UpdateAssignment replaces name, points, attempts, deadline and updated time.
func (r *Repository) UpdateAssignment(_ context.Context, a domain.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.assignments[a.ID]
	if !ok {
		return fmt.Errorf("assignment %s: %w", a.ID, domain.ErrNotFound)
	}
	if r.nameTakenLocked(a.Name, a.ID) {
		return fmt.Errorf("assignment name %q: %w", a.Name, domain.ErrConflict)
	}
	current.Name = a.Name
	current.Points = a.Points
	current.NumOfAttempts = a.NumOfAttempts
	current.Deadline = a.Deadline
	current.Updated = a.Updated
	r.assignments[a.ID] = current
	return nil
}

// DeleteAssignment removes an assignment that has no submissions.
func (r *Repository) DeleteAssignment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assignments[id]; !ok {
		return fmt.Errorf("assignment %s: %w", id, domain.ErrNotFound)
	}
	for _, s := range r.submissions {
		if s.AssignmentID == id {
			return fmt.Errorf("assignment %s has submissions: %w", id, domain.ErrConflict)
		}
	}
	delete(r.assignments, id)
	return nil
}

// SubmitAttempt counts, admits and inserts under the write lock.
func (r *Repository) SubmitAttempt(
	_ context.Context,
	req store.AttemptRequest,
	admit store.AdmitFunc,
) (domain.SubmissionReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[req.AccountID]
	if !ok {
		return domain.SubmissionReceipt{}, fmt.Errorf("submit %s: %w", req.AccountID, store.ErrAccountMissing)
	}
	assignment, ok := r.assignments[req.AssignmentID]
	if !ok {
		return domain.SubmissionReceipt{}, fmt.Errorf("assignment %s: %w", req.AssignmentID, domain.ErrNotFound)
	}
	count := 0
	for _, s := range r.submissions {
		if s.AccountID == req.AccountID && s.AssignmentID == req.AssignmentID {
			count++
		}
	}
	if admit != nil {
		if err := admit(assignment, count); err != nil {
			return domain.SubmissionReceipt{}, err
		}
	}
	sub := domain.Submission{
		ID:            req.SubmissionID,
		AssignmentID:  req.AssignmentID,
		AccountID:     req.AccountID,
		SubmissionURL: req.SubmissionURL,
		Submitted:     req.At,
		Updated:       req.At,
	}
	r.submissions = append(r.submissions, sub)
	return domain.SubmissionReceipt{
		Submission: sub,
		Assignment: assignment,
		Account:    account,
		PriorCount: count,
	}, nil
}

// ListSubmissions returns a copy of the account's submissions for the assignment.
func (r *Repository) ListSubmissions(_ context.Context, accountID, assignmentID uuid.UUID) ([]domain.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.assignments[assignmentID]; !ok {
		return nil, fmt.Errorf("assignment %s: %w", assignmentID, domain.ErrNotFound)
	}
	out := []domain.Submission{}
	for _, s := range r.submissions {
		if s.AccountID == accountID && s.AssignmentID == assignmentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Repository) nameTakenLocked(name string, self uuid.UUID) bool {
	for id, a := range r.assignments {
		if id != self && a.Name == name {
			return true
		}
	}
	return false
}
