// Package assignment implements assignment CRUD with owner checks.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/go-playground/validator.v9"

	"github.com/JakeFAU/assignment-webapp/internal/auth"
	"github.com/JakeFAU/assignment-webapp/internal/domain"
	"github.com/JakeFAU/assignment-webapp/internal/store"
)

// IDGenerator issues assignment IDs.
type IDGenerator interface {
	NewID() (uuid.UUID, error)
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// Service coordinates assignment persistence.
type Service struct {
	repo     store.AssignmentRepository
	ids      IDGenerator
	clock    Clock
	validate *validator.Validate
	logger   *zap.Logger
}

// NewService constructs a Service.
func NewService(repo store.AssignmentRepository, ids IDGenerator, clock Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		ids:      ids,
		clock:    clock,
		validate: validator.New(),
		logger:   logger,
	}
}

// List returns all assignments.
func (s *Service) List(ctx context.Context) ([]domain.Assignment, error) {
	return s.repo.ListAssignments(ctx)
}

// Get loads one assignment by its textual ID.
func (s *Service) Get(ctx context.Context, rawID string) (domain.Assignment, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return domain.Assignment{}, err
	}
	return s.repo.GetAssignment(ctx, id)
}

// Create validates and stores a new assignment owned by caller.
func (s *Service) Create(ctx context.Context, caller auth.Principal, in domain.AssignmentInput) (domain.Assignment, error) {
	in, err := s.check(in)
	if err != nil {
		return domain.Assignment{}, err
	}
	id, err := s.ids.NewID()
	if err != nil {
		return domain.Assignment{}, err
	}
	now := s.clock.Now()
	a := domain.Assignment{
		ID:            id,
		Name:          in.Name,
		Points:        in.Points,
		NumOfAttempts: in.NumOfAttempts,
		Deadline:      in.Deadline.UTC(),
		CreatedBy:     caller.AccountID,
		Created:       now,
		Updated:       now,
	}
	if err := s.repo.CreateAssignment(ctx, a); err != nil {
		return domain.Assignment{}, err
	}
	s.logger.Info("assignment created", zap.String("assignment_id", a.ID.String()), zap.String("name", a.Name))
	return a, nil
}

// Update replaces the editable fields. Only the creator may update.
func (s *Service) Update(ctx context.Context, caller auth.Principal, rawID string, in domain.AssignmentInput) error {
	id, err := ParseID(rawID)
	if err != nil {
		return err
	}
	in, err = s.check(in)
	if err != nil {
		return err
	}
	current, err := s.owned(ctx, caller, id)
	if err != nil {
		return err
	}
	current.Name = in.Name
	current.Points = in.Points
	current.NumOfAttempts = in.NumOfAttempts
	current.Deadline = in.Deadline.UTC()
	current.Updated = s.clock.Now()
	if err := s.repo.UpdateAssignment(ctx, current); err != nil {
		return err
	}
	s.logger.Info("assignment updated", zap.String("assignment_id", id.String()))
	return nil
}

// Delete removes an assignment. Only the creator may delete.
func (s *Service) Delete(ctx context.Context, caller auth.Principal, rawID string) error {
	id, err := ParseID(rawID)
	if err != nil {
		return err
	}
	if _, err := s.owned(ctx, caller, id); err != nil {
		return err
	}
	if err := s.repo.DeleteAssignment(ctx, id); err != nil {
		return err
	}
	s.logger.Info("assignment deleted", zap.String("assignment_id", id.String()))
	return nil
}

func (s *Service) owned(ctx context.Context, caller auth.Principal, id uuid.UUID) (domain.Assignment, error) {
	a, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return domain.Assignment{}, err
	}
	if a.CreatedBy != caller.AccountID {
		return domain.Assignment{}, fmt.Errorf("assignment %s not owned by caller: %w", id, domain.ErrForbidden)
	}
	return a, nil
}

func (s *Service) check(in domain.AssignmentInput) (domain.AssignmentInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return in, fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(fields, "; "))
		}
		return in, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return in, nil
}

// ParseID parses an assignment path parameter.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid assignment id %q: %w", raw, domain.ErrValidation)
	}
	return id, nil
}
