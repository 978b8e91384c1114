// Package account seeds user accounts from a CSV file.
package account

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/assignment-webapp/internal/auth"
	"github.com/JakeFAU/assignment-webapp/internal/domain"
	"github.com/JakeFAU/assignment-webapp/internal/store"
)

var header = []string{"first_name", "last_name", "email", "password"}

// IDGenerator issues account IDs.
type IDGenerator interface {
	NewID() (uuid.UUID, error)
}

// Clock supplies creation timestamps.
type Clock interface {
	Now() time.Time
}

// Result summarizes a seeding run.
type Result struct {
	Created int
	Skipped int
}

// Seeder loads accounts into a repository.
type Seeder struct {
	accounts   store.AccountRepository
	ids        IDGenerator
	clock      Clock
	bcryptCost int
	logger     *zap.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(accounts store.AccountRepository, ids IDGenerator, clock Clock, bcryptCost int, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{accounts: accounts, ids: ids, clock: clock, bcryptCost: bcryptCost, logger: logger}
}

// SeedFile opens path and seeds from it.
func (s *Seeder) SeedFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied seed file.
	if err != nil {
		return Result{}, fmt.Errorf("open seed file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return s.Seed(ctx, f)
}

// Seed reads a CSV with header first_name,last_name,email,password. Emails
// already present are skipped; new rows are stored with bcrypt hashes.
func (s *Seeder) Seed(ctx context.Context, r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = len(header)

	first, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read csv header: %w", err)
	}
	for i, col := range header {
		if !strings.EqualFold(strings.TrimSpace(first[i]), col) {
			return Result{}, fmt.Errorf("unexpected csv header %v: %w", first, domain.ErrValidation)
		}
	}

	var res Result
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read csv row: %w", err)
		}
		created, err := s.seedRow(ctx, row)
		if err != nil {
			return res, err
		}
		if created {
			res.Created++
		} else {
			res.Skipped++
		}
	}
	s.logger.Info("account seeding complete", zap.Int("created", res.Created), zap.Int("skipped", res.Skipped))
	return res, nil
}

func (s *Seeder) seedRow(ctx context.Context, row []string) (bool, error) {
	email := strings.TrimSpace(row[2])
	if email == "" || row[3] == "" {
		s.logger.Warn("skipping incomplete account row", zap.String("email", email))
		return false, nil
	}
	_, err := s.accounts.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
		s.logger.Warn("account already exists, skipping", zap.String("email", email))
		return false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return false, fmt.Errorf("lookup account %q: %w", email, err)
	}

	hash, err := auth.HashPassword(row[3], s.bcryptCost)
	if err != nil {
		return false, err
	}
	id, err := s.ids.NewID()
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	acct := domain.Account{
		ID:           id,
		FirstName:    strings.TrimSpace(row[0]),
		LastName:     strings.TrimSpace(row[1]),
		Email:        email,
		PasswordHash: hash,
		Created:      now,
		Updated:      now,
	}
	if err := s.accounts.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.logger.Warn("account created concurrently, skipping", zap.String("email", email))
			return false, nil
		}
		return false, fmt.Errorf("create account %q: %w", email, err)
	}
	s.logger.Debug("account created", zap.String("email", email))
	return true, nil
}
