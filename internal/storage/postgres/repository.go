// Package postgres provides the Postgres-backed store.Repository.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/assignment-webapp/internal/domain"
	"github.com/JakeFAU/assignment-webapp/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// Repository implements store.Repository on a pgx pool.
type Repository struct {
	pool pool
}

var _ store.Repository = (*Repository)(nil)

// New creates a pooled Repository using the provided config.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Repository{pool: p}, nil
}

// NewWithPool constructs a repository from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Repository, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Repository{pool: p}, nil
}

// Close releases the underlying pool resources.
func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// Migrate applies the embedded schema. Statements are idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return mapError("apply schema", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w: %v", domain.ErrUnavailable, err)
	}
	return nil
}

// GetAccountByEmail loads an account by case-insensitive email.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	const query = `
		SELECT id, first_name, last_name, email, password, account_created, account_updated
		FROM accounts
		WHERE lower(email) = lower($1);
	`
	var a domain.Account
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.PasswordHash, &a.Created, &a.Updated,
	)
	if err != nil {
		return domain.Account{}, mapError("get account", err)
	}
	return a, nil
}

// CreateAccount inserts a seeded account.
func (r *Repository) CreateAccount(ctx context.Context, a domain.Account) error {
	const query = `
		INSERT INTO accounts (id, first_name, last_name, email, password, account_created, account_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := r.pool.Exec(ctx, query, a.ID, a.FirstName, a.LastName, a.Email, a.PasswordHash, a.Created, a.Updated)
	if err != nil {
		return mapError("insert account", err)
	}
	return nil
}

const assignmentColumns = `id, name, points, num_of_attempts, deadline, created_by, assignment_created, assignment_updated`

func scanAssignment(row pgx.Row) (domain.Assignment, error) {
	var a domain.Assignment
	err := row.Scan(&a.ID, &a.Name, &a.Points, &a.NumOfAttempts, &a.Deadline, &a.CreatedBy, &a.Created, &a.Updated)
	return a, err
}

// ListAssignments returns every assignment, oldest first.
func (r *Repository) ListAssignments(ctx context.Context) ([]domain.Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentColumns+` FROM assignments ORDER BY assignment_created, id;`)
	if err != nil {
		return nil, mapError("list assignments", err)
	}
	defer rows.Close()

	out := []domain.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list assignments", err)
	}
	return out, nil
}

// GetAssignment loads a single assignment.
func (r *Repository) GetAssignment(ctx context.Context, id uuid.UUID) (domain.Assignment, error) {
	a, err := scanAssignment(r.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1;`, id))
	if err != nil {
		return domain.Assignment{}, mapError("get assignment", err)
	}
	return a, nil
}

// CreateAssignment inserts an assignment row.
func (r *Repository) CreateAssignment(ctx context.Context, a domain.Assignment) error {
	const query = `
		INSERT INTO assignments (` + assignmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err := r.pool.Exec(ctx, query, a.ID, a.Name, a.Points, a.NumOfAttempts, a.Deadline, a.CreatedBy, a.Created, a.Updated)
	if err != nil {
		return mapError("insert assignment", err)
	}
	return nil
}

// UpdateAssignment replaces the mutable columns of an assignment.
func (r *Repository) UpdateAssignment(ctx context.Context, a domain.Assignment) error {
	const query = `
		UPDATE assignments
		SET name = $1, points = $2, num_of_attempts = $3, deadline = $4, assignment_updated = $5
		WHERE id = $6;
	`
	tag, err := r.pool.Exec(ctx, query, a.Name, a.Points, a.NumOfAttempts, a.Deadline, a.Updated, a.ID)
	if err != nil {
		return mapError("update assignment", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update assignment %s: %w", a.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteAssignment deletes an assignment. Submissions referencing it block the delete.
func (r *Repository) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM assignments WHERE id = $1;`, id)
	if err != nil {
		return mapError("delete assignment", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete assignment %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SubmitAttempt runs lock, count, admit and insert in one transaction. The
// caller's account row is locked FOR UPDATE so concurrent attempts serialize.
func (r *Repository) SubmitAttempt(
	ctx context.Context,
	req store.AttemptRequest,
	admit store.AdmitFunc,
) (domain.SubmissionReceipt, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.SubmissionReceipt{}, mapError("begin submission", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var receipt domain.SubmissionReceipt
	acct := &receipt.Account
	err = tx.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, account_created, account_updated
		FROM accounts
		WHERE id = $1
		FOR UPDATE;
	`, req.AccountID).Scan(&acct.ID, &acct.FirstName, &acct.LastName, &acct.Email, &acct.Created, &acct.Updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SubmissionReceipt{}, fmt.Errorf("lock account %s: %w", req.AccountID, store.ErrAccountMissing)
		}
		return domain.SubmissionReceipt{}, mapError("lock account", err)
	}

	receipt.Assignment, err = scanAssignment(
		tx.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1;`, req.AssignmentID),
	)
	if err != nil {
		return domain.SubmissionReceipt{}, mapError("get assignment", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT count(*)
		FROM submissions
		WHERE account_id = $1 AND assignment_id = $2;
	`, req.AccountID, req.AssignmentID).Scan(&receipt.PriorCount)
	if err != nil {
		return domain.SubmissionReceipt{}, mapError("count submissions", err)
	}

	if admit != nil {
		if err := admit(receipt.Assignment, receipt.PriorCount); err != nil {
			return domain.SubmissionReceipt{}, err
		}
	}

	receipt.Submission = domain.Submission{
		ID:            req.SubmissionID,
		AssignmentID:  req.AssignmentID,
		AccountID:     req.AccountID,
		SubmissionURL: req.SubmissionURL,
		Submitted:     req.At,
		Updated:       req.At,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO submissions (id, assignment_id, account_id, submission_url, submission_date, submission_updated)
		VALUES ($1, $2, $3, $4, $5, $6);
	`, req.SubmissionID, req.AssignmentID, req.AccountID, req.SubmissionURL, req.At, req.At)
	if err != nil {
		return domain.SubmissionReceipt{}, mapError("insert submission", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.SubmissionReceipt{}, mapError("commit submission", err)
	}
	return receipt, nil
}

// ListSubmissions returns the account's submissions for an assignment.
func (r *Repository) ListSubmissions(ctx context.Context, accountID, assignmentID uuid.UUID) ([]domain.Submission, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM assignments WHERE id = $1);`, assignmentID).Scan(&exists)
	if err != nil {
		return nil, mapError("check assignment", err)
	}
	if !exists {
		return nil, fmt.Errorf("assignment %s: %w", assignmentID, domain.ErrNotFound)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, assignment_id, account_id, submission_url, submission_date, submission_updated
		FROM submissions
		WHERE account_id = $1 AND assignment_id = $2
		ORDER BY submission_date, id;
	`, accountID, assignmentID)
	if err != nil {
		return nil, mapError("list submissions", err)
	}
	defer rows.Close()

	out := []domain.Submission{}
	for rows.Next() {
		var s domain.Submission
		if err := rows.Scan(&s.ID, &s.AssignmentID, &s.AccountID, &s.SubmissionURL, &s.Submitted, &s.Updated); err != nil {
			return nil, fmt.Errorf("scan submission row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list submissions", err)
	}
	return out, nil
}

// mapError classifies driver errors into domain sentinels.
func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrConflict, pgErr.ConstraintName)
		case codeCheckViolation:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrValidation, pgErr.ConstraintName)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
