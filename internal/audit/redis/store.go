// Package redis stores audit records as Redis hashes.
package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/JakeFAU/assignment-webapp/internal/audit"
)

// Config addresses the Redis server.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store writes each record to hash "{prefix}:{id}" and indexes the id under
// set "{prefix}:submission:{submissionId}".
type Store struct {
	client *redis.Client
	prefix string
}

var _ audit.Store = (*Store)(nil)

// New dials Redis lazily with cfg.
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "submission-audit"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) recordKey(id string) string {
	return s.prefix + ":" + id
}

func (s *Store) indexKey(submissionID string) string {
	return s.prefix + ":submission:" + submissionID
}

// Put writes the record and its index entry in one MULTI/EXEC.
func (s *Store) Put(ctx context.Context, rec audit.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("audit record id is required")
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.recordKey(rec.ID), map[string]interface{}{
		"id":                rec.ID,
		"email":             rec.Email,
		"submissionAttempt": rec.SubmissionAttempt,
		"submissionUrl":     rec.SubmissionURL,
		"submissionId":      rec.SubmissionID,
		"fileName":          rec.FileName,
	})
	if rec.SubmissionID != "" {
		pipe.SAdd(ctx, s.indexKey(rec.SubmissionID), rec.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write audit record %s: %w", rec.ID, err)
	}
	return nil
}

// Get loads one record.
func (s *Store) Get(ctx context.Context, id string) (audit.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return audit.Record{}, fmt.Errorf("read audit record %s: %w", id, err)
	}
	if len(fields) == 0 {
		return audit.Record{}, fmt.Errorf("audit record %s: %w", id, audit.ErrNotFound)
	}
	return audit.Record{
		ID:                fields["id"],
		Email:             fields["email"],
		SubmissionAttempt: fields["submissionAttempt"],
		SubmissionURL:     fields["submissionUrl"],
		SubmissionID:      fields["submissionId"],
		FileName:          fields["fileName"],
	}, nil
}

// ListBySubmission returns every record written for a submission.
func (s *Store) ListBySubmission(ctx context.Context, submissionID string) ([]audit.Record, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(submissionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read audit index %s: %w", submissionID, err)
	}
	out := make([]audit.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}
