// Package audit defines the per-event audit record written by the archive
// consumer and an in-memory Store.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// NoFileName is recorded when the pipeline failed before an object was stored.
const NoFileName = "no file name"

// ErrNotFound signals an unknown audit record.
var ErrNotFound = errors.New("audit record not found")

// Record is one audit entry. Field names follow the stored attribute names.
type Record struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	SubmissionAttempt string `json:"submissionAttempt"`
	SubmissionURL     string `json:"submissionUrl"`
	SubmissionID      string `json:"submissionId"`
	FileName          string `json:"fileName"`
}

// Store persists audit records.
type Store interface {
	Put(ctx context.Context, rec Record) error
}

// MemoryStore keeps records in-process.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	err     error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailWith makes subsequent Put calls return err.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Put appends rec.
func (m *MemoryStore) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return fmt.Errorf("put audit record: %w", m.err)
	}
	if rec.ID == "" {
		return fmt.Errorf("audit record id is required")
	}
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything stored.
func (m *MemoryStore) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
