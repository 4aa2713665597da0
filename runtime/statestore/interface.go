// Package statestore keeps finalized session reports that have not yet been
// accepted by the backend, so a rejected save can be retried later.
package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/AltairaLabs/barre/runtime/types"
)

// Store defines the interface for draft report storage.
type Store interface {
	// SaveDraft inserts or replaces the draft keyed by its session ID.
	SaveDraft(ctx context.Context, draft *Draft) error

	// LoadDraft retrieves a draft by session ID.
	LoadDraft(ctx context.Context, id string) (*Draft, error)

	// DeleteDraft removes a draft. Deleting a missing draft returns ErrNotFound.
	DeleteDraft(ctx context.Context, id string) error

	// ListDrafts returns the drafts owned by userID, oldest first.
	// An empty userID lists every draft in the store.
	ListDrafts(ctx context.Context, userID string) ([]*Draft, error)

	// Close releases any resources held by the store.
	Close() error
}

// Draft is a finalized report awaiting persistence.
type Draft struct {
	Report    types.Report `json:"report"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"lastError,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// NewDraft wraps a finalized report.
func NewDraft(report types.Report) *Draft {
	now := time.Now()
	return &Draft{Report: report, CreatedAt: now, UpdatedAt: now}
}

// ID is the session ID the draft is keyed by.
func (d *Draft) ID() string {
	return d.Report.SessionID
}

// UserID is the owner of the draft.
func (d *Draft) UserID() string {
	return d.Report.UserID
}

// Failed records an unsuccessful persistence attempt.
func (d *Draft) Failed(err error) {
	d.Attempts++
	if err != nil {
		d.LastError = err.Error()
	}
	d.UpdatedAt = time.Now()
}

var (
	// ErrNotFound is returned when a draft doesn't exist in the store.
	ErrNotFound = errors.New("draft not found")

	// ErrInvalidID is returned when an empty draft ID is supplied.
	ErrInvalidID = errors.New("invalid draft ID")

	// ErrInvalidDraft is returned when a nil draft is saved.
	ErrInvalidDraft = errors.New("invalid draft")
)

func validate(d *Draft) error {
	if d == nil {
		return ErrInvalidDraft
	}
	if d.ID() == "" {
		return ErrInvalidID
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	return nil
}
