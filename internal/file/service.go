// Package file implements versioned upload, retrieval and deletion of files
// on top of the object store gateway and the audit ledger.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fileversion/service/internal/history"
	"github.com/fileversion/service/internal/metrics"
	"github.com/fileversion/service/internal/storage"
)

const (
	opUpload   = "upload"
	opRetrieve = "retrieve"
	opDelete   = "delete"
)

// Ledger appends audit records. *history.Repository implements it.
type Ledger interface {
	RecordCreated(ctx context.Context, version string, userID int64) (*history.Record, error)
	RecordDeleted(ctx context.Context, version string, userID int64) (*history.Record, error)
}

// Service orchestrates the object store and the audit ledger.
//
// Ledger ordering differs per mutation: a created record is appended only
// after the object is committed, a deleted record is appended before the
// object is removed. Ledger failures are logged and counted but never undo
// or block the storage mutation.
type Service struct {
	store   storage.Gateway
	ledger  Ledger
	metrics *metrics.FileMetrics
	log     zerolog.Logger
	newID   func() string
}

// NewService creates a new file Service. m may be nil.
func NewService(store storage.Gateway, ledger Ledger, m *metrics.FileMetrics, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		ledger:  ledger,
		metrics: m,
		log:     log.With().Str("component", "file").Logger(),
		newID:   uuid.NewString,
	}
}

// NewVersion returns a fresh version identifier keeping the extension of
// originalName, e.g. "3f1c...-9a.png" for "a.png".
func (s *Service) NewVersion(originalName string) string {
	return s.newID() + filepath.Ext(originalName)
}

// Upload stores size bytes from r under a new version identifier on behalf
// of userID and returns the identifier.
func (s *Service) Upload(ctx context.Context, r io.Reader, size int64, originalName string, userID int64) (string, error) {
	start := time.Now()
	version := s.NewVersion(originalName)

	if err := s.store.Put(ctx, version, r, size); err != nil {
		s.metrics.RecordOperation(opUpload, metrics.ResultError, start)
		s.log.Error().Err(err).Str("version", version).Int64("user_id", userID).Msg("commit upload")
		return "", fmt.Errorf("upload %q: %w", version, err)
	}
	s.metrics.RecordUpload(size)

	// The object is committed; a caller going away must not cost the audit record.
	if _, err := s.ledger.RecordCreated(context.WithoutCancel(ctx), version, userID); err != nil {
		s.auditFailed(history.ActionCreated, version, userID, err)
	}

	s.metrics.RecordOperation(opUpload, metrics.ResultOK, start)
	s.log.Info().Str("version", version).Int64("user_id", userID).Int64("size", size).Msg("file uploaded")
	return version, nil
}

// Retrieve returns the bytes stored under version. A missing object yields
// a *NotFoundError; any other storage failure wraps ErrRetrieveFailed.
func (s *Service) Retrieve(ctx context.Context, version string) ([]byte, error) {
	start := time.Now()
	if version == "" {
		s.metrics.RecordOperation(opRetrieve, metrics.ResultInvalidArgs, start)
		return nil, ErrInvalidVersion
	}

	rc, err := s.store.Get(ctx, version)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.RecordOperation(opRetrieve, metrics.ResultNotFound, start)
			return nil, &NotFoundError{Version: version}
		}
		s.metrics.RecordOperation(opRetrieve, metrics.ResultError, start)
		s.log.Error().Err(err).Str("version", version).Msg("retrieve file")
		return nil, fmt.Errorf("%w %q: %w", ErrRetrieveFailed, version, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		s.metrics.RecordOperation(opRetrieve, metrics.ResultError, start)
		s.log.Error().Err(err).Str("version", version).Msg("read file")
		return nil, fmt.Errorf("%w %q: %w", ErrRetrieveFailed, version, err)
	}

	s.metrics.RecordDownload(int64(len(data)))
	s.metrics.RecordOperation(opRetrieve, metrics.ResultOK, start)
	return data, nil
}

// Delete records the deletion of version by userID and removes the object.
// Deleting a version that does not exist succeeds.
func (s *Service) Delete(ctx context.Context, version string, userID int64) error {
	start := time.Now()
	if version == "" {
		s.metrics.RecordOperation(opDelete, metrics.ResultInvalidArgs, start)
		return ErrInvalidVersion
	}

	if _, err := s.ledger.RecordDeleted(ctx, version, userID); err != nil {
		s.auditFailed(history.ActionDeleted, version, userID, err)
	}

	if err := s.store.Remove(ctx, version); err != nil {
		s.metrics.RecordOperation(opDelete, metrics.ResultError, start)
		s.log.Error().Err(err).Str("version", version).Int64("user_id", userID).Msg("remove file")
		return fmt.Errorf("delete %q: %w", version, err)
	}

	s.metrics.RecordOperation(opDelete, metrics.ResultOK, start)
	s.log.Info().Str("version", version).Int64("user_id", userID).Msg("file deleted")
	return nil
}

func (s *Service) auditFailed(action history.Action, version string, userID int64, err error) {
	s.metrics.RecordAuditFailure(string(action))
	s.log.Error().
		Err(err).
		Str("event_type", "audit_write_failure").
		Str("action", string(action)).
		Str("version", version).
		Int64("user_id", userID).
		Msg("audit record not persisted")
}
