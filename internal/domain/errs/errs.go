// Package errs holds sentinel errors shared across the pipeline's stages,
// plus WrapStore/WrapStage helpers that prefix context and wrap with %w,
// so callers can still match the underlying error with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrNoActiveAccounts  = errors.New("no active accounts available for scheduling")
	ErrOpenTaskExists    = errors.New("open task already exists for video")
	ErrInvalidMagnet     = errors.New("invalid magnet uri")
	ErrMissingLocalPath  = errors.New("task has no local path")
	ErrShareURLMissing   = errors.New("video has no share url")
	ErrQueueDepthCritical = errors.New("queue depth at critical threshold")
)

// WrapStore wraps a storage-layer error (Postgres, Redis) with context.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

// WrapStage wraps a pipeline-stage collaborator error (torrent client,
// remuxer, runtime manager, uploader, verifier) with context.
func WrapStage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("stage: %s: %w", op, err)
}
