// Package docstore persists named JSON documents (agencies.json, users.json,
// portal-state.json, ...) with whole-document read and write semantics.
//
// Writes replace the whole document. Read-modify-write cycles go through
// Update, which holds a per-document lock for the full cycle, so two
// concurrent writers can no longer lose each other's changes.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("docstore")

// ErrNotExist is returned by a Backend when the document has never been written.
var ErrNotExist = errors.New("docstore: document does not exist")

// ErrNoChange can be returned from an Update callback to skip the write.
var ErrNoChange = errors.New("docstore: no change")

// Backend loads and saves raw document bytes.
type Backend interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
	Ping(ctx context.Context) error
	Close() error
	Driver() string
}

// Store serializes access to documents held by a Backend.
type Store struct {
	backend Backend
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Store over the given backend.
func New(backend Backend, logger *zap.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) lock(name string) func() {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Read returns the document decoded as T. An absent document is initialized
// with def() and written back. A corrupt document is copied aside and def()
// is returned in its place.
func Read[T any](ctx context.Context, s *Store, name string, def func() T) (T, error) {
	ctx, span := tracer.Start(ctx, "docstore.Read")
	defer span.End()
	span.SetAttributes(attribute.String("document", name))

	unlock := s.lock(name)
	defer unlock()

	return readLocked(ctx, s, name, def)
}

// Write replaces the document with data.
func Write[T any](ctx context.Context, s *Store, name string, data T) error {
	ctx, span := tracer.Start(ctx, "docstore.Write")
	defer span.End()
	span.SetAttributes(attribute.String("document", name))

	unlock := s.lock(name)
	defer unlock()

	return writeLocked(ctx, s, name, data)
}

// Update reads the document, applies fn and writes the result, all under the
// document lock. When fn returns ErrNoChange nothing is written and Update
// returns nil; any other error aborts the write and is returned.
func Update[T any](ctx context.Context, s *Store, name string, def func() T, fn func(doc *T) error) error {
	ctx, span := tracer.Start(ctx, "docstore.Update")
	defer span.End()
	span.SetAttributes(attribute.String("document", name))

	unlock := s.lock(name)
	defer unlock()

	doc, err := readLocked(ctx, s, name, def)
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	return writeLocked(ctx, s, name, doc)
}

func readLocked[T any](ctx context.Context, s *Store, name string, def func() T) (T, error) {
	raw, err := s.backend.Load(ctx, name)
	if errors.Is(err, ErrNotExist) {
		d := def()
		if err := writeLocked(ctx, s, name, d); err != nil {
			return d, err
		}
		return d, nil
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("load %s: %w", name, err)
	}

	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		backup := fmt.Sprintf("%s.corrupt-%d", name, time.Now().Unix())
		s.logger.Error("docstore: corrupt document, falling back to default",
			zap.String("document", name),
			zap.String("backup", backup),
			zap.String("driver", s.backend.Driver()),
			zap.Error(err),
		)
		if saveErr := s.backend.Save(ctx, backup, raw); saveErr != nil {
			s.logger.Warn("docstore: failed to back up corrupt document",
				zap.String("document", name),
				zap.Error(saveErr),
			)
		}
		return def(), nil
	}
	return doc, nil
}

func writeLocked[T any](ctx context.Context, s *Store, name string, data T) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := s.backend.Save(ctx, name, raw); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}
