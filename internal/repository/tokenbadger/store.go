// Package tokenbadger stores confirm-token payloads in an embedded badger
// database with per-entry TTL, standing in for an external cache without an
// extra moving part in the deployment.
package tokenbadger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"reviso/internal/domain"
	"reviso/internal/domain/repositories"
)

// Store implements repositories.TokenStore on badger.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) a badger database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(&badgerLogger{logger: logger})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open token store at %s: %w", path, err)
	}
	return &Store{db: db, logger: logger}, nil
}

// OpenInMemory opens an in-memory store. Tokens do not survive restarts,
// which is acceptable: a lost token just means re-previewing.
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(&badgerLogger{logger: logger})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory token store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func tokenKey(sessionID, tokenID string) []byte {
	return []byte(fmt.Sprintf("confirm_token:%s:%s", sessionID, tokenID))
}

// Put stores the payload under (sessionID, tokenID) with the given TTL.
func (s *Store) Put(ctx context.Context, sessionID, tokenID string, payload []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(tokenKey(sessionID, tokenID), payload).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("put confirm token: %w", err)
	}
	return nil
}

// Get returns the stored payload, or domain.ErrNotFound when the key is
// missing or expired.
func (s *Store) Get(ctx context.Context, sessionID, tokenID string) ([]byte, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tokenKey(sessionID, tokenID))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("confirm token %s: %w", tokenID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get confirm token: %w", err)
	}
	return payload, nil
}

// Delete removes the token. Deleting a missing token is not an error.
func (s *Store) Delete(ctx context.Context, sessionID, tokenID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(tokenKey(sessionID, tokenID))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("delete confirm token: %w", err)
	}
	return nil
}

var _ repositories.TokenStore = (*Store)(nil)

// badgerLogger adapts badger's logger interface to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
