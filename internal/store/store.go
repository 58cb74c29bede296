// Package store provides the durable client-local key-value store backing
// message reactions and the theme preference. It is a best-effort layer:
// storage failures are swallowed so a broken disk never breaks chat.
package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Reaction is a user annotation on a single message.
type Reaction string

const (
	ReactionNone    Reaction = ""
	ReactionLike    Reaction = "like"
	ReactionDislike Reaction = "dislike"
)

const (
	reactionKeyPrefix = "reaction/"
	themeKey          = "theme"
)

// Store is a thin wrapper over BadgerDB. Writes are last-writer-wins per key.
type Store struct {
	db    *badger.DB
	onErr func(error)
}

// Option configures a Store.
type Option func(*Store)

// WithErrorLogger installs a callback invoked for swallowed storage errors.
func WithErrorLogger(fn func(error)) Option {
	return func(s *Store) { s.onErr = fn }
}

// Open opens (creating if necessary) the store at the given directory.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir %s: %w", path, err)
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("store: open badger at %s: %w", path, err)
	}
	return newStore(db, opts...), nil
}

// OpenInMemory opens a non-persistent store. Useful for testing.
func OpenInMemory(opts ...Option) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("store: open in-memory badger: %w", err)
	}
	return newStore(db, opts...), nil
}

func newStore(db *badger.DB, opts ...Option) *Store {
	s := &Store{db: db, onErr: func(error) {}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetReaction records the reaction for a message, replacing any prior value.
// ReactionNone clears it. Never fails; storage errors are reported to the
// error logger and otherwise ignored.
func (s *Store) SetReaction(messageID string, r Reaction) {
	key := []byte(reactionKeyPrefix + messageID)
	err := s.db.Update(func(txn *badger.Txn) error {
		if r == ReactionNone {
			return txn.Delete(key)
		}
		return txn.Set(key, []byte(r))
	})
	if err != nil {
		s.onErr(fmt.Errorf("store: set reaction %s: %w", messageID, err))
	}
}

// Reaction returns the persisted reaction for a message, or ReactionNone when
// absent or unreadable.
func (s *Store) Reaction(messageID string) Reaction {
	var value Reaction
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(reactionKeyPrefix + messageID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			switch Reaction(val) {
			case ReactionLike, ReactionDislike:
				value = Reaction(val)
			}
			return nil
		})
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		s.onErr(fmt.Errorf("store: load reaction %s: %w", messageID, err))
	}
	return value
}

// SetTheme persists the display theme preference.
func (s *Store) SetTheme(name string) {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(themeKey), []byte(name))
	})
	if err != nil {
		s.onErr(fmt.Errorf("store: set theme: %w", err))
	}
}

// Theme returns the persisted theme preference, or empty when unset.
func (s *Store) Theme() string {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(themeKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		s.onErr(fmt.Errorf("store: load theme: %w", err))
	}
	return value
}
