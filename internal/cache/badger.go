package cache

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// BadgerStore is the durable backend, an embedded Badger database with
// per-entry TTL. Used when a cache path is configured so computed responses
// survive restarts.
type BadgerStore struct {
	db     *badger.DB
	logger zerolog.Logger
}

// NewBadgerStore opens the database at path. An empty path opens an
// in-memory instance, which the tests use.
func NewBadgerStore(path string, logger zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger cache")
	}
	return &BadgerStore{
		db:     db,
		logger: logger.With().Str("component", "badger_cache").Logger(),
	}, nil
}

func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, bool) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			s.logger.Error().Err(err).Str("key", key).Msg("cache read failed")
		}
		return nil, false
	}
	return value, true
}

func (s *BadgerStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (s *BadgerStore) Delete(_ context.Context, key string) {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("cache delete failed")
	}
}

func (s *BadgerStore) ClearAll(_ context.Context) {
	if err := s.db.DropAll(); err != nil {
		s.logger.Error().Err(err).Msg("cache clear failed")
	}
}

func (s *BadgerStore) Status() string {
	if s.db.IsClosed() {
		return "badger_closed"
	}
	return "badger_healthy"
}

// Close releases the database. Call on shutdown.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
