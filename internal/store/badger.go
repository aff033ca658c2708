package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerStore implements Gateway on an embedded BadgerDB. Values are
// stored as an 8-byte big-endian version prefix followed by the JSON
// payload; CompareAndSet runs inside a single transaction so the
// version check and write are atomic.
type BadgerStore struct {
	db *badger.DB
}

// BadgerConfig holds configuration for a BadgerStore instance.
type BadgerConfig struct {
	// Path is the directory for the database files.
	// Ignored when InMemory is true.
	Path string

	// InMemory disables disk persistence. Useful for testing.
	InMemory bool

	// SyncWrites forces writes to disk before commit returns.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. If nil,
	// internal logging is disabled.
	Logger *zap.Logger
}

// badgerLogger adapts zap to BadgerDB's Logger interface.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.log.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...any) { l.log.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...any)    { l.log.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.log.Debugf(format, args...) }

func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{log: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func badgerKey(ns Namespace, key string) []byte {
	return []byte(string(ns) + "\x00" + key)
}

func encodeVersioned(value []byte, version uint64) []byte {
	out := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(out[:8], version)
	copy(out[8:], value)
	return out
}

func decodeVersioned(raw []byte) ([]byte, uint64, error) {
	if len(raw) < 8 {
		return nil, 0, fmt.Errorf("value too short for version envelope: %d bytes", len(raw))
	}
	return raw[8:], binary.BigEndian.Uint64(raw[:8]), nil
}

func (b *BadgerStore) Get(_ context.Context, ns Namespace, key string) ([]byte, uint64, error) {
	var value []byte
	var version uint64

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(ns, key))
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			data, v, err := decodeVersioned(raw)
			if err != nil {
				return err
			}
			value = clone(data)
			version = v
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get %s/%s: %w", ns, key, err)
	}

	return value, version, nil
}

func (b *BadgerStore) Set(_ context.Context, ns Namespace, key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		version := uint64(0)
		item, err := txn.Get(badgerKey(ns, key))
		if err == nil {
			if err := item.Value(func(raw []byte) error {
				_, v, err := decodeVersioned(raw)
				version = v
				return err
			}); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		return txn.Set(badgerKey(ns, key), encodeVersioned(value, version+1))
	})
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", ns, key, err)
	}
	return nil
}

func (b *BadgerStore) CompareAndSet(_ context.Context, ns Namespace, key string, value []byte, version uint64) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		current := uint64(0)
		item, err := txn.Get(badgerKey(ns, key))
		if err == nil {
			if err := item.Value(func(raw []byte) error {
				_, v, err := decodeVersioned(raw)
				current = v
				return err
			}); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if current != version {
			return ErrConflict
		}
		return txn.Set(badgerKey(ns, key), encodeVersioned(value, version+1))
	})

	if errors.Is(err, ErrConflict) {
		return ErrConflict
	}
	// A transaction-level conflict means another writer won the race.
	if errors.Is(err, badger.ErrConflict) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to compare-and-set %s/%s: %w", ns, key, err)
	}
	return nil
}

func (b *BadgerStore) Delete(_ context.Context, ns Namespace, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(ns, key)); err != nil {
			return err
		}
		return txn.Delete(badgerKey(ns, key))
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", ns, key, err)
	}
	return nil
}

func (b *BadgerStore) List(_ context.Context, ns Namespace) (map[string][]byte, error) {
	out := make(map[string][]byte)
	prefix := []byte(string(ns) + "\x00")

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(bytes.TrimPrefix(item.Key(), prefix))
			if err := item.Value(func(raw []byte) error {
				data, _, err := decodeVersioned(raw)
				if err != nil {
					return err
				}
				out[key] = clone(data)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", ns, err)
	}

	return out, nil
}
