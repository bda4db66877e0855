// Package badger implements the list store on an embedded BadgerDB, for
// single-process tooling that has no Redis to log into.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/toxfilter/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Config holds BadgerDB settings.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *zap.Logger
}

// Store keeps each list as sequence-numbered keys plus a head/tail meta key.
type Store struct {
	db *badger.DB
}

// NewStore opens the database.
func NewStore(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("path is required for persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&zapLogger{l: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: bdb}, nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return &db.Error{Op: db.OpPing, Err: db.ErrClosed}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() {
	_ = s.db.Close()
}

// WaitForReady returns immediately; an opened embedded database is ready.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// RPush appends values to the tail and returns the new length.
func (s *Store) RPush(_ context.Context, key string, values ...[]byte) (int64, error) {
	var n int64
	err := s.update(db.OpRPush, func(txn *badger.Txn) error {
		m, err := readMeta(txn, key)
		if err != nil {
			return err
		}
		for _, v := range values {
			if err := txn.Set(itemKey(key, m.tail), v); err != nil {
				return err
			}
			m.tail++
		}
		n = m.len()
		return writeMeta(txn, key, m)
	})
	return n, err
}

// LTrim keeps only the elements in [start, stop].
func (s *Store) LTrim(_ context.Context, key string, start, stop int64) error {
	return s.update(db.OpLTrim, func(txn *badger.Txn) error {
		m, err := readMeta(txn, key)
		if err != nil {
			return err
		}
		from, to, ok := db.Bounds(start, stop, m.len())
		if !ok {
			return deleteList(txn, key, m)
		}
		for seq := m.head; seq < m.head+uint64(from); seq++ {
			if err := txn.Delete(itemKey(key, seq)); err != nil {
				return err
			}
		}
		for seq := m.head + uint64(to) + 1; seq < m.tail; seq++ {
			if err := txn.Delete(itemKey(key, seq)); err != nil {
				return err
			}
		}
		m.head, m.tail = m.head+uint64(from), m.head+uint64(to)+1
		return writeMeta(txn, key, m)
	})
}

// LRange returns the elements in [start, stop].
func (s *Store) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	var out [][]byte
	err := s.view(db.OpLRange, func(txn *badger.Txn) error {
		m, err := readMeta(txn, key)
		if err != nil {
			return err
		}
		from, to, ok := db.Bounds(start, stop, m.len())
		if !ok {
			return nil
		}
		out = make([][]byte, 0, to-from+1)
		for seq := m.head + uint64(from); seq <= m.head+uint64(to); seq++ {
			item, err := txn.Get(itemKey(key, seq))
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// LLen returns the list length.
func (s *Store) LLen(_ context.Context, key string) (int64, error) {
	var n int64
	err := s.view(db.OpLLen, func(txn *badger.Txn) error {
		m, err := readMeta(txn, key)
		n = m.len()
		return err
	})
	return n, err
}

// Del deletes the list.
func (s *Store) Del(_ context.Context, key string) error {
	return s.update(db.OpDel, func(txn *badger.Txn) error {
		m, err := readMeta(txn, key)
		if err != nil {
			return err
		}
		return deleteList(txn, key, m)
	})
}

func (s *Store) update(op string, fn func(txn *badger.Txn) error) error {
	if err := s.db.Update(fn); err != nil {
		return &db.Error{Op: op, Err: err}
	}
	return nil
}

func (s *Store) view(op string, fn func(txn *badger.Txn) error) error {
	if err := s.db.View(fn); err != nil {
		return &db.Error{Op: op, Err: err}
	}
	return nil
}

// meta bounds the live sequence range [head, tail).
type meta struct {
	head, tail uint64
}

func (m meta) len() int64 { return int64(m.tail - m.head) }

func metaKey(key string) []byte { return []byte("list:" + key + ":meta") }

func itemKey(key string, seq uint64) []byte {
	k := []byte("list:" + key + ":item:")
	return binary.BigEndian.AppendUint64(k, seq)
}

func readMeta(txn *badger.Txn, key string) (meta, error) {
	item, err := txn.Get(metaKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return meta{}, nil
	}
	if err != nil {
		return meta{}, err
	}
	var m meta
	err = item.Value(func(v []byte) error {
		if len(v) != 16 {
			return fmt.Errorf("corrupt list meta for %q", key)
		}
		m.head = binary.BigEndian.Uint64(v[:8])
		m.tail = binary.BigEndian.Uint64(v[8:])
		return nil
	})
	return m, err
}

func writeMeta(txn *badger.Txn, key string, m meta) error {
	v := binary.BigEndian.AppendUint64(make([]byte, 0, 16), m.head)
	v = binary.BigEndian.AppendUint64(v, m.tail)
	return txn.Set(metaKey(key), v)
}

func deleteList(txn *badger.Txn, key string, m meta) error {
	for seq := m.head; seq < m.tail; seq++ {
		if err := txn.Delete(itemKey(key, seq)); err != nil {
			return err
		}
	}
	return txn.Delete(metaKey(key))
}

// zapLogger adapts zap to badger.Logger.
type zapLogger struct {
	l *zap.SugaredLogger
}

func (z *zapLogger) Errorf(format string, args ...any)   { z.l.Errorf(format, args...) }
func (z *zapLogger) Warningf(format string, args ...any) { z.l.Warnf(format, args...) }
func (z *zapLogger) Infof(format string, args ...any)    { z.l.Debugf(format, args...) }
func (z *zapLogger) Debugf(format string, args ...any)   { z.l.Debugf(format, args...) }
