// Package store persists completed overlap results in BadgerDB so the
// daemon can serve session lookups after restart.
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/mitanshubhoot/PP-TIO/protocol"
)

var ErrNotFound = errors.New("store: result not found")

// Record is one archived session outcome.
type Record struct {
	SessionID  string             `json:"session_id"`
	CreatedAt  time.Time          `json:"created_at"`
	M          int                `json:"m"`
	K          int                `json:"k"`
	Phase      string             `json:"phase"`
	FailReason string             `json:"fail_reason,omitempty"`
	Estimate   *protocol.Estimate `json:"estimate,omitempty"`
}

// Store wraps BadgerDB with result-archive methods and metrics.
type Store struct {
	db    *badger.DB
	saves metric.Int64Counter
}

var (
	resultPrefix = []byte("r:")
	timePrefix   = []byte("t:")
)

// Open returns a store rooted at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(filepath.Clean(path)).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	saves, _ := otel.Meter("pptio-go").Int64Counter("pptio_results_archived_total")
	return &Store{db: db, saves: saves}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func resultKey(id string) []byte { return append(append([]byte(nil), resultPrefix...), id...) }

// timeKey orders records chronologically: big-endian nanos sort lexically.
func timeKey(at time.Time, id string) []byte {
	k := make([]byte, len(timePrefix)+8+len(id))
	copy(k, timePrefix)
	binary.BigEndian.PutUint64(k[len(timePrefix):], uint64(at.UnixNano()))
	copy(k[len(timePrefix)+8:], id)
	return k
}

// Save archives a record idempotently: a session's first write wins.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.SessionID == "" {
		return errors.New("store: record missing session id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	enc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := resultKey(rec.SessionID)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, enc); err != nil {
			return err
		}
		if err := txn.Set(timeKey(rec.CreatedAt, rec.SessionID), []byte(rec.SessionID)); err != nil {
			return err
		}
		s.saves.Add(ctx, 1)
		return nil
	})
}

// Get returns the archived record for a session.
func (s *Store) Get(_ context.Context, sessionID string) (*Record, error) {
	var out *Record
	err := s.db.View(func(txn *badger.Txn) error {
		it, err := txn.Get(resultKey(sessionID))
		if err != nil {
			return err
		}
		val, err := it.ValueCopy(nil)
		if err != nil {
			return err
		}
		var rec Record
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		out = &rec
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return out, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids := make([]string, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opt := badger.DefaultIteratorOptions
		opt.Reverse = true
		opt.Prefix = timePrefix
		it := txn.NewIterator(opt)
		defer it.Close()
		// reverse iteration must seek past the prefix range
		seek := append(append([]byte(nil), timePrefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for it.Seek(seek); it.Valid() && len(ids) < limit; it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			ids = append(ids, string(val))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
