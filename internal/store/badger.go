package store

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/veristream/callshield/internal/detection"
)

// Key prefixes. Alerts are additionally indexed under their session so
// ListAlerts is a prefix scan rather than a full iteration.
const (
	prefixSession      = "session/"
	prefixResult       = "result/"
	prefixAlert        = "alert/"
	prefixSessionAlert = "session-alert/"
)

// BadgerStore persists records in an embedded Badger database with msgpack
// encoding
type BadgerStore struct {
	db *badger.DB
}

var _ detection.Store = (*BadgerStore)(nil)

// Options configures the store
type Options struct {
	Dir      string
	InMemory bool // Volatile store for development and tests
}

// Open creates or opens a Badger-backed store
func Open(opts Options) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) SaveSession(sess *detection.Session) error {
	return s.put(prefixSession+sess.ID, sess)
}

func (s *BadgerStore) GetSession(id string) (*detection.Session, error) {
	var sess detection.Session
	if err := s.get(prefixSession+id, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *BadgerStore) SaveResult(r *detection.Result) error {
	return s.put(prefixResult+r.CallID, r)
}

func (s *BadgerStore) GetResult(callID string) (*detection.Result, error) {
	var r detection.Result
	if err := s.get(prefixResult+callID, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BadgerStore) SaveAlert(a *detection.AlertEvent) error {
	payload, err := msgpack.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixAlert+a.ID), payload); err != nil {
			return err
		}
		return txn.Set([]byte(prefixSessionAlert+a.SessionID+"/"+a.ID), payload)
	})
}

func (s *BadgerStore) GetAlert(id string) (*detection.AlertEvent, error) {
	var a detection.AlertEvent
	if err := s.get(prefixAlert+id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAlerts returns all alerts raised during a session, in key order
func (s *BadgerStore) ListAlerts(sessionID string) ([]*detection.AlertEvent, error) {
	var alerts []*detection.AlertEvent
	prefix := []byte(prefixSessionAlert + sessionID + "/")

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var a detection.AlertEvent
				if err := msgpack.Unmarshal(val, &a); err != nil {
					return fmt.Errorf("failed to decode alert: %w", err)
				}
				alerts = append(alerts, &a)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

// AcknowledgeAlert marks an alert as seen by the user
func (s *BadgerStore) AcknowledgeAlert(id string, at time.Time) error {
	a, err := s.GetAlert(id)
	if err != nil {
		return err
	}
	a.Acknowledged = true
	a.AcknowledgedAt = at
	return s.SaveAlert(a)
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) put(key string, v interface{}) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	})
}

func (s *BadgerStore) get(key string, v interface{}) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}
