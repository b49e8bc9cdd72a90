// Package outbox is a durable, ordered queue of order events kept in a local
// pebble store until the relay has delivered them.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/app"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

var (
	prefix     = []byte("event/")
	upperBound = []byte("event0") // '0' sorts right after '/'
)

// Entry is one pending event.
type Entry struct {
	Seq      uint64            `json:"-"`
	Event    domain.OrderEvent `json:"event"`
	Attempts uint32            `json:"attempts"`
}

type Store struct {
	db *pebble.DB

	mu  sync.Mutex
	seq uint64
}

var _ app.EventPublisher = (*Store)(nil)

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	s := &Store{db: db}
	last, err := s.lastSeq()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.seq = last
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Publish appends the event. It satisfies app.EventPublisher.
func (s *Store) Publish(_ context.Context, ev domain.OrderEvent) error {
	_, err := s.Append(ev)
	return err
}

// Append stores ev under the next sequence number and syncs to disk.
func (s *Store) Append(ev domain.OrderEvent) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seq + 1
	val, err := json.Marshal(Entry{Event: ev})
	if err != nil {
		return 0, fmt.Errorf("encode outbox entry: %w", err)
	}
	if err := s.db.Set(keyFor(seq), val, pebble.Sync); err != nil {
		return 0, fmt.Errorf("append outbox entry: %w", err)
	}
	s.seq = seq
	return seq, nil
}

// Pending returns up to limit entries in append order.
func (s *Store) Pending(limit int) ([]Entry, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Entry
	for iter.First(); iter.Valid() && (limit <= 0 || len(out) < limit); iter.Next() {
		e, err := decode(iter.Key(), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

// Ack removes a delivered entry.
func (s *Store) Ack(seq uint64) error {
	return s.db.Delete(keyFor(seq), pebble.Sync)
}

// MarkFailed bumps the attempt counter of an entry that could not be delivered.
func (s *Store) MarkFailed(seq uint64) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyFor(seq)
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	e, err := decode(key, val)
	closer.Close()
	if err != nil {
		return 0, err
	}

	e.Attempts++
	next, err := json.Marshal(e)
	if err != nil {
		return 0, err
	}
	return e.Attempts, s.db.Set(key, next, pebble.Sync)
}

func (s *Store) lastSeq() (uint64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// key layout: "event/" + big-endian uint64, so byte order is append order.
func keyFor(seq uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], seq)
	return k
}

func parseKey(k []byte) (uint64, error) {
	if len(k) != len(prefix)+8 {
		return 0, fmt.Errorf("invalid outbox key %q", k)
	}
	return binary.BigEndian.Uint64(k[len(prefix):]), nil
}

func decode(key, val []byte) (Entry, error) {
	seq, err := parseKey(key)
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return Entry{}, fmt.Errorf("decode outbox entry %d: %w", seq, err)
	}
	e.Seq = seq
	return e, nil
}
