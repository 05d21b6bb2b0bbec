// Package state keeps the small amount of bookkeeping that is not part of the
// configuration document: whether the site was ever configured, and a log of
// what each save did.
package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	metaBucket   = []byte("meta")
	eventsBucket = []byte("events")
	snapshotKey  = []byte("snapshot")
)

// MaxEvents bounds the event log; older events are dropped on append.
const MaxEvents = 500

type Snapshot struct {
	Configured   bool      `json:"configured"`
	ConfiguredAt time.Time `json:"configured_at,omitempty"`
	LastSavedAt  time.Time `json:"last_saved_at,omitempty"`
	Saves        int       `json:"saves"`
}

type Event struct {
	Seq     uint64          `json:"seq"`
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type BBoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

func OpenBBolt(path string) (*BBoltStore, error) {
	if path == "" {
		return nil, errors.New("bbolt path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir state dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{metaBucket, eventsBucket} {
			if _, e := tx.CreateBucketIfNotExists(name); e != nil {
				return e
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BBoltStore{db: db, now: time.Now}, nil
}

func (s *BBoltStore) Close() error {
	return s.db.Close()
}

// Snapshot returns the stored snapshot, or the zero value if none was written.
func (s *BBoltStore) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(snapshotKey)
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &snap)
	})
	return snap, err
}

// MarkConfigured records a successful configuration save at t. The first
// call fixes ConfiguredAt.
func (s *BBoltStore) MarkConfigured(t time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(metaBucket)
		var snap Snapshot
		if v := bkt.Get(snapshotKey); v != nil {
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
		}
		if !snap.Configured {
			snap.Configured = true
			snap.ConfiguredAt = t
		}
		snap.LastSavedAt = t
		snap.Saves++
		return putJSON(bkt, snapshotKey, snap)
	})
}

// AppendEvent stores payload as JSON under the next sequence number.
func (s *BBoltStore) AppendEvent(kind string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", kind, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(eventsBucket)
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		ev := Event{Seq: seq, ID: uuid.NewString(), Kind: kind, At: s.now().UTC(), Payload: raw}
		if err := putJSON(bkt, seqKey(seq), ev); err != nil {
			return err
		}
		return trim(bkt, seq, MaxEvents)
	})
}

// Events returns up to limit events, newest first. limit <= 0 returns all.
func (s *BBoltStore) Events(limit int) ([]Event, error) {
	var out []Event
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(eventsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var ev Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("decode event %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

// trim drops events at or below seq-keep.
func trim(bkt *bolt.Bucket, seq uint64, keep int) error {
	if seq <= uint64(keep) {
		return nil
	}
	cutoff := seq - uint64(keep)
	var stale [][]byte
	c := bkt.Cursor()
	for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= cutoff; k, _ = c.Next() {
		stale = append(stale, append([]byte(nil), k...))
	}
	for _, k := range stale {
		if err := bkt.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func seqKey(seq uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return buf[:]
}

func putJSON(b *bolt.Bucket, k []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(k, data)
}
