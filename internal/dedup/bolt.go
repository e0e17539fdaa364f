package dedup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var seenBucket = []byte("seen_articles")

// BoltStore keeps the Seen-Set in a local bbolt file as id -> RFC3339 first-seen time.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBolt opens (creating if needed) the bbolt file at path.
func OpenBolt(path string, timeout time.Duration) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt path is empty")
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, unavailable("create store dir", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, unavailable("open bolt", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(seenBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, unavailable("create bucket", err)
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) HasSeen(ctx context.Context, id string) (bool, error) {
	if err := validID(id); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var seen bool
	err := s.db.View(func(tx *bolt.Tx) error {
		seen = tx.Bucket(seenBucket).Get([]byte(id)) != nil
		return nil
	})
	if err != nil {
		return false, unavailable("read seen", err)
	}
	return seen, nil
}

func (s *BoltStore) MarkSeen(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(seenBucket)
		if b.Get([]byte(id)) != nil {
			return nil
		}
		return b.Put([]byte(id), []byte(s.now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return unavailable("mark seen", err)
	}
	return nil
}

func (s *BoltStore) FirstSeen(ctx context.Context, id string) (time.Time, bool, error) {
	if err := validID(id); err != nil {
		return time.Time{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(seenBucket).Get([]byte(id)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return time.Time{}, false, unavailable("read seen", err)
	}
	if raw == nil {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339, string(raw))
	if err != nil {
		return time.Time{}, true, fmt.Errorf("parse first-seen time for %s: %w", id, err)
	}
	return ts, true, nil
}

// Count returns the number of recorded ids.
func (s *BoltStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(seenBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, unavailable("count seen", err)
	}
	return n, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
