// Package store persists diagnosis history in a bolt database.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/krau/cropdoctor/service"
)

var historyBucket = []byte("diagnosis_history")

type Record struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	ImagePath string            `json:"image_path"`
	Language  string            `json:"language,omitempty"`
	Diagnosis service.Diagnosis `json:"diagnosis"`
	CreatedAt time.Time         `json:"created_at"`
}

type History struct {
	db *bolt.DB
}

func Open(path string) (*History, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(historyBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history bucket: %w", err)
	}
	return &History{db: db}, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

// key sorts records by creation time; the uuid keeps keys unique.
func key(r Record) []byte {
	return []byte(fmt.Sprintf("%020d-%s", r.CreatedAt.UnixNano(), r.ID))
}

func (h *History) Add(r Record) (Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return Record{}, err
	}
	err = h.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(historyBucket).Put(key(r), data)
	})
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

// List returns a user's records, newest first. A limit of zero or less means
// no limit.
func (h *History) List(userID string, limit int) ([]Record, error) {
	var out []Record
	err := h.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(historyBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			if r.UserID != userID {
				continue
			}
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Latest returns the most recent diagnosis of a user, if any.
func (h *History) Latest(userID string) (Record, bool, error) {
	rs, err := h.List(userID, 1)
	if err != nil || len(rs) == 0 {
		return Record{}, false, err
	}
	return rs[0], true, nil
}
