// SPDX-License-Identifier: GPL-2.0-or-later

// Package catalog indexes finished recordings.
package catalog

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/blake2b"
)

const bucketName = "recordings"

// Track summary.
type Track struct {
	Handler      string        `json:"handler"`
	Codec        string        `json:"codec"`
	SampleCount  int           `json:"sampleCount"`
	Duration     time.Duration `json:"duration"`
	Width        int           `json:"width,omitempty"`
	Height       int           `json:"height,omitempty"`
	ChannelCount int           `json:"channelCount,omitempty"`
	SampleRate   int           `json:"sampleRate,omitempty"`
}

// Recording is a catalog entry.
type Recording struct {
	Path   string    `json:"path"`
	Size   int64     `json:"size"`
	Digest string    `json:"digest"` // Hex BLAKE2b-256.
	Added  time.Time `json:"added"`
	Tracks []Track   `json:"tracks"`
}

// Errors.
var (
	ErrNotFound = errors.New("recording not found")
	ErrModified = errors.New("recording was modified")
)

// Catalog of recordings stored in a bbolt database.
type Catalog struct {
	db *bolt.DB
}

// Open opens or creates the catalog database.
func Open(path string) (*Catalog, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w: %v", err, path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create bucket: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Digest returns the BLAKE2b-256 hex digest and the size of a file.
func Digest(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, file)
	if err != nil {
		return "", 0, fmt.Errorf("read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Add hashes the file at path and stores the entry,
// replacing any entry with the same path.
func (c *Catalog) Add(path string, tracks []Track) (*Recording, error) {
	digest, size, err := Digest(path)
	if err != nil {
		return nil, fmt.Errorf("digest: %w", err)
	}

	rec := Recording{
		Path:   path,
		Size:   size,
		Digest: digest,
		Added:  time.Now().UTC(),
		Tracks: tracks,
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(path), value)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get returns the entry for path.
func (c *Catalog) Get(path string) (*Recording, error) {
	var rec Recording
	err := c.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket([]byte(bucketName)).Get([]byte(path))
		if value == nil {
			return fmt.Errorf("%w: %v", ErrNotFound, path)
		}
		return json.Unmarshal(value, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the entry for path.
func (c *Catalog) Delete(path string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b.Get([]byte(path)) == nil {
			return fmt.Errorf("%w: %v", ErrNotFound, path)
		}
		return b.Delete([]byte(path))
	})
}

// List returns all entries, most recently added first.
func (c *Catalog) List() ([]Recording, error) {
	var recs []Recording
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(_, value []byte) error {
			var rec Recording
			if err := json.Unmarshal(value, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Added.After(recs[j].Added)
	})
	return recs, nil
}

// Verify checks that the file still matches its entry.
func (c *Catalog) Verify(path string) error {
	rec, err := c.Get(path)
	if err != nil {
		return err
	}
	digest, size, err := Digest(path)
	if err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	if digest != rec.Digest || size != rec.Size {
		return fmt.Errorf("%w: %v", ErrModified, path)
	}
	return nil
}
