// Package schemestore keeps scheme documents in a bbolt file with the
// full history of every document.
package schemestore

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bdlm/log"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/matthewbaird/bindery/internal/scheme"
)

// ErrNotFound is returned for unknown documents or versions.
var ErrNotFound = errors.New("scheme document not found")

const bucketSchemes = "schemes"

// Store is a versioned scheme document cache.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open scheme store %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSchemes))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialize scheme store")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put validates data and stores it as the next version of name.
func (s *Store) Put(name string, data []byte) (int, error) {
	if name == "" {
		return 0, errors.New("put scheme: empty name")
	}
	if _, err := scheme.Parse(data); err != nil {
		return 0, errors.Wrapf(err, "put scheme %s", name)
	}
	var seq uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket([]byte(bucketSchemes)).CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return err
		}
		if seq, err = b.NextSequence(); err != nil {
			return err
		}
		return b.Put(marshalSeq(seq), data)
	})
	if err != nil {
		return 0, errors.Wrapf(err, "put scheme %s", name)
	}
	return int(seq), nil
}

// Get returns the latest version of name and its number.
func (s *Store) Get(name string) ([]byte, int, error) {
	var (
		data []byte
		seq  uint64
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSchemes)).Bucket([]byte(name))
		if b == nil {
			return ErrNotFound
		}
		k, v := b.Cursor().Last()
		if k == nil {
			return ErrNotFound
		}
		seq, data = unmarshalSeq(k), append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, 0, errors.Wrapf(err, "get scheme %s", name)
	}
	return data, int(seq), nil
}

// Version returns one version of name.
func (s *Store) Version(name string, version int) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSchemes)).Bucket([]byte(name))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get(marshalSeq(uint64(version)))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get scheme %s@%d", name, version)
	}
	return data, nil
}

// Versions lists the stored version numbers of name, oldest first.
func (s *Store) Versions(name string) ([]int, error) {
	var out []int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSchemes)).Bucket([]byte(name))
		if b == nil {
			return ErrNotFound
		}
		return b.ForEach(func(k, _ []byte) error {
			out = append(out, int(unmarshalSeq(k)))
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "versions of scheme %s", name)
	}
	return out, nil
}

// Names lists the stored documents in key order.
func (s *Store) Names() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSchemes)).ForEach(func(k, v []byte) error {
			if v == nil {
				out = append(out, string(k))
			}
			return nil
		})
	})
	return out, err
}

// Delete removes name with its history.
func (s *Store) Delete(name string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket([]byte(bucketSchemes)).DeleteBucket([]byte(name))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return ErrNotFound
		}
		return err
	})
	return errors.Wrapf(err, "delete scheme %s", name)
}

// Load parses the latest version of name.
func (s *Store) Load(name string) (*scheme.Document, error) {
	data, _, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	return scheme.Parse(data)
}

// ImportDir stores every *.json file of dir under its base name, skipping
// files whose content equals the latest stored version. Invalid files are
// logged and skipped.
func (s *Store) ImportDir(dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, errors.Wrap(err, "import schemes")
	}
	n := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return n, errors.Wrapf(err, "import %s", path)
		}
		name := strings.TrimSuffix(filepath.Base(path), ".json")
		if latest, _, err := s.Get(name); err == nil && string(latest) == string(data) {
			continue
		}
		if _, err := s.Put(name, data); err != nil {
			log.WithFields(log.Fields{"file": path, "err": err}).Warn("schemestore: skipping invalid scheme")
			continue
		}
		n++
	}
	return n, nil
}

func marshalSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func unmarshalSeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
