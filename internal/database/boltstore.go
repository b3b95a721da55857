// internal/database/boltstore.go - BoltDB device list storage
package database

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	DevicesBucket = []byte("devices")
	MetaBucket    = []byte("meta")

	savedAtKey = []byte("saved_at")
)

type BoltStore struct {
	db   *bbolt.DB
	path string
}

func NewBoltStore(path string) (*BoltStore, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	store := &BoltStore{db: db, path: path}

	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return store, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{DevicesBucket, MetaBucket}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

// Load walks the devices bucket in key order, which is save order.
func (s *BoltStore) Load(ctx context.Context) ([]Device, error) {
	var devices []Device

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(DevicesBucket)
		return b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			var device Device
			if err := json.Unmarshal(v, &device); err != nil {
				return fmt.Errorf("failed to unmarshal device %x: %w", k, err)
			}
			if device.ID == "" {
				device.ID = uuid.New().String()
			}
			device.normalize()

			devices = append(devices, device)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return devices, nil
}

// Save rewrites the devices bucket in a single transaction.
func (s *BoltStore) Save(ctx context.Context, devices []Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(DevicesBucket); err != nil && err != bbolt.ErrBucketNotFound {
			return fmt.Errorf("failed to reset devices bucket: %w", err)
		}
		b, err := tx.CreateBucket(DevicesBucket)
		if err != nil {
			return fmt.Errorf("failed to create devices bucket: %w", err)
		}

		for i := range devices {
			data, err := json.Marshal(&devices[i])
			if err != nil {
				return fmt.Errorf("failed to marshal device: %w", err)
			}

			if err := b.Put(positionKey(uint64(i)), data); err != nil {
				return err
			}
		}

		stamp, err := time.Now().UTC().MarshalText()
		if err != nil {
			return err
		}
		return tx.Bucket(MetaBucket).Put(savedAtKey, stamp)
	})
}

// SavedAt returns the time of the last successful Save, zero if none.
func (s *BoltStore) SavedAt() (time.Time, error) {
	var savedAt time.Time

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(MetaBucket).Get(savedAtKey)
		if v == nil {
			return nil
		}
		return savedAt.UnmarshalText(v)
	})

	return savedAt, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// positionKey encodes big-endian so byte order matches list order.
func positionKey(i uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, i)
	return key
}
