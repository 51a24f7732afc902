package relaydb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	// dbFileName is the default file name of the relay database.
	dbFileName = "relay.db"

	// cyclesBucketKey is a bucket that contains all stored cycles.
	//
	// maps: time || id -> serialized cycle
	cyclesBucketKey = []byte("cycles")

	// cycleIndexBucketKey maps cycle ids onto their key in the cycles
	// bucket.
	//
	// maps: id -> time || id
	cycleIndexBucketKey = []byte("cycle-index")

	byteOrder = binary.BigEndian

	// ErrCycleNotFound is returned when no cycle with the requested id
	// exists.
	ErrCycleNotFound = errors.New("cycle not found")

	// ErrCycleExists is returned when a cycle id is stored twice.
	ErrCycleExists = errors.New("cycle already stored")
)

const (
	// DefaultOpenTimeout is how long opening the database waits for the
	// file lock held by another process.
	DefaultOpenTimeout = 5 * time.Second

	timeKeyLength  = 8
	cycleKeyLength = timeKeyLength + 16
)

// fileExists returns true if the file exists, and false otherwise.
func fileExists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}

	return true
}

// BoltStore stores relay cycles in boltdb.
type BoltStore struct {
	db *bbolt.DB
}

// A compile-time flag to ensure that BoltStore implements the Store
// interface.
var _ Store = (*BoltStore)(nil)

// NewBoltStore opens or creates the relay database in dbPath.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	// If the target path for the store doesn't exist, then we'll create
	// it now before we proceed.
	if !fileExists(dbPath) {
		if err := os.MkdirAll(dbPath, 0700); err != nil {
			return nil, err
		}
	}

	path := filepath.Join(dbPath, dbFileName)
	bdb, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: DefaultOpenTimeout,
	})
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("%v is locked by another process: %w",
			path, err)
	}
	if err != nil {
		return nil, err
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		// A missing meta bucket means a fresh database that starts at
		// the latest version.
		metaBucket := tx.Bucket(metaBucketKey)
		if metaBucket == nil {
			log.Infof("Initializing new database with version %v",
				latestDBVersion)

			err := setDBVersion(tx, latestDBVersion)
			if err != nil {
				return err
			}

			_, err = tx.CreateBucketIfNotExists(cycleIndexBucketKey)
			if err != nil {
				return err
			}
		}

		_, err := tx.CreateBucketIfNotExists(cyclesBucketKey)

		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}

	// Finally, before we start, we'll sync the DB versions to pick up any
	// possible DB migrations.
	if err := syncVersions(bdb); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return &BoltStore{db: bdb}, nil
}

// cycleKey returns the storage key of a cycle. Keys sort by cycle time.
func cycleKey(cycle *Cycle) []byte {
	key := make([]byte, cycleKeyLength)
	byteOrder.PutUint64(key, uint64(cycle.Time.UnixNano()))
	copy(key[timeKeyLength:], cycle.ID[:])

	return key
}

// AddCycle stores a finished cycle.
//
// NOTE: Part of the Store interface.
func (s *BoltStore) AddCycle(_ context.Context, cycle *Cycle) error {
	value, err := serializeCycle(cycle)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		index := tx.Bucket(cycleIndexBucketKey)
		if index == nil {
			return errors.New("cycle index bucket does not exist")
		}

		if index.Get(cycle.ID[:]) != nil {
			return fmt.Errorf("%w: %v", ErrCycleExists, cycle.ID)
		}

		key := cycleKey(cycle)
		if err := index.Put(cycle.ID[:], key); err != nil {
			return err
		}

		cycles := tx.Bucket(cyclesBucketKey)
		if cycles == nil {
			return errors.New("cycles bucket does not exist")
		}

		log.Debugf("Storing cycle %v (%v)", cycle.ID, cycle.Outcome)

		return cycles.Put(key, value)
	})
}

// FetchCycles returns all stored cycles, oldest first.
//
// NOTE: Part of the Store interface.
func (s *BoltStore) FetchCycles(_ context.Context) ([]*Cycle, error) {
	var cycles []*Cycle

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(cyclesBucketKey)
		if bucket == nil {
			return errors.New("cycles bucket does not exist")
		}

		return bucket.ForEach(func(k, v []byte) error {
			cycle, err := deserializeCycle(v)
			if err != nil {
				return fmt.Errorf("cycle %x: %w", k, err)
			}

			cycles = append(cycles, cycle)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return cycles, nil
}

// FetchCycle returns the cycle with the given id.
//
// NOTE: Part of the Store interface.
func (s *BoltStore) FetchCycle(_ context.Context, id uuid.UUID) (*Cycle,
	error) {

	var cycle *Cycle

	err := s.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket(cycleIndexBucketKey)
		cycles := tx.Bucket(cyclesBucketKey)
		if index == nil || cycles == nil {
			return errors.New("cycle buckets do not exist")
		}

		key := index.Get(id[:])
		if key == nil {
			return ErrCycleNotFound
		}

		value := cycles.Get(key)
		if value == nil {
			return ErrCycleNotFound
		}

		var err error
		cycle, err = deserializeCycle(value)

		return err
	})
	if err != nil {
		return nil, err
	}

	return cycle, nil
}

// Close closes the underlying database.
//
// NOTE: Part of the Store interface.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
