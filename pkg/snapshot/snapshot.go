// Package snapshot persists plate state outside the actor graph entirely:
// a Writer subscribes to plate.* events on the event bus and, on every
// one, pulls the plate's current state from the coordinator and stores a
// revisioned copy in a bbolt database. It exists purely for external
// inspection and crash-forensics (what did plate-42 look like five
// minutes before the process died); nothing in the running system reads
// it back, so a missing or stale snapshot store never affects scheduling.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Boticus-OG/Titan/pkg/coordinator"
	"github.com/Boticus-OG/Titan/pkg/eventbus"
	"github.com/Boticus-OG/Titan/pkg/types"
)

var bucketPlateSnapshots = []byte("plate_snapshots")

// Record is one revisioned plate-state snapshot.
type Record struct {
	PlateID   string           `json:"plate_id"`
	Revision  int              `json:"revision"`
	State     types.PlateState `json:"state"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store is a bbolt-backed key-value store of plate snapshots, one bucket
// entry per plate ID holding its most recent revision.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt database at dataDir/titan-snapshots.db
// and ensures its bucket exists.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "titan-snapshots.db")
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPlateSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: creating bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a new revision of a plate's state, overwriting any prior
// revision for the same plate ID.
func (s *Store) Put(plateID string, state types.PlateState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlateSnapshots)

		rec := Record{PlateID: plateID, State: state, UpdatedAt: time.Now()}
		if existing := b.Get([]byte(plateID)); existing != nil {
			var prev Record
			if err := json.Unmarshal(existing, &prev); err == nil {
				rec.Revision = prev.Revision + 1
			}
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling snapshot for %q: %w", plateID, err)
		}
		return b.Put([]byte(plateID), data)
	})
}

// Get returns the most recent snapshot stored for a plate.
func (s *Store) Get(plateID string) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlateSnapshots)
		data := b.Get([]byte(plateID))
		if data == nil {
			return fmt.Errorf("snapshot: no record for plate %q", plateID)
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

// List returns every stored plate snapshot.
func (s *Store) List() ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlateSnapshots)
		return b.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

// Writer subscribes to plate.* events and writes a fresh snapshot to a
// Store every time one fires.
type Writer struct {
	store *Store
	coord *coordinator.Coordinator

	mu    sync.Mutex
	unsub eventbus.UnsubscribeHandle
}

// NewWriter builds a Writer; call Start to begin subscribing.
func NewWriter(store *Store, coord *coordinator.Coordinator) *Writer {
	return &Writer{store: store, coord: coord}
}

// Start subscribes to plate.* on the coordinator's bus. Each event pulls
// the named plate's current state and writes it to the store; a plate
// that is torn down between the event firing and the lookup completing is
// silently skipped.
func (w *Writer) Start() {
	unsub := w.coord.Subscribe("plate.*", func(ev eventbus.Event) {
		plateID, _ := ev.Payload["plate_id"].(string)
		if plateID == "" {
			return
		}
		// Callbacks run under the bus lock, often from inside the publishing
		// plate's own handler, so the plate is asked from a separate goroutine.
		go func() {
			state, err := w.coord.GetPlateState(context.Background(), plateID)
			if err != nil {
				return
			}
			_ = w.store.Put(plateID, state)
		}()
	})

	w.mu.Lock()
	w.unsub = unsub
	w.mu.Unlock()
}

// Stop cancels the subscription.
func (w *Writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unsub != nil {
		w.unsub()
		w.unsub = nil
	}
}
