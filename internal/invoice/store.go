package invoice

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Chainvoice-tech/chainvoice-gateway/internal/storage"
)

// ErrNotFound is returned when no invoice exists under the given id.
var ErrNotFound = errors.New("invoice not found")

var invoicePrefix = []byte("i/")

// Store persists invoices as JSON records in a namespaced region of
// the underlying database.
type Store struct {
	db storage.DB
}

// NewStore wraps db with the invoice namespace.
func NewStore(db storage.DB) *Store {
	return &Store{db: storage.NewPrefixDB(db, invoicePrefix)}
}

// Get loads an invoice by id. Returns ErrNotFound for unknown ids.
func (s *Store) Get(id string) (*Invoice, error) {
	raw, err := s.db.Get([]byte(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load invoice %s: %w", id, err)
	}
	var inv Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("decode invoice %s: %w", id, err)
	}
	return &inv, nil
}

// Put writes the invoice record, replacing any prior version.
func (s *Store) Put(inv *Invoice) error {
	raw, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invoice %s: %w", inv.ID, err)
	}
	if err := s.db.Put([]byte(inv.ID), raw); err != nil {
		return fmt.Errorf("store invoice %s: %w", inv.ID, err)
	}
	return nil
}

// Has reports whether an invoice exists under id.
func (s *Store) Has(id string) (bool, error) {
	return s.db.Has([]byte(id))
}

// ListActive returns every invoice whose status is non-terminal.
// Reconciliation sweeps feed these ids back through the Monitor.
func (s *Store) ListActive() ([]*Invoice, error) {
	var out []*Invoice
	err := s.db.ForEach(nil, func(key, value []byte) error {
		var inv Invoice
		if err := json.Unmarshal(value, &inv); err != nil {
			return fmt.Errorf("decode invoice %s: %w", key, err)
		}
		if !inv.Status.Terminal() {
			out = append(out, &inv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
