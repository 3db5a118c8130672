package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/domain"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]*domain.Record
	// failOn makes Save fail for one product; tests use it to break a reservation midway.
	failOn map[string]error
}

func NewStore() *Store {
	return &Store{records: map[string]*domain.Record{}, failOn: map[string]error{}}
}

func (s *Store) FailSaveOf(productID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, productID)
		return
	}
	s.failOn[productID] = err
}

func (s *Store) Save(_ context.Context, r *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[r.ProductID]; err != nil {
		return err
	}
	s.records[r.ProductID] = r.Clone()
	return nil
}

func (s *Store) FindByProductID(_ context.Context, productID string) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.Clone(), nil
}

// FindAll returns records ordered by product id.
func (s *Store) FindAll(_ context.Context) ([]*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
