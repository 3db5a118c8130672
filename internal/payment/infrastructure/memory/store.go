package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dmehra2102/order-fulfillment/internal/payment/domain"
)

type Store struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Payment
	byOrder map[string]string
	byKey   map[string]string
}

func NewStore() *Store {
	return &Store{
		byID:    map[string]*domain.Payment{},
		byOrder: map[string]string{},
		byKey:   map[string]string{},
	}
}

// Save inserts or updates p. Another payment holding the same order or key is a conflict.
func (s *Store) Save(_ context.Context, p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byOrder[p.OrderID]; ok && id != p.ID {
		return domain.ErrConflict
	}
	if id, ok := s.byKey[p.IdempotencyKey]; ok && id != p.ID {
		return domain.ErrConflict
	}
	s.byID[p.ID] = p.Clone()
	s.byOrder[p.OrderID] = p.ID
	s.byKey[p.IdempotencyKey] = p.ID
	return nil
}

func (s *Store) FindByOrderID(_ context.Context, orderID string) (*domain.Payment, error) {
	return s.lookup(s.byOrder, orderID)
}

func (s *Store) FindByIdempotencyKey(_ context.Context, key string) (*domain.Payment, error) {
	return s.lookup(s.byKey, key)
}

func (s *Store) lookup(index map[string]string, k string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := index[k]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) ExistsByOrderID(_ context.Context, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byOrder[orderID]
	return ok, nil
}

func (s *Store) FindByCustomer(_ context.Context, customerID string) ([]*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Payment
	for _, p := range s.byID {
		if p.CustomerID == customerID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
