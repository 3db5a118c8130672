package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dmehra2102/order-fulfillment/internal/order/domain"
)

// Store keeps orders in process; callers always receive copies.
type Store struct {
	mu       sync.RWMutex
	byID     map[string]*domain.Order
	byNumber map[string]string
}

func NewStore() *Store {
	return &Store{byID: map[string]*domain.Order{}, byNumber: map[string]string{}}
}

func (s *Store) Save(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[o.ID] = o.Clone()
	s.byNumber[o.OrderNumber] = o.ID
	return nil
}

func (s *Store) FindByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

// FindByCustomer returns newest orders first.
func (s *Store) FindByCustomer(_ context.Context, customerID string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Order
	for _, o := range s.byID {
		if o.CustomerID == customerID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ExistsByOrderNumber(_ context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byNumber[number]
	return ok, nil
}
