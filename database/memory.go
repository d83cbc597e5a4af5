package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crm-backend/models"
	"crm-backend/services"
)

var _ services.CustomerStore = (*MemoryCustomerStore)(nil)

// MemoryCustomerStore keeps customers in process memory. It enforces the same
// email uniqueness as the Postgres schema. Transactions are serialised and
// rolled back by restoring a snapshot; reads outside a transaction may observe
// its uncommitted writes.
type MemoryCustomerStore struct {
	mu        sync.RWMutex
	txMu      sync.Mutex
	customers map[string]models.Customer
}

func NewMemoryCustomerStore() *MemoryCustomerStore {
	return &MemoryCustomerStore{customers: make(map[string]models.Customer)}
}

func (s *MemoryCustomerStore) FindByID(_ context.Context, id string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return cloneCustomer(c), nil
}

func (s *MemoryCustomerStore) FindByEmail(_ context.Context, email string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.customers {
		if c.Email == email {
			return cloneCustomer(c), nil
		}
	}
	return nil, services.ErrNotFound
}

func (s *MemoryCustomerStore) Insert(_ context.Context, customer *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	if _, exists := s.customers[customer.ID]; exists {
		return fmt.Errorf("insert customer: duplicate id %s", customer.ID)
	}
	if s.emailTaken(customer.Email, customer.ID) {
		return services.ErrDuplicateEmail
	}
	s.customers[customer.ID] = *cloneCustomer(*customer)
	return nil
}

func (s *MemoryCustomerStore) Update(_ context.Context, id string, changes map[string]any) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	updated := cloneCustomer(c)
	for col, v := range changes {
		set, known := memoryColumns[col]
		if !known {
			return nil, fmt.Errorf("update customer: unknown column %q", col)
		}
		if !set(updated, v) {
			return nil, fmt.Errorf("update customer: invalid value %T for column %q", v, col)
		}
	}
	if s.emailTaken(updated.Email, id) {
		return nil, services.ErrDuplicateEmail
	}
	s.customers[id] = *updated
	return cloneCustomer(*updated), nil
}

func (s *MemoryCustomerStore) Delete(_ context.Context, id string) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	delete(s.customers, id)
	return cloneCustomer(c), nil
}

func (s *MemoryCustomerStore) List(_ context.Context) ([]models.Customer, error) {
	return s.collect(func(models.Customer) bool { return true }), nil
}

func (s *MemoryCustomerStore) Search(_ context.Context, query string) ([]models.Customer, error) {
	q := strings.ToLower(query)
	return s.collect(func(c models.Customer) bool {
		for _, field := range []string{
			c.FirstName, c.LastName, c.Email, c.Phone, c.Street,
			c.City, c.PostalCode, c.Country, derefString(c.Company),
		} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	}), nil
}

func (s *MemoryCustomerStore) WithinTx(_ context.Context, fn func(tx services.CustomerStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := make(map[string]models.Customer, len(s.customers))
	for id, c := range s.customers {
		snapshot[id] = c
	}
	s.mu.RUnlock()

	if err := fn(memoryTx{s}); err != nil {
		s.mu.Lock()
		s.customers = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Len returns the number of stored customers.
func (s *MemoryCustomerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.customers)
}

func (s *MemoryCustomerStore) collect(keep func(models.Customer) bool) []models.Customer {
	s.mu.RLock()
	out := make([]models.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if keep(c) {
			out = append(out, *cloneCustomer(c))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// emailTaken must be called with mu held.
func (s *MemoryCustomerStore) emailTaken(email, ownerID string) bool {
	for id, c := range s.customers {
		if id != ownerID && c.Email == email {
			return true
		}
	}
	return false
}

// memoryTx is the store view handed to WithinTx callbacks; nested
// transactions join the outer one.
type memoryTx struct {
	*MemoryCustomerStore
}

func (t memoryTx) WithinTx(_ context.Context, fn func(tx services.CustomerStore) error) error {
	return fn(t)
}

var memoryColumns = map[string]func(c *models.Customer, v any) bool{
	"first_name":  setString(func(c *models.Customer) *string { return &c.FirstName }),
	"last_name":   setString(func(c *models.Customer) *string { return &c.LastName }),
	"email":       setString(func(c *models.Customer) *string { return &c.Email }),
	"phone":       setString(func(c *models.Customer) *string { return &c.Phone }),
	"street":      setString(func(c *models.Customer) *string { return &c.Street }),
	"city":        setString(func(c *models.Customer) *string { return &c.City }),
	"postal_code": setString(func(c *models.Customer) *string { return &c.PostalCode }),
	"country":     setString(func(c *models.Customer) *string { return &c.Country }),
	"company":     setOptional(func(c *models.Customer) **string { return &c.Company }),
	"notes":       setOptional(func(c *models.Customer) **string { return &c.Notes }),
	"updated_at": func(c *models.Customer, v any) bool {
		t, ok := v.(time.Time)
		if ok {
			c.UpdatedAt = t
		}
		return ok
	},
}

func setString(field func(*models.Customer) *string) func(*models.Customer, any) bool {
	return func(c *models.Customer, v any) bool {
		s, ok := v.(string)
		if ok {
			*field(c) = s
		}
		return ok
	}
}

func setOptional(field func(*models.Customer) **string) func(*models.Customer, any) bool {
	return func(c *models.Customer, v any) bool {
		switch val := v.(type) {
		case nil:
			*field(c) = nil
		case string:
			*field(c) = &val
		case *string:
			*field(c) = cloneString(val)
		default:
			return false
		}
		return true
	}
}

func cloneCustomer(c models.Customer) *models.Customer {
	c.Company = cloneString(c.Company)
	c.Notes = cloneString(c.Notes)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
