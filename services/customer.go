package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crm-backend/models"
	"crm-backend/utils"
)

// CustomerStore is the persistence collaborator behind CustomerService.
//
// FindByID, FindByEmail, Update and Delete return ErrNotFound when no row matches.
// Insert and Update return ErrDuplicateEmail when the store's uniqueness
// constraint on email rejects the write.
type CustomerStore interface {
	FindByID(ctx context.Context, id string) (*models.Customer, error)
	FindByEmail(ctx context.Context, email string) (*models.Customer, error)
	Insert(ctx context.Context, customer *models.Customer) error
	Update(ctx context.Context, id string, changes map[string]any) (*models.Customer, error)
	Delete(ctx context.Context, id string) (*models.Customer, error)
	List(ctx context.Context) ([]models.Customer, error)
	Search(ctx context.Context, query string) ([]models.Customer, error)
	// WithinTx runs fn against a store bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx CustomerStore) error) error
}

// Option configures a CustomerService.
type Option func(*CustomerService)

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *CustomerService) {
		s.now = now
	}
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *CustomerService) {
		s.log = l
	}
}

// CustomerService holds the business rules for customer records.
// It keeps no per-request state and is safe for concurrent use.
type CustomerService struct {
	store CustomerStore
	now   func() time.Time
	log   zerolog.Logger
}

func NewCustomerService(store CustomerStore, opts ...Option) *CustomerService {
	s := &CustomerService{
		store: store,
		now:   defaultNow,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Postgres keeps microseconds.
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Create validates in and inserts a new customer with a unique email.
func (s *CustomerService) Create(ctx context.Context, in CreateCustomerInput) (*models.Customer, error) {
	utils.NormalizeDTO(&in)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var created *models.Customer
	err := s.store.WithinTx(ctx, func(tx CustomerStore) error {
		if err := ensureEmailFree(ctx, tx, in.Email, ""); err != nil {
			return err
		}

		customer := in.customer()
		now := s.now()
		customer.CreatedAt = now
		customer.UpdatedAt = now
		if err := tx.Insert(ctx, customer); err != nil {
			return err
		}
		created = customer
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("customer_id", created.ID).Msg("customer created")
	return created, nil
}

// GetByID returns the customer with the given id.
func (s *CustomerService) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	return s.store.FindByID(ctx, id)
}

// Update applies the fields present in in to the customer with the given id.
func (s *CustomerService) Update(ctx context.Context, id string, in UpdateCustomerInput) (*models.Customer, error) {
	utils.NormalizePtrDTO(&in)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	var updated *models.Customer
	err := s.store.WithinTx(ctx, func(tx CustomerStore) error {
		existing, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if in.Email != nil {
			if err := ensureEmailFree(ctx, tx, *in.Email, id); err != nil {
				return err
			}
		}

		changes := utils.UpdatesFromPtrDTO(&in, "db")
		for _, col := range []string{"company", "notes"} {
			if v, ok := changes[col]; ok && v == "" {
				changes[col] = nil
			}
		}
		now := s.now()
		if now.Before(existing.UpdatedAt) {
			now = existing.UpdatedAt
		}
		changes["updated_at"] = now

		updated, err = tx.Update(ctx, id, changes)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("customer_id", id).Msg("customer updated")
	return updated, nil
}

// Delete removes the customer with the given id and returns its last state.
func (s *CustomerService) Delete(ctx context.Context, id string) (*models.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	var deleted *models.Customer
	err := s.store.WithinTx(ctx, func(tx CustomerStore) error {
		if _, err := tx.FindByID(ctx, id); err != nil {
			return err
		}
		var err error
		deleted, err = tx.Delete(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("customer_id", id).Msg("customer deleted")
	return deleted, nil
}

// List returns every customer, newest first.
func (s *CustomerService) List(ctx context.Context) ([]models.Customer, error) {
	return s.store.List(ctx)
}

// Search returns customers whose text fields contain query, ignoring case.
// A blank query behaves like List.
func (s *CustomerService) Search(ctx context.Context, query string) ([]models.Customer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(ctx)
	}
	return s.store.Search(ctx, query)
}

// ensureEmailFree fails with ErrDuplicateEmail when email belongs to a customer
// other than ownerID.
func ensureEmailFree(ctx context.Context, store CustomerStore, email, ownerID string) error {
	other, err := store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case other.ID != ownerID:
		return ErrDuplicateEmail
	default:
		return nil
	}
}
