package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crm-backend/models"
	"crm-backend/services"
)

var _ services.CustomerStore = (*CustomerStore)(nil)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const searchCondition = `first_name ILIKE @q OR last_name ILIKE @q OR email ILIKE @q OR phone ILIKE @q ` +
	`OR company ILIKE @q OR street ILIKE @q OR city ILIKE @q OR postal_code ILIKE @q OR country ILIKE @q`

// CustomerStore persists customers in Postgres through GORM.
type CustomerStore struct {
	db *gorm.DB
}

func NewCustomerStore(db *gorm.DB) *CustomerStore {
	return &CustomerStore{db: db}
}

func (s *CustomerStore) FindByID(ctx context.Context, id string) (*models.Customer, error) {
	// Non-UUID ids cannot match and would make Postgres reject the query.
	if _, err := uuid.Parse(id); err != nil {
		return nil, services.ErrNotFound
	}
	var c models.Customer
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err, "find customer")
	}
	return &c, nil
}

func (s *CustomerStore) FindByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var c models.Customer
	if err := s.db.WithContext(ctx).Where("email = ?", email).Take(&c).Error; err != nil {
		return nil, translate(err, "find customer by email")
	}
	return &c, nil
}

func (s *CustomerStore) Insert(ctx context.Context, customer *models.Customer) error {
	if err := s.db.WithContext(ctx).Create(customer).Error; err != nil {
		return translate(err, "insert customer")
	}
	return nil
}

func (s *CustomerStore) Update(ctx context.Context, id string, changes map[string]any) (*models.Customer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, services.ErrNotFound
	}
	var out models.Customer
	res := s.db.WithContext(ctx).
		Model(&out).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(changes)
	if res.Error != nil {
		return nil, translate(res.Error, "update customer")
	}
	if res.RowsAffected == 0 {
		return nil, services.ErrNotFound
	}
	return &out, nil
}

func (s *CustomerStore) Delete(ctx context.Context, id string) (*models.Customer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, services.ErrNotFound
	}
	var out models.Customer
	res := s.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Delete(&out)
	if res.Error != nil {
		return nil, translate(res.Error, "delete customer")
	}
	if res.RowsAffected == 0 {
		return nil, services.ErrNotFound
	}
	return &out, nil
}

func (s *CustomerStore) List(ctx context.Context) ([]models.Customer, error) {
	customers := make([]models.Customer, 0)
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&customers).Error; err != nil {
		return nil, translate(err, "list customers")
	}
	return customers, nil
}

func (s *CustomerStore) Search(ctx context.Context, query string) ([]models.Customer, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"
	customers := make([]models.Customer, 0)
	if err := s.db.WithContext(ctx).
		Where(searchCondition, sql.Named("q", pattern)).
		Order("created_at DESC").
		Order("id DESC").
		Find(&customers).Error; err != nil {
		return nil, translate(err, "search customers")
	}
	return customers, nil
}

func (s *CustomerStore) WithinTx(ctx context.Context, fn func(tx services.CustomerStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&CustomerStore{db: tx})
	})
}

func translate(err error, op string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return services.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return services.ErrDuplicateEmail
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
