package services

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"crm-backend/models"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9\s\-()]{6,}$`)

var fieldLabels = map[string]string{
	"firstName":  "First name",
	"lastName":   "Last name",
	"email":      "Email",
	"phone":      "Phone number",
	"street":     "Street",
	"city":       "City",
	"postalCode": "Postal code",
	"country":    "Country",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// CreateCustomerInput is the create schema: every business field is required
// except company and notes.
type CreateCustomerInput struct {
	FirstName  string  `json:"firstName" validate:"required"`
	LastName   string  `json:"lastName" validate:"required"`
	Email      string  `json:"email" validate:"required,email"`
	Phone      string  `json:"phone" validate:"required,phone"`
	Street     string  `json:"street" validate:"required"`
	City       string  `json:"city" validate:"required"`
	PostalCode string  `json:"postalCode" validate:"required"`
	Country    string  `json:"country" validate:"required"`
	Company    *string `json:"company,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

// Validate checks the input against the create schema.
func (in CreateCustomerInput) Validate() error {
	return validationError(validate.Struct(in))
}

func (in CreateCustomerInput) customer() *models.Customer {
	return &models.Customer{
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Email:      in.Email,
		Phone:      in.Phone,
		Street:     in.Street,
		City:       in.City,
		PostalCode: in.PostalCode,
		Country:    in.Country,
		Company:    optional(in.Company),
		Notes:      optional(in.Notes),
	}
}

// UpdateCustomerInput is the update schema: the create fields, all optional.
// A nil field is left untouched; a present field must satisfy the create rule.
type UpdateCustomerInput struct {
	FirstName  *string `json:"firstName,omitempty" db:"first_name" validate:"omitempty,min=1"`
	LastName   *string `json:"lastName,omitempty" db:"last_name" validate:"omitempty,min=1"`
	Email      *string `json:"email,omitempty" db:"email" validate:"omitempty,min=1,email"`
	Phone      *string `json:"phone,omitempty" db:"phone" validate:"omitempty,min=1,phone"`
	Street     *string `json:"street,omitempty" db:"street" validate:"omitempty,min=1"`
	City       *string `json:"city,omitempty" db:"city" validate:"omitempty,min=1"`
	PostalCode *string `json:"postalCode,omitempty" db:"postal_code" validate:"omitempty,min=1"`
	Country    *string `json:"country,omitempty" db:"country" validate:"omitempty,min=1"`
	Company    *string `json:"company,omitempty" db:"company"`
	Notes      *string `json:"notes,omitempty" db:"notes"`
}

// Validate checks the input against the update schema.
func (in UpdateCustomerInput) Validate() error {
	return validationError(validate.Struct(in))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = messageFor(fe)
		}
	}
	return &ValidationError{Fields: fields}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "min":
		label, ok := fieldLabels[fe.Field()]
		if !ok {
			label = fe.Field()
		}
		return label + " is required"
	case "email":
		return "Invalid email address"
	case "phone":
		return "Invalid phone number"
	default:
		return "Invalid value"
	}
}

// optional maps an absent or blank optional text to nil.
func optional(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
