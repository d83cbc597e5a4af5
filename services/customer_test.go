package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/database"
	"crm-backend/models"
	"crm-backend/services"
)

// stepClock advances by one second on every call.
type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newService(t *testing.T) (*services.CustomerService, *database.MemoryCustomerStore, *stepClock) {
	t.Helper()

	store := database.NewMemoryCustomerStore()
	clock := &stepClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	return services.NewCustomerService(store, services.WithClock(clock.Now)), store, clock
}

func johnDoe() services.CreateCustomerInput {
	return services.CreateCustomerInput{
		FirstName:  "John",
		LastName:   "Doe",
		Email:      "john@example.com",
		Phone:      "+31 6 1234 5678",
		Street:     "Main St 1",
		City:       "Amsterdam",
		PostalCode: "1234 AB",
		Country:    "NL",
	}
}

func strPtr(s string) *string { return &s }

func TestCreate_JohnDoe(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, johnDoe())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "John", created.FirstName)
	assert.Equal(t, "john@example.com", created.Email)
	assert.Nil(t, created.Company)
	assert.Nil(t, created.Notes)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestCreate_TrimsAndDropsBlankOptionals(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)

	in := johnDoe()
	in.FirstName = "  John "
	in.Company = strPtr("   ")
	in.Notes = strPtr(" VIP ")

	created, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "John", created.FirstName)
	assert.Nil(t, created.Company)
	require.NotNil(t, created.Notes)
	assert.Equal(t, "VIP", *created.Notes)
}

func TestCreate_Validation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		scenario string
		mutate   func(in *services.CreateCustomerInput)
		expected map[string]string
	}{
		{
			scenario: "missing first name",
			mutate:   func(in *services.CreateCustomerInput) { in.FirstName = "" },
			expected: map[string]string{"firstName": "First name is required"},
		},
		{
			scenario: "whitespace only city",
			mutate:   func(in *services.CreateCustomerInput) { in.City = "   " },
			expected: map[string]string{"city": "City is required"},
		},
		{
			scenario: "invalid email",
			mutate:   func(in *services.CreateCustomerInput) { in.Email = "not-an-email" },
			expected: map[string]string{"email": "Invalid email address"},
		},
		{
			scenario: "invalid phone",
			mutate:   func(in *services.CreateCustomerInput) { in.Phone = "abc" },
			expected: map[string]string{"phone": "Invalid phone number"},
		},
		{
			scenario: "several fields",
			mutate: func(in *services.CreateCustomerInput) {
				in.LastName = ""
				in.Country = ""
			},
			expected: map[string]string{
				"lastName": "Last name is required",
				"country":  "Country is required",
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			svc, store, _ := newService(t)

			in := johnDoe()
			tc.mutate(&in)

			_, err := svc.Create(context.Background(), in)

			var ve *services.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.expected, ve.Fields)
			assert.Equal(t, services.KindValidation, services.KindOf(err))
			assert.Zero(t, store.Len())
		})
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	t.Parallel()
	svc, store, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, johnDoe())
	require.NoError(t, err)

	other := johnDoe()
	other.FirstName = "Jane"
	_, err = svc.Create(ctx, other)

	assert.ErrorIs(t, err, services.ErrDuplicateEmail)
	assert.Equal(t, 1, store.Len())
}

func TestGetByID_NotFound(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)

	for _, id := range []string{"", "  ", "00000000-0000-0000-0000-000000000000", "nope"} {
		_, err := svc.GetByID(context.Background(), id)
		assert.ErrorIs(t, err, services.ErrNotFound, "id %q", id)
	}
}

func TestUpdate_Partial(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)
	ctx := context.Background()

	in := johnDoe()
	in.Company = strPtr("Acme")
	created, err := svc.Create(ctx, in)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, services.UpdateCustomerInput{City: strPtr(" Utrecht ")})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Utrecht", updated.City)
	assert.Equal(t, created.FirstName, updated.FirstName)
	assert.Equal(t, created.Email, updated.Email)
	assert.Equal(t, created.Company, updated.Company)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}

func TestUpdate_ClearsOptionalWithEmptyString(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)
	ctx := context.Background()

	in := johnDoe()
	in.Notes = strPtr("call back")
	created, err := svc.Create(ctx, in)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, services.UpdateCustomerInput{Notes: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, updated.Notes)
}

func TestUpdate_EmptyRequiredFieldIsRejected(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, johnDoe())
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.ID, services.UpdateCustomerInput{FirstName: strPtr("  ")})

	var ve *services.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, map[string]string{"firstName": "First name is required"}, ve.Fields)

	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "John", got.FirstName)
}

func TestUpdate_EmailUniqueness(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)
	ctx := context.Background()

	john, err := svc.Create(ctx, johnDoe())
	require.NoError(t, err)

	jane := johnDoe()
	jane.FirstName = "Jane"
	jane.Email = "jane@example.com"
	janeRec, err := svc.Create(ctx, jane)
	require.NoError(t, err)

	// Taking another customer's email fails and changes nothing.
	_, err = svc.Update(ctx, janeRec.ID, services.UpdateCustomerInput{
		Email: strPtr(john.Email),
		City:  strPtr("Rotterdam"),
	})
	assert.ErrorIs(t, err, services.ErrDuplicateEmail)

	got, err := svc.GetByID(ctx, janeRec.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", got.Email)
	assert.Equal(t, "Amsterdam", got.City)

	// Re-submitting one's own email is fine.
	_, err = svc.Update(ctx, john.ID, services.UpdateCustomerInput{Email: strPtr(john.Email)})
	assert.NoError(t, err)
}

func TestUpdate_NotFound(t *testing.T) {
	t.Parallel()
	svc, store, _ := newService(t)

	_, err := svc.Update(context.Background(), "00000000-0000-0000-0000-000000000000",
		services.UpdateCustomerInput{City: strPtr("Utrecht")})

	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Zero(t, store.Len())
}

func TestUpdate_UpdatedAtNeverMovesBackwards(t *testing.T) {
	t.Parallel()

	store := database.NewMemoryCustomerStore()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	svc := services.NewCustomerService(store, services.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	created, err := svc.Create(ctx, johnDoe())
	require.NoError(t, err)

	// Clock jumps back.
	now = now.Add(-time.Hour)
	updated, err := svc.Update(ctx, created.ID, services.UpdateCustomerInput{City: strPtr("Delft")})
	require.NoError(t, err)

	assert.Equal(t, created.UpdatedAt, updated.UpdatedAt)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))
}

func TestDelete(t *testing.T) {
	t.Parallel()
	svc, store, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, johnDoe())
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, deleted)
	assert.Zero(t, store.Len())

	_, err = svc.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = svc.Delete(ctx, created.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)
	ctx := context.Background()

	var ids []string
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		in := johnDoe()
		in.Email = email
		c, err := svc.Create(ctx, in)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, customerIDs(list))
}

func TestList_Empty(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestSearch(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)
	ctx := context.Background()

	john, err := svc.Create(ctx, johnDoe())
	require.NoError(t, err)

	jane := johnDoe()
	jane.FirstName = "Jane"
	jane.LastName = "Roe"
	jane.Email = "jane@roe.org"
	jane.City = "Utrecht"
	jane.Company = strPtr("Globex")
	janeRec, err := svc.Create(ctx, jane)
	require.NoError(t, err)

	testCases := []struct {
		query    string
		expected []string
	}{
		{query: "DOE", expected: []string{john.ID}},
		{query: "globex", expected: []string{janeRec.ID}},
		{query: "utrecht", expected: []string{janeRec.ID}},
		{query: "j", expected: []string{janeRec.ID, john.ID}},
		{query: "  ", expected: []string{janeRec.ID, john.ID}},
		{query: "zzz", expected: []string{}},
	}

	for _, tc := range testCases {
		got, err := svc.Search(ctx, tc.query)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, customerIDs(got), "query %q", tc.query)
	}
}

// failingStore rejects every insert, as if the unique index fired after the pre-check.
type failingStore struct {
	*database.MemoryCustomerStore
	err error
}

func (s failingStore) Insert(context.Context, *models.Customer) error {
	return s.err
}

func (s failingStore) WithinTx(ctx context.Context, fn func(tx services.CustomerStore) error) error {
	return fn(s)
}

func TestCreate_StoreErrorsPassThrough(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	testCases := []struct {
		scenario string
		err      error
		kind     services.Kind
	}{
		{scenario: "unique index race", err: services.ErrDuplicateEmail, kind: services.KindDuplicateEmail},
		{scenario: "unexpected", err: boom, kind: services.KindInternal},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()

			svc := services.NewCustomerService(failingStore{MemoryCustomerStore: database.NewMemoryCustomerStore(), err: tc.err})
			_, err := svc.Create(context.Background(), johnDoe())

			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, tc.kind, services.KindOf(err))
		})
	}
}

func customerIDs(list []models.Customer) []string {
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	return ids
}
