package meal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealpedant/api/internal/apperror"
)

// The store tests need a real database with the migrations applied; they
// skip unless TEST_DATABASE_URL points at one. meal_person keeps its
// seeded rows.
func newTestStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), `
		TRUNCATE individual_meal, meal_date, meal_category,
			meal_description, meal_photo
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return NewStore(pool), pool
}

func countRows(t *testing.T, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n)
	require.NoError(t, err)
	return n
}

func sampleMeal(person string) *Meal {
	return &Meal{
		Date:        "2020-03-01",
		Person:      person,
		Category:    "CURRY",
		Description: "Chickpea dal with naan",
		Vegetarian:  true,
	}
}

func TestInsertAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	m := sampleMeal(PersonJack)
	m.PhotoOriginal = "01hqz2v9x8p4t6m1c7r5w3y9e200ab4f.jpg"
	m.PhotoConverted = "01hqz2v9x8p4t6m1c7r5w3y9e210ab4f.jpg"
	require.NoError(t, store.Insert(ctx, m))

	got, err := store.Get(ctx, m.Date, m.Person)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m, got)

	// Unknown (date, person) reads as absent, not as an error.
	got, err = store.Get(ctx, "2020-03-02", PersonJack)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInsertDuplicateDatePersonConflicts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, sampleMeal(PersonJack)))

	dup := sampleMeal(PersonJack)
	dup.Description = "Something else entirely"
	err := store.Insert(ctx, dup)
	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.KindConflict, appErr.Kind)
	assert.Equal(t, "meal already exists", appErr.Message())

	// The same date for the other person is fine.
	assert.NoError(t, store.Insert(ctx, sampleMeal(PersonDave)))
}

func TestInsertRejectsBadInput(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	m := sampleMeal(PersonJack)
	m.Date = "2014-01-01" // before genesis
	require.Error(t, store.Insert(ctx, m))

	m = sampleMeal("Steve")
	require.Error(t, store.Insert(ctx, m))
}

func TestDeleteSweepsOrphans(t *testing.T) {
	store, pool := newTestStore(t)
	ctx := context.Background()

	// Two meals sharing date and category but not description.
	jack := sampleMeal(PersonJack)
	jack.PhotoOriginal = "01hqz2v9x8p4t6m1c7r5w3y9e200ab4f.jpg"
	jack.PhotoConverted = "01hqz2v9x8p4t6m1c7r5w3y9e210ab4f.jpg"
	dave := sampleMeal(PersonDave)
	dave.Description = "Lamb rogan josh"
	require.NoError(t, store.Insert(ctx, jack))
	require.NoError(t, store.Insert(ctx, dave))

	require.NoError(t, store.Delete(ctx, jack.Date, PersonJack))

	// Shared rows survive; rows only Jack's meal referenced are gone.
	assert.Equal(t, 1, countRows(t, pool, "individual_meal"))
	assert.Equal(t, 1, countRows(t, pool, "meal_date"))
	assert.Equal(t, 1, countRows(t, pool, "meal_category"))
	assert.Equal(t, 1, countRows(t, pool, "meal_description"))
	assert.Equal(t, 0, countRows(t, pool, "meal_photo"))

	require.NoError(t, store.Delete(ctx, dave.Date, PersonDave))
	assert.Equal(t, 0, countRows(t, pool, "individual_meal"))
	assert.Equal(t, 0, countRows(t, pool, "meal_date"))
	assert.Equal(t, 0, countRows(t, pool, "meal_category"))
	assert.Equal(t, 0, countRows(t, pool, "meal_description"))
}

func TestDeleteUnknownMeal(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Delete(context.Background(), "2020-03-01", PersonJack)
	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "unknown meal", appErr.Message())
}

func TestUpdateSweepsReplacedText(t *testing.T) {
	store, pool := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, sampleMeal(PersonJack)))

	changed := sampleMeal(PersonJack)
	changed.Category = "STIR FRY"
	changed.Description = "Tofu and broccoli"
	require.NoError(t, store.Update(ctx, changed))

	// The replaced category and description rows were orphaned and swept.
	assert.Equal(t, 1, countRows(t, pool, "meal_category"))
	assert.Equal(t, 1, countRows(t, pool, "meal_description"))

	got, err := store.Get(ctx, changed.Date, PersonJack)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "STIR FRY", got.Category)
}

func TestUpdateUnknownMeal(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Update(context.Background(), sampleMeal(PersonJack))
	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "unknown meal", appErr.Message())
}

func TestFeedRowsOrdering(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, m := range []*Meal{
		{Date: "2020-03-01", Person: PersonJack, Category: "A", Description: "a"},
		{Date: "2020-03-02", Person: PersonJack, Category: "B", Description: "b"},
		{Date: "2020-03-02", Person: PersonDave, Category: "C", Description: "c"},
	} {
		require.NoError(t, store.Insert(ctx, m))
	}

	rows, err := store.FeedRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Newest date first; within a date, Dave before Jack.
	assert.Equal(t, "2020-03-02", rows[0].Date)
	assert.Equal(t, PersonDave, rows[0].Person)
	assert.Equal(t, "2020-03-02", rows[1].Date)
	assert.Equal(t, PersonJack, rows[1].Person)
	assert.Equal(t, "2020-03-01", rows[2].Date)
}
