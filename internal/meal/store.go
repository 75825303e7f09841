// Package meal is the durable store and materialised cache for the
// append-only meal diary.
package meal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mealpedant/api/internal/apperror"
)

// Store issues the meal-table statements. Category, description, date and
// photo rows are deduplicated; every mutation runs under one transaction
// and sweeps orphans it may have created.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// upsertText dedupes a value into a single-text-column table and returns
// its id.
func upsertText(ctx context.Context, tx pgx.Tx, table, column, value string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s) VALUES ($1)
		ON CONFLICT (%s) DO UPDATE SET %s = EXCLUDED.%s
		RETURNING id`, table, column, column, column, column),
		value).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", table, err)
	}
	return id, nil
}

func personID(ctx context.Context, tx pgx.Tx, person string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM meal_person WHERE person = $1`, person).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("resolve person: %w", err)
	}
	return id, nil
}

func photoID(ctx context.Context, tx pgx.Tx, m *Meal) (*int64, error) {
	if m.PhotoOriginal == "" || m.PhotoConverted == "" {
		return nil, nil
	}
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO meal_photo (photo_original, photo_converted) VALUES ($1, $2)
		ON CONFLICT (photo_original, photo_converted)
		DO UPDATE SET photo_original = EXCLUDED.photo_original
		RETURNING id`,
		m.PhotoOriginal, m.PhotoConverted).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("upsert photo pair: %w", err)
	}
	return &id, nil
}

// sweepOrphans removes category, description, date and photo rows that no
// meal references any more.
func sweepOrphans(ctx context.Context, tx pgx.Tx) error {
	statements := []string{
		`DELETE FROM meal_category c
		 WHERE NOT EXISTS (SELECT 1 FROM individual_meal im WHERE im.category_id = c.id)`,
		`DELETE FROM meal_description d
		 WHERE NOT EXISTS (SELECT 1 FROM individual_meal im WHERE im.description_id = d.id)`,
		`DELETE FROM meal_date md
		 WHERE NOT EXISTS (SELECT 1 FROM individual_meal im WHERE im.date_id = md.id)`,
		`DELETE FROM meal_photo ph
		 WHERE NOT EXISTS (SELECT 1 FROM individual_meal im WHERE im.photo_id = ph.id)`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("sweep orphans: %w", err)
		}
	}
	return nil
}

// Insert adds one meal. A second meal for the same (date, person) is a
// conflict.
func (s *Store) Insert(ctx context.Context, m *Meal) error {
	if _, err := ParseDate(m.Date); err != nil {
		return err
	}
	if !ValidPerson(m.Person) {
		return apperror.InvalidValue("unknown person")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperror.Database(err)
	}
	defer tx.Rollback(ctx)

	categoryID, err := upsertText(ctx, tx, "meal_category", "category", m.Category)
	if err != nil {
		return apperror.Database(err)
	}
	descriptionID, err := upsertText(ctx, tx, "meal_description", "description", m.Description)
	if err != nil {
		return apperror.Database(err)
	}
	dateID, err := upsertText(ctx, tx, "meal_date", "date", m.Date)
	if err != nil {
		return apperror.Database(err)
	}
	pID, err := personID(ctx, tx, m.Person)
	if err != nil {
		return apperror.Database(err)
	}
	phID, err := photoID(ctx, tx, m)
	if err != nil {
		return apperror.Database(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO individual_meal
			(date_id, person_id, category_id, description_id, photo_id, restaurant, takeaway, vegetarian)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		dateID, pID, categoryID, descriptionID, phID, m.Restaurant, m.Takeaway, m.Vegetarian)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("meal already exists")
		}
		return apperror.Database(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperror.Database(err)
	}
	return nil
}

// Update rewrites the meal at (date, person) and sweeps whatever text or
// photo rows that orphaned.
func (s *Store) Update(ctx context.Context, m *Meal) error {
	if _, err := ParseDate(m.Date); err != nil {
		return err
	}
	if !ValidPerson(m.Person) {
		return apperror.InvalidValue("unknown person")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperror.Database(err)
	}
	defer tx.Rollback(ctx)

	categoryID, err := upsertText(ctx, tx, "meal_category", "category", m.Category)
	if err != nil {
		return apperror.Database(err)
	}
	descriptionID, err := upsertText(ctx, tx, "meal_description", "description", m.Description)
	if err != nil {
		return apperror.Database(err)
	}
	phID, err := photoID(ctx, tx, m)
	if err != nil {
		return apperror.Database(err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE individual_meal im SET
			category_id = $3, description_id = $4, photo_id = $5,
			restaurant = $6, takeaway = $7, vegetarian = $8
		FROM meal_date md, meal_person mp
		WHERE im.date_id = md.id AND im.person_id = mp.id
			AND md.date = $1 AND mp.person = $2`,
		m.Date, m.Person, categoryID, descriptionID, phID,
		m.Restaurant, m.Takeaway, m.Vegetarian)
	if err != nil {
		return apperror.Database(err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.InvalidValue("unknown meal")
	}

	if err := sweepOrphans(ctx, tx); err != nil {
		return apperror.Database(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.Database(err)
	}
	return nil
}

// Delete removes the meal at (date, person), then sweeps orphans in the
// same transaction.
func (s *Store) Delete(ctx context.Context, date, person string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperror.Database(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM individual_meal im
		USING meal_date md, meal_person mp
		WHERE im.date_id = md.id AND im.person_id = mp.id
			AND md.date = $1 AND mp.person = $2`,
		date, person)
	if err != nil {
		return apperror.Database(err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.InvalidValue("unknown meal")
	}

	if err := sweepOrphans(ctx, tx); err != nil {
		return apperror.Database(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.Database(err)
	}
	return nil
}

// Get fetches one meal for the admin edit form.
func (s *Store) Get(ctx context.Context, date, person string) (*Meal, error) {
	var m Meal
	err := s.pool.QueryRow(ctx, `
		SELECT md.date, mp.person, c.category, d.description,
			im.restaurant, im.takeaway, im.vegetarian,
			COALESCE(ph.photo_original, ''), COALESCE(ph.photo_converted, '')
		FROM individual_meal im
		JOIN meal_date md ON md.id = im.date_id
		JOIN meal_person mp ON mp.id = im.person_id
		JOIN meal_category c ON c.id = im.category_id
		JOIN meal_description d ON d.id = im.description_id
		LEFT JOIN meal_photo ph ON ph.id = im.photo_id
		WHERE md.date = $1 AND mp.person = $2`,
		date, person).Scan(
		&m.Date, &m.Person, &m.Category, &m.Description,
		&m.Restaurant, &m.Takeaway, &m.Vegetarian,
		&m.PhotoOriginal, &m.PhotoConverted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Database(err)
	}
	return &m, nil
}

// FeedRows returns the whole diary ordered (date desc, person asc), the
// shape the cache fold consumes.
func (s *Store) FeedRows(ctx context.Context) ([]FeedRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT md.date, mp.person, d.id, d.description, c.id, c.category,
			im.restaurant, im.takeaway, im.vegetarian,
			COALESCE(ph.photo_original, ''), COALESCE(ph.photo_converted, '')
		FROM individual_meal im
		JOIN meal_date md ON md.id = im.date_id
		JOIN meal_person mp ON mp.id = im.person_id
		JOIN meal_category c ON c.id = im.category_id
		JOIN meal_description d ON d.id = im.description_id
		LEFT JOIN meal_photo ph ON ph.id = im.photo_id
		ORDER BY md.date DESC, mp.person ASC`)
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer rows.Close()

	var feed []FeedRow
	for rows.Next() {
		var r FeedRow
		if err := rows.Scan(
			&r.Date, &r.Person, &r.DescriptionID, &r.Description,
			&r.CategoryID, &r.Category, &r.Restaurant, &r.Takeaway,
			&r.Vegetarian, &r.PhotoOriginal, &r.PhotoConverted); err != nil {
			return nil, fmt.Errorf("scan feed row: %w", err)
		}
		feed = append(feed, r)
	}
	return feed, rows.Err()
}
