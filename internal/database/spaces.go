package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"venuebook/internal/domain"
	"venuebook/internal/models"
)

const spaceColumns = `id, name, location, description, capacity, price_per_day, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSpace(row rowScanner) (*models.Space, error) {
	var (
		s     models.Space
		price sql.NullFloat64
		state string
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Location, &s.Description, &s.Capacity, &price, &state, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if price.Valid {
		p := price.Float64
		s.PricePerDay = &p
	}
	s.Status = models.SpaceStatus(state)
	return &s, nil
}

func nullPrice(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func (s *store) GetSpace(ctx context.Context, id int64) (*models.Space, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE id = ?`, id)
	space, err := scanSpace(row)
	if err != nil {
		return nil, notFound(err, "space", id)
	}
	return space, nil
}

func (s *store) GetSpaceByName(ctx context.Context, name string) (*models.Space, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE name = ?`, strings.TrimSpace(name))
	return scanSpace(row)
}

func (s *store) ListSpaces(ctx context.Context) ([]*models.Space, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+spaceColumns+` FROM spaces ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list spaces: %w", err)
	}
	defer rows.Close()

	var spaces []*models.Space
	for rows.Next() {
		space, err := scanSpace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan space: %w", err)
		}
		spaces = append(spaces, space)
	}
	return spaces, rows.Err()
}

func (s *store) CreateSpace(ctx context.Context, space *models.Space) error {
	now := time.Now()
	if space.Status == "" {
		space.Status = models.SpaceFree
	}
	res, err := s.q.ExecContext(ctx, `INSERT INTO spaces (name, location, description, capacity, price_per_day, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(space.Name), space.Location, space.Description, space.Capacity,
		nullPrice(space.PricePerDay), string(space.Status), now, now)
	if err != nil {
		return fmt.Errorf("failed to create space: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	space.ID = id
	space.CreatedAt = now
	space.UpdatedAt = now
	return nil
}

// UpdateSpace writes the administrative fields. Status is owned by the lifecycle.
func (s *store) UpdateSpace(ctx context.Context, space *models.Space) error {
	now := time.Now()
	res, err := s.q.ExecContext(ctx, `UPDATE spaces SET name = ?, location = ?, description = ?, capacity = ?, price_per_day = ?, updated_at = ?
        WHERE id = ?`,
		strings.TrimSpace(space.Name), space.Location, space.Description, space.Capacity,
		nullPrice(space.PricePerDay), now, space.ID)
	if err != nil {
		return fmt.Errorf("failed to update space: %w", err)
	}
	if affected(res) == 0 {
		return &domain.NotFoundError{Kind: "space", ID: space.ID}
	}
	space.UpdatedAt = now
	return nil
}

func (s *store) DeleteSpace(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM spaces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete space: %w", err)
	}
	if affected(res) == 0 {
		return &domain.NotFoundError{Kind: "space", ID: id}
	}
	return nil
}

func (s *store) SetSpaceStatus(ctx context.Context, id int64, status models.SpaceStatus) error {
	res, err := s.q.ExecContext(ctx, `UPDATE spaces SET status = ?, updated_at = ? WHERE id = ?`, string(status), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set space status: %w", err)
	}
	if affected(res) == 0 {
		return &domain.NotFoundError{Kind: "space", ID: id}
	}
	return nil
}

// UpsertSpaces creates seed spaces that do not exist yet, matched by name.
func (db *DB) UpsertSpaces(ctx context.Context, spaces []models.Space) (int, error) {
	created := 0
	err := db.WithTx(ctx, func(tx domain.BookingStore) error {
		st := tx.(*store)
		for i := range spaces {
			_, err := st.GetSpaceByName(ctx, spaces[i].Name)
			if err == nil {
				continue
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to look up space %s: %w", spaces[i].Name, err)
			}
			sp := spaces[i]
			sp.Status = models.SpaceFree
			if err := st.CreateSpace(ctx, &sp); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	return created, err
}
