package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/spot-safety/internal/models"
)

func (s *SQLiteDB) UpsertSpot(ctx context.Context, sp *models.Spot) error {
	if sp.DangerLevel == "" {
		sp.DangerLevel = models.DangerSafe
	}
	reasons, err := encodeList(sp.DangerReasons)
	if err != nil {
		return fmt.Errorf("error encoding danger reasons: %w", err)
	}
	if sp.UpdatedAt.IsZero() {
		sp.UpdatedAt = time.Now().UTC()
	}

	// Danger fields are derived; an upsert of catalog data keeps the stored ones.
	query := `
		INSERT INTO spots (id, name, latitude, longitude, danger_level, danger_reasons, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		sp.ID, sp.Name, sp.Latitude, sp.Longitude, sp.DangerLevel, reasons, sp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error upserting spot %s: %w", sp.ID, err)
	}
	return nil
}

func (s *SQLiteDB) GetSpot(ctx context.Context, id string) (*models.Spot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, latitude, longitude, danger_level, danger_reasons, updated_at FROM spots WHERE id = ?`, id)
	sp, err := scanSpot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading spot %s: %w", id, err)
	}
	return sp, nil
}

func (s *SQLiteDB) ListSpots(ctx context.Context) ([]models.Spot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, latitude, longitude, danger_level, danger_reasons, updated_at FROM spots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("error listing spots: %w", err)
	}
	defer rows.Close()

	var spots []models.Spot
	for rows.Next() {
		sp, err := scanSpot(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning spot: %w", err)
		}
		spots = append(spots, *sp)
	}
	return spots, rows.Err()
}

// SetDangerLevel writes the derived level back to the catalog, creating a bare
// spot record when the catalog does not know the id yet.
func (s *SQLiteDB) SetDangerLevel(ctx context.Context, spotID string, level models.DangerLevel, reasons []models.Reason) error {
	encoded, err := encodeList(reasons)
	if err != nil {
		return fmt.Errorf("error encoding danger reasons: %w", err)
	}

	query := `
		INSERT INTO spots (id, danger_level, danger_reasons, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			danger_level = excluded.danger_level,
			danger_reasons = excluded.danger_reasons,
			updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, spotID, level, encoded, time.Now().UTC()); err != nil {
		return fmt.Errorf("error setting danger level for spot %s: %w", spotID, err)
	}
	return nil
}

func scanSpot(sc scanner) (*models.Spot, error) {
	var (
		sp      models.Spot
		reasons string
	)
	if err := sc.Scan(&sp.ID, &sp.Name, &sp.Latitude, &sp.Longitude, &sp.DangerLevel, &reasons, &sp.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if sp.DangerReasons, err = decodeList[models.Reason](reasons); err != nil {
		return nil, fmt.Errorf("error decoding danger reasons: %w", err)
	}
	return &sp, nil
}
