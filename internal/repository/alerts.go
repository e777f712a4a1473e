package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mr1hm/spot-safety/internal/models"
)

const alertColumns = `id, spot_id, reason, severity, details, reporter_id, status,
	confirmations, moderated_by, moderation_note, version, created_at, updated_at`

func (s *SQLiteDB) AddAlert(ctx context.Context, a *models.Alert) error {
	confirmations, err := encodeList(a.Confirmations)
	if err != nil {
		return fmt.Errorf("error encoding confirmations: %w", err)
	}
	if a.Version == 0 {
		a.Version = 1
	}

	query := `INSERT INTO alerts (` + alertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		a.ID, a.SpotID, a.Reason, a.Severity, a.Details, a.ReporterID, a.Status,
		confirmations, a.ModeratedBy, a.ModerationNote, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("error inserting alert %s: %w", a.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("error inserting alert %s: %w", a.ID, err)
	}
	return nil
}

func (s *SQLiteDB) UpdateAlert(ctx context.Context, a *models.Alert) error {
	confirmations, err := encodeList(a.Confirmations)
	if err != nil {
		return fmt.Errorf("error encoding confirmations: %w", err)
	}

	query := `
		UPDATE alerts
		SET status = ?, details = ?, confirmations = ?, moderated_by = ?, moderation_note = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`
	res, err := s.db.ExecContext(ctx, query,
		a.Status, a.Details, confirmations, a.ModeratedBy, a.ModerationNote, a.UpdatedAt,
		a.ID, a.Version,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("error updating alert %s: %w", a.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("error updating alert %s: %w", a.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %w", err)
	}
	if n == 0 {
		return s.missingOrConflict(ctx, "alerts", a.ID)
	}

	a.Version++
	return nil
}

func (s *SQLiteDB) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading alert %s: %w", id, err)
	}
	return a, nil
}

// ListAlertsBySpot returns every alert for the spot in report order.
func (s *SQLiteDB) ListAlertsBySpot(ctx context.Context, spotID string) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE spot_id = ? ORDER BY rowid`, spotID)
	if err != nil {
		return nil, fmt.Errorf("error listing alerts for spot %s: %w", spotID, err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(sc scanner) (*models.Alert, error) {
	var (
		a             models.Alert
		confirmations string
	)
	err := sc.Scan(
		&a.ID, &a.SpotID, &a.Reason, &a.Severity, &a.Details, &a.ReporterID, &a.Status,
		&confirmations, &a.ModeratedBy, &a.ModerationNote, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Confirmations, err = decodeList[string](confirmations)
	if err != nil {
		return nil, fmt.Errorf("error decoding confirmations: %w", err)
	}
	return &a, nil
}

func (s *SQLiteDB) missingOrConflict(ctx context.Context, table, id string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("error checking %s %s: %w", table, id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}
