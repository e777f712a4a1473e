package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mr1hm/spot-safety/internal/models"
)

const proposalColumns = `id, spot_id, triggering_alert_id, proposed_by, status, danger_level,
	danger_reasons, votes_approve, votes_reject, version, created_at, updated_at, resolved_at`

func (s *SQLiteDB) AddProposal(ctx context.Context, p *models.DeletionProposal) error {
	reasons, approve, reject, err := encodeProposalLists(p)
	if err != nil {
		return err
	}
	if p.Version == 0 {
		p.Version = 1
	}

	query := `INSERT INTO proposals (` + proposalColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.SpotID, p.TriggeringAlertID, p.ProposedBy, p.Status, p.DangerLevel,
		reasons, approve, reject, p.Version, p.CreatedAt, p.UpdatedAt, nullTime(p),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("error inserting proposal %s: %w", p.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("error inserting proposal %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteDB) UpdateProposal(ctx context.Context, p *models.DeletionProposal) error {
	_, approve, reject, err := encodeProposalLists(p)
	if err != nil {
		return err
	}

	query := `
		UPDATE proposals
		SET status = ?, votes_approve = ?, votes_reject = ?, updated_at = ?, resolved_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`
	res, err := s.db.ExecContext(ctx, query,
		p.Status, approve, reject, p.UpdatedAt, nullTime(p), p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("error updating proposal %s: %w", p.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %w", err)
	}
	if n == 0 {
		return s.missingOrConflict(ctx, "proposals", p.ID)
	}

	p.Version++
	return nil
}

func (s *SQLiteDB) GetProposal(ctx context.Context, id string) (*models.DeletionProposal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading proposal %s: %w", id, err)
	}
	return p, nil
}

// ActiveProposal returns the open proposal for a spot, or ErrNotFound.
func (s *SQLiteDB) ActiveProposal(ctx context.Context, spotID string) (*models.DeletionProposal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE spot_id = ? AND status = ?`,
		spotID, models.ProposalStatusProposed)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading active proposal for spot %s: %w", spotID, err)
	}
	return p, nil
}

func (s *SQLiteDB) ListProposals(ctx context.Context, opts ProposalFilter) ([]models.DeletionProposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals`
	var (
		conditions []string
		args       []any
	)

	if opts.SpotID != "" {
		conditions = append(conditions, "spot_id = ?")
		args = append(args, opts.SpotID)
	}
	if opts.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *opts.Status)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY rowid DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing proposals: %w", err)
	}
	defer rows.Close()

	var proposals []models.DeletionProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning proposal: %w", err)
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

func scanProposal(sc scanner) (*models.DeletionProposal, error) {
	var (
		p                        models.DeletionProposal
		reasons, approve, reject string
		resolvedAt               sql.NullTime
	)
	err := sc.Scan(
		&p.ID, &p.SpotID, &p.TriggeringAlertID, &p.ProposedBy, &p.Status, &p.DangerLevel,
		&reasons, &approve, &reject, &p.Version, &p.CreatedAt, &p.UpdatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.DangerReasons, err = decodeList[models.Reason](reasons); err != nil {
		return nil, fmt.Errorf("error decoding danger reasons: %w", err)
	}
	if p.Votes.Approve, err = decodeList[string](approve); err != nil {
		return nil, fmt.Errorf("error decoding approve votes: %w", err)
	}
	if p.Votes.Reject, err = decodeList[string](reject); err != nil {
		return nil, fmt.Errorf("error decoding reject votes: %w", err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}
	return &p, nil
}

func encodeProposalLists(p *models.DeletionProposal) (reasons, approve, reject string, err error) {
	if reasons, err = encodeList(p.DangerReasons); err != nil {
		return "", "", "", fmt.Errorf("error encoding danger reasons: %w", err)
	}
	if approve, err = encodeList(p.Votes.Approve); err != nil {
		return "", "", "", fmt.Errorf("error encoding approve votes: %w", err)
	}
	if reject, err = encodeList(p.Votes.Reject); err != nil {
		return "", "", "", fmt.Errorf("error encoding reject votes: %w", err)
	}
	return reasons, approve, reject, nil
}

func nullTime(p *models.DeletionProposal) sql.NullTime {
	if p.ResolvedAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p.ResolvedAt, Valid: true}
}
