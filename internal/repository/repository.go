package repository

import (
	"context"
	"errors"

	"github.com/mr1hm/spot-safety/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("record was modified concurrently")
	ErrDuplicate = errors.New("record violates a uniqueness constraint")
)

type ProposalFilter struct {
	Limit  int
	Offset int
	SpotID string
	Status *models.ProposalStatus
}

// AlertRepository stores hazard alerts. Update is a compare-and-swap on
// Version: it fails with ErrConflict when the stored version differs and
// increments a.Version on success.
type AlertRepository interface {
	AddAlert(ctx context.Context, a *models.Alert) error
	UpdateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlertsBySpot(ctx context.Context, spotID string) ([]models.Alert, error)
}

type ProposalRepository interface {
	AddProposal(ctx context.Context, p *models.DeletionProposal) error
	UpdateProposal(ctx context.Context, p *models.DeletionProposal) error
	GetProposal(ctx context.Context, id string) (*models.DeletionProposal, error)
	ActiveProposal(ctx context.Context, spotID string) (*models.DeletionProposal, error)
	ListProposals(ctx context.Context, opts ProposalFilter) ([]models.DeletionProposal, error)
}

// SpotRepository is the catalog side: spots are owned elsewhere, this service
// only writes the derived danger fields.
type SpotRepository interface {
	UpsertSpot(ctx context.Context, s *models.Spot) error
	GetSpot(ctx context.Context, id string) (*models.Spot, error)
	ListSpots(ctx context.Context) ([]models.Spot, error)
	SetDangerLevel(ctx context.Context, spotID string, level models.DangerLevel, reasons []models.Reason) error
}

type Store interface {
	AlertRepository
	ProposalRepository
	SpotRepository
	Ping(ctx context.Context) error
	Close() error
}
