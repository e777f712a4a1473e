package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mr1hm/spot-safety/internal/models"
)

// MemoryStore is an in-process Store with the same uniqueness and
// compare-and-swap behavior as SQLiteDB. Records are copied on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	alerts    map[string]*models.Alert
	alertIDs  []string
	proposals map[string]*models.DeletionProposal
	propIDs   []string
	spots     map[string]*models.Spot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:    make(map[string]*models.Alert),
		proposals: make(map[string]*models.DeletionProposal),
		spots:     make(map[string]*models.Spot),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) AddAlert(ctx context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[a.ID]; ok {
		return ErrDuplicate
	}
	if a.Status != models.AlertStatusDismissed {
		for _, existing := range m.alerts {
			if existing.SpotID == a.SpotID && existing.ReporterID == a.ReporterID &&
				existing.Reason == a.Reason && existing.Status != models.AlertStatusDismissed {
				return ErrDuplicate
			}
		}
	}
	if a.Version == 0 {
		a.Version = 1
	}

	m.alerts[a.ID] = a.Clone()
	m.alertIDs = append(m.alertIDs, a.ID)
	return nil
}

func (m *MemoryStore) UpdateAlert(ctx context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.alerts[a.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != a.Version {
		return ErrConflict
	}
	if a.Status != models.AlertStatusDismissed {
		for id, existing := range m.alerts {
			if id != a.ID && existing.SpotID == a.SpotID && existing.ReporterID == a.ReporterID &&
				existing.Reason == a.Reason && existing.Status != models.AlertStatusDismissed {
				return ErrDuplicate
			}
		}
	}

	a.Version++
	m.alerts[a.ID] = a.Clone()
	return nil
}

func (m *MemoryStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (m *MemoryStore) ListAlertsBySpot(ctx context.Context, spotID string) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var alerts []models.Alert
	for _, id := range m.alertIDs {
		if a := m.alerts[id]; a.SpotID == spotID {
			alerts = append(alerts, *a.Clone())
		}
	}
	return alerts, nil
}

func (m *MemoryStore) AddProposal(ctx context.Context, p *models.DeletionProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.proposals[p.ID]; ok {
		return ErrDuplicate
	}
	if p.Open() {
		for _, existing := range m.proposals {
			if existing.SpotID == p.SpotID && existing.Open() {
				return ErrDuplicate
			}
		}
	}
	if p.Version == 0 {
		p.Version = 1
	}

	m.proposals[p.ID] = p.Clone()
	m.propIDs = append(m.propIDs, p.ID)
	return nil
}

func (m *MemoryStore) UpdateProposal(ctx context.Context, p *models.DeletionProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.proposals[p.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != p.Version {
		return ErrConflict
	}

	p.Version++
	m.proposals[p.ID] = p.Clone()
	return nil
}

func (m *MemoryStore) GetProposal(ctx context.Context, id string) (*models.DeletionProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) ActiveProposal(ctx context.Context, spotID string) (*models.DeletionProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.propIDs {
		if p := m.proposals[id]; p.SpotID == spotID && p.Open() {
			return p.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListProposals(ctx context.Context, opts ProposalFilter) ([]models.DeletionProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var proposals []models.DeletionProposal
	for _, id := range slices.Backward(m.propIDs) {
		p := m.proposals[id]
		if opts.SpotID != "" && p.SpotID != opts.SpotID {
			continue
		}
		if opts.Status != nil && p.Status != *opts.Status {
			continue
		}
		proposals = append(proposals, *p.Clone())
	}

	if opts.Offset > 0 {
		proposals = proposals[min(opts.Offset, len(proposals)):]
	}
	if opts.Limit > 0 && len(proposals) > opts.Limit {
		proposals = proposals[:opts.Limit]
	}
	return proposals, nil
}

func (m *MemoryStore) UpsertSpot(ctx context.Context, sp *models.Spot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *sp
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	if existing, ok := m.spots[sp.ID]; ok {
		c.DangerLevel = existing.DangerLevel
		c.DangerReasons = slices.Clone(existing.DangerReasons)
	} else if c.DangerLevel == "" {
		c.DangerLevel = models.DangerSafe
	}
	m.spots[sp.ID] = &c
	return nil
}

func (m *MemoryStore) GetSpot(ctx context.Context, id string) (*models.Spot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sp, ok := m.spots[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *sp
	c.DangerReasons = slices.Clone(sp.DangerReasons)
	return &c, nil
}

func (m *MemoryStore) ListSpots(ctx context.Context) ([]models.Spot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	spots := make([]models.Spot, 0, len(m.spots))
	for _, sp := range m.spots {
		c := *sp
		c.DangerReasons = slices.Clone(sp.DangerReasons)
		spots = append(spots, c)
	}
	slices.SortFunc(spots, func(a, b models.Spot) int {
		return strings.Compare(a.ID, b.ID)
	})
	return spots, nil
}

func (m *MemoryStore) SetDangerLevel(ctx context.Context, spotID string, level models.DangerLevel, reasons []models.Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sp, ok := m.spots[spotID]
	if !ok {
		sp = &models.Spot{ID: spotID}
		m.spots[spotID] = sp
	}
	sp.DangerLevel = level
	sp.DangerReasons = slices.Clone(reasons)
	sp.UpdatedAt = time.Now().UTC()
	return nil
}
