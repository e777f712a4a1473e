package safety

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/spot-safety/internal/models"
	"github.com/mr1hm/spot-safety/internal/repository"
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Notify(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	svc    *Service
	store  *repository.MemoryStore
	clock  *clockwork.FakeClock
	events *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	var seq atomic.Int64
	f := &fixture{
		store:  repository.NewMemoryStore(),
		clock:  clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
		events: &recorder{},
	}
	base := []Option{
		WithClock(f.clock),
		WithNotifier(f.events),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
	}
	f.svc = NewService(f.store, f.store, f.store, append(base, opts...)...)
	return f
}

// report files an alert and advances the clock so creation order is strict.
func (f *fixture) report(t *testing.T, spotID, reporterID string, reason models.Reason) *models.Alert {
	t.Helper()
	a, err := f.svc.ReportAlert(context.Background(), spotID, reporterID, string(reason), "")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	return a
}

func (f *fixture) level(t *testing.T, spotID string) models.DangerLevel {
	t.Helper()
	sp, err := f.store.GetSpot(context.Background(), spotID)
	require.NoError(t, err)
	return sp.DangerLevel
}

func (f *fixture) alert(t *testing.T, id string) *models.Alert {
	t.Helper()
	a, err := f.store.GetAlert(context.Background(), id)
	require.NoError(t, err)
	return a
}

// failingStore breaks every alert listing to simulate a storage outage.
type failingStore struct {
	*repository.MemoryStore
}

var errDiskGone = fmt.Errorf("disk gone")

func (failingStore) ListAlertsBySpot(ctx context.Context, spotID string) ([]models.Alert, error) {
	return nil, errDiskGone
}

// conflictStore loses every alert update to a concurrent writer.
type conflictStore struct {
	*repository.MemoryStore
}

func (conflictStore) UpdateAlert(ctx context.Context, a *models.Alert) error {
	return repository.ErrConflict
}
