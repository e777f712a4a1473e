// Package safety implements community hazard reporting for spots and the
// deletion vote that follows once enough people agree a spot is unsafe.
//
// Service is the entry point. It serializes every mutation per spot, runs the
// ConfirmationEngine and VotingEngine, recomputes the spot's danger level after
// each alert change and hands outcomes to a Notifier. Business rejections are
// returned as *Error; any other error is an infrastructure failure.
package safety

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/spot-safety/internal/danger"
	"github.com/mr1hm/spot-safety/internal/metrics"
	"github.com/mr1hm/spot-safety/internal/models"
	"github.com/mr1hm/spot-safety/internal/repository"
)

type Thresholds struct {
	Confirm int // total confirmations (reporter included) that confirm an alert
	Delete  int // total confirmations that open a deletion proposal
	Quorum  int // votes required before a proposal can resolve
}

func DefaultThresholds() Thresholds {
	return Thresholds{Confirm: 3, Delete: 5, Quorum: 5}
}

// Notifier receives outcomes after they are committed. It must not block.
type Notifier interface {
	Notify(ev models.Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(models.Event) {}

type Service struct {
	alerts    repository.AlertRepository
	proposals repository.ProposalRepository
	spots     repository.SpotRepository

	confirm *ConfirmationEngine
	voting  *VotingEngine

	thresholds Thresholds
	clock      clockwork.Clock
	notifier   Notifier
	metrics    *metrics.Metrics
	locks      *keyedMutex
	newID      func() string
}

type Option func(*Service)

func WithThresholds(t Thresholds) Option {
	return func(s *Service) { s.thresholds = t }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func NewService(alerts repository.AlertRepository, proposals repository.ProposalRepository, spots repository.SpotRepository, opts ...Option) *Service {
	s := &Service{
		alerts:     alerts,
		proposals:  proposals,
		spots:      spots,
		thresholds: DefaultThresholds(),
		clock:      clockwork.NewRealClock(),
		notifier:   nopNotifier{},
		locks:      newKeyedMutex(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}

	s.confirm = NewConfirmationEngine(alerts, s.clock, s.thresholds, s.newID)
	s.voting = NewVotingEngine(proposals, s.clock, s.thresholds, s.newID)
	return s
}

func (s *Service) Thresholds() Thresholds {
	return s.thresholds
}

// ReportAlert records a hazard at a spot, escalating and proposing deletion
// when enough independent reporters agree.
func (s *Service) ReportAlert(ctx context.Context, spotID, reporterID, reason, details string) (*models.Alert, error) {
	if spotID == "" {
		return nil, s.reject(ErrMissingSpotID)
	}
	unlock := s.locks.Lock(spotID)
	defer unlock()

	out, err := s.confirm.Report(ctx, spotID, reporterID, reason, details)
	if err != nil {
		return nil, s.reject(err)
	}

	alert := out.Alert
	s.metrics.AlertsReported.WithLabelValues(string(alert.Reason)).Inc()
	slog.Info("alert reported", "spot_id", spotID, "alert_id", alert.ID, "reason", alert.Reason, "actor_id", reporterID)
	s.emit(models.Event{Type: models.EventAlertReported, SpotID: spotID, AlertID: alert.ID, Status: string(alert.Status), ActorID: reporterID})

	if esc := out.Escalated; esc != nil {
		s.metrics.Confirmations.Add(float64(out.Folded))
		if out.Promoted {
			s.metrics.AlertsEscalated.Inc()
			slog.Info("alert confirmed by independent reports",
				"spot_id", spotID, "alert_id", esc.ID, "total_confirmations", esc.TotalConfirmations())
			s.emit(models.Event{Type: models.EventAlertConfirmed, SpotID: spotID, AlertID: esc.ID, Status: string(esc.Status), ActorID: reporterID})
		}
	}

	if _, err := s.reclassify(ctx, spotID); err != nil {
		return nil, err
	}

	if out.ReachedDeleteThreshold(s.thresholds) {
		if _, err := s.proposeIfNone(ctx, spotID, out.Escalated.ID, reporterID); err != nil {
			return nil, err
		}
	}

	return alert, nil
}

type Confirmation struct {
	Alert              *models.Alert            `json:"alert"`
	TotalConfirmations int                      `json:"totalConfirmations"`
	Proposal           *models.DeletionProposal `json:"proposal,omitempty"`
}

// ConfirmAlert corroborates an alert. An empty alertID targets the most
// recently reported pending alert at the spot.
func (s *Service) ConfirmAlert(ctx context.Context, spotID, alertID, confirmerID string) (*Confirmation, error) {
	if spotID == "" {
		return nil, s.reject(ErrMissingSpotID)
	}
	unlock := s.locks.Lock(spotID)
	defer unlock()

	out, err := s.confirm.Confirm(ctx, spotID, alertID, confirmerID)
	if err != nil {
		return nil, s.reject(err)
	}

	alert := out.Alert
	s.metrics.Confirmations.Inc()
	slog.Info("alert confirmation recorded",
		"spot_id", spotID, "alert_id", alert.ID, "actor_id", confirmerID, "total_confirmations", out.TotalConfirmations)
	if out.Promoted {
		s.metrics.AlertsEscalated.Inc()
		slog.Info("alert confirmed", "spot_id", spotID, "alert_id", alert.ID, "status", alert.Status)
		s.emit(models.Event{Type: models.EventAlertConfirmed, SpotID: spotID, AlertID: alert.ID, Status: string(alert.Status), ActorID: confirmerID})
	}

	if _, err := s.reclassify(ctx, spotID); err != nil {
		return nil, err
	}

	res := &Confirmation{Alert: alert, TotalConfirmations: out.TotalConfirmations}
	if out.TotalConfirmations >= s.thresholds.Delete {
		p, err := s.proposeIfNone(ctx, spotID, alert.ID, confirmerID)
		if err != nil {
			return nil, err
		}
		res.Proposal = p
	}
	return res, nil
}

// DismissAlert removes an alert from every aggregate.
func (s *Service) DismissAlert(ctx context.Context, alertID, moderatorID, reason string) (*models.Alert, error) {
	return s.moderate(ctx, alertID, moderatorID, reason, s.confirm.Dismiss, models.EventAlertDismissed)
}

// ResolveAlert closes an alert whose hazard has been addressed.
func (s *Service) ResolveAlert(ctx context.Context, alertID, moderatorID, resolution string) (*models.Alert, error) {
	return s.moderate(ctx, alertID, moderatorID, resolution, s.confirm.Resolve, models.EventAlertResolved)
}

type moderateFunc func(ctx context.Context, alertID, moderatorID, note string) (*models.Alert, error)

func (s *Service) moderate(ctx context.Context, alertID, moderatorID, note string, apply moderateFunc, evType models.EventType) (*models.Alert, error) {
	if alertID == "" {
		return nil, s.reject(ErrMissingAlertID)
	}
	spotID, err := s.alertSpot(ctx, alertID)
	if err != nil {
		return nil, s.reject(err)
	}

	unlock := s.locks.Lock(spotID)
	defer unlock()

	alert, err := apply(ctx, alertID, moderatorID, note)
	if err != nil {
		return nil, s.reject(err)
	}

	s.metrics.AlertsModerated.WithLabelValues(string(alert.Status)).Inc()
	slog.Info("alert moderated", "spot_id", spotID, "alert_id", alert.ID, "status", alert.Status, "actor_id", moderatorID)
	s.emit(models.Event{Type: evType, SpotID: spotID, AlertID: alert.ID, Status: string(alert.Status), ActorID: moderatorID})

	if _, err := s.reclassify(ctx, spotID); err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *Service) alertSpot(ctx context.Context, alertID string) (string, error) {
	a, err := s.alerts.GetAlert(ctx, alertID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", newError(CodeAlertNotFound, "alert %s not found", alertID)
	}
	if err != nil {
		return "", fmt.Errorf("error loading alert %s: %w", alertID, err)
	}
	return a.SpotID, nil
}

// ProposeDeletion opens a deletion vote for a spot explicitly. alertID is
// optional and, when set, must name a visible alert at the spot.
func (s *Service) ProposeDeletion(ctx context.Context, spotID, alertID, proposerID string) (*models.DeletionProposal, error) {
	if spotID == "" {
		return nil, s.reject(ErrMissingSpotID)
	}
	unlock := s.locks.Lock(spotID)
	defer unlock()

	if alertID != "" {
		a, err := s.confirm.lookup(ctx, alertID)
		if err != nil {
			return nil, s.reject(err)
		}
		if a.SpotID != spotID {
			return nil, s.reject(newError(CodeAlertNotFound, "alert %s not found at spot %s", alertID, spotID))
		}
	}

	p, err := s.propose(ctx, spotID, alertID, proposerID)
	if err != nil {
		return nil, s.reject(err)
	}
	return p, nil
}

// proposeIfNone opens a proposal unless one is already open for the spot, in
// which case it returns the open one. Callers hold the spot lock.
func (s *Service) proposeIfNone(ctx context.Context, spotID, alertID, actorID string) (*models.DeletionProposal, error) {
	p, err := s.propose(ctx, spotID, alertID, actorID)
	if errors.Is(err, ErrAlreadyProposed) {
		existing, err := s.proposals.ActiveProposal(ctx, spotID)
		if err != nil {
			return nil, fmt.Errorf("error loading active proposal for spot %s: %w", spotID, err)
		}
		return existing, nil
	}
	return p, err
}

func (s *Service) propose(ctx context.Context, spotID, alertID, actorID string) (*models.DeletionProposal, error) {
	alerts, err := s.alerts.ListAlertsBySpot(ctx, spotID)
	if err != nil {
		return nil, fmt.Errorf("error loading alerts for spot %s: %w", spotID, err)
	}
	snap := Snapshot{Level: danger.Classify(alerts), Reasons: danger.Reasons(alerts)}

	p, err := s.voting.Propose(ctx, spotID, alertID, actorID, snap)
	if err != nil {
		return nil, err
	}

	s.metrics.ProposalsCreated.Inc()
	slog.Info("deletion proposed", "spot_id", spotID, "proposal_id", p.ID, "alert_id", alertID,
		"danger_level", p.DangerLevel, "actor_id", actorID)
	s.emit(models.Event{Type: models.EventProposalCreated, SpotID: spotID, AlertID: alertID, ProposalID: p.ID,
		Status: string(p.Status), DangerLevel: p.DangerLevel, ActorID: actorID})
	return p, nil
}

type VoteResult struct {
	Proposal *models.DeletionProposal `json:"proposal"`
	Resolved bool                     `json:"resolved"`
}

// VoteOnProposal casts or replaces voterID's vote on a proposal.
func (s *Service) VoteOnProposal(ctx context.Context, proposalID, voterID, choice string) (*VoteResult, error) {
	p, err := s.voting.Get(ctx, proposalID)
	if err != nil {
		return nil, s.reject(err)
	}

	unlock := s.locks.Lock(p.SpotID)
	defer unlock()

	out, err := s.voting.Vote(ctx, proposalID, voterID, choice)
	if err != nil {
		return nil, s.reject(err)
	}

	p = out.Proposal
	cast, _ := models.ParseVoteChoice(choice)
	s.metrics.Votes.WithLabelValues(string(cast)).Inc()
	slog.Info("vote recorded", "spot_id", p.SpotID, "proposal_id", p.ID, "actor_id", voterID,
		"approve", len(p.Votes.Approve), "reject", len(p.Votes.Reject))
	s.emit(models.Event{Type: models.EventProposalVoted, SpotID: p.SpotID, ProposalID: p.ID, Status: string(p.Status), ActorID: voterID})

	if out.Resolved {
		s.metrics.ProposalsResolved.WithLabelValues(string(p.Status)).Inc()
		slog.Info("deletion proposal resolved", "spot_id", p.SpotID, "proposal_id", p.ID, "status", p.Status)
		s.emit(models.Event{Type: models.EventProposalResolved, SpotID: p.SpotID, ProposalID: p.ID, Status: string(p.Status), ActorID: voterID})
	}

	return &VoteResult{Proposal: p, Resolved: out.Resolved}, nil
}

// MarkDeleted closes an approved proposal once the catalog removed its spot.
func (s *Service) MarkDeleted(ctx context.Context, proposalID, actorID string) (*models.DeletionProposal, error) {
	p, err := s.voting.Get(ctx, proposalID)
	if err != nil {
		return nil, s.reject(err)
	}

	unlock := s.locks.Lock(p.SpotID)
	defer unlock()

	p, err = s.voting.MarkDeleted(ctx, proposalID)
	if err != nil {
		return nil, s.reject(err)
	}

	s.metrics.ProposalsResolved.WithLabelValues(string(p.Status)).Inc()
	slog.Info("spot deletion recorded", "spot_id", p.SpotID, "proposal_id", p.ID, "actor_id", actorID)
	s.emit(models.Event{Type: models.EventProposalDeleted, SpotID: p.SpotID, ProposalID: p.ID, Status: string(p.Status), ActorID: actorID})
	return p, nil
}

// Reclassify recomputes and stores a spot's danger level. Other writers of the
// catalog's danger fields go through here so the level never goes stale.
func (s *Service) Reclassify(ctx context.Context, spotID string) (models.DangerLevel, error) {
	if spotID == "" {
		return "", s.reject(ErrMissingSpotID)
	}
	unlock := s.locks.Lock(spotID)
	defer unlock()

	return s.reclassify(ctx, spotID)
}

func (s *Service) reclassify(ctx context.Context, spotID string) (models.DangerLevel, error) {
	alerts, err := s.alerts.ListAlertsBySpot(ctx, spotID)
	if err != nil {
		return "", fmt.Errorf("error loading alerts for spot %s: %w", spotID, err)
	}

	level := danger.Classify(alerts)
	reasons := danger.Reasons(alerts)

	previous := models.DangerSafe
	spot, err := s.spots.GetSpot(ctx, spotID)
	switch {
	case err == nil:
		previous = spot.DangerLevel
	case !errors.Is(err, repository.ErrNotFound):
		return "", fmt.Errorf("error loading spot %s: %w", spotID, err)
	}

	if err := s.spots.SetDangerLevel(ctx, spotID, level, reasons); err != nil {
		return "", fmt.Errorf("error storing danger level for spot %s: %w", spotID, err)
	}

	if level != previous {
		slog.Info("danger level changed", "spot_id", spotID, "from", previous, "to", level)
		s.emit(models.Event{Type: models.EventDangerChanged, SpotID: spotID, DangerLevel: level})
	}
	return level, nil
}

// UpsertSpot stores catalog data for a spot and recomputes its danger fields
// from the alerts already on record.
func (s *Service) UpsertSpot(ctx context.Context, sp *models.Spot) (*models.Spot, error) {
	if sp == nil || sp.ID == "" {
		return nil, s.reject(ErrMissingSpotID)
	}
	unlock := s.locks.Lock(sp.ID)
	defer unlock()

	sp.UpdatedAt = s.clock.Now().UTC()
	if err := s.spots.UpsertSpot(ctx, sp); err != nil {
		return nil, fmt.Errorf("error storing spot %s: %w", sp.ID, err)
	}
	if _, err := s.reclassify(ctx, sp.ID); err != nil {
		return nil, err
	}
	slog.Info("spot upserted", "spot_id", sp.ID)
	return s.Spot(ctx, sp.ID)
}

func (s *Service) Spot(ctx context.Context, spotID string) (*models.Spot, error) {
	if spotID == "" {
		return nil, s.reject(ErrMissingSpotID)
	}
	sp, err := s.spots.GetSpot(ctx, spotID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, s.reject(newError(CodeSpotNotFound, "spot %s not found", spotID))
	}
	if err != nil {
		return nil, fmt.Errorf("error loading spot %s: %w", spotID, err)
	}
	return sp, nil
}

func (s *Service) Spots(ctx context.Context) ([]models.Spot, error) {
	spots, err := s.spots.ListSpots(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing spots: %w", err)
	}
	return spots, nil
}

// SpotAlerts lists a spot's alerts newest first. Dismissed alerts are left out
// unless includeDismissed is set.
func (s *Service) SpotAlerts(ctx context.Context, spotID string, includeDismissed bool) ([]models.Alert, error) {
	if spotID == "" {
		return nil, s.reject(ErrMissingSpotID)
	}
	alerts, err := s.alerts.ListAlertsBySpot(ctx, spotID)
	if err != nil {
		return nil, fmt.Errorf("error loading alerts for spot %s: %w", spotID, err)
	}

	out := make([]models.Alert, 0, len(alerts))
	for i := len(alerts) - 1; i >= 0; i-- {
		if includeDismissed || alerts[i].Status != models.AlertStatusDismissed {
			out = append(out, alerts[i])
		}
	}
	return out, nil
}

func (s *Service) Proposal(ctx context.Context, proposalID string) (*models.DeletionProposal, error) {
	p, err := s.voting.Get(ctx, proposalID)
	if err != nil {
		return nil, s.reject(err)
	}
	return p, nil
}

func (s *Service) Proposals(ctx context.Context, filter repository.ProposalFilter) ([]models.DeletionProposal, error) {
	proposals, err := s.proposals.ListProposals(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing proposals: %w", err)
	}
	return proposals, nil
}

func (s *Service) emit(ev models.Event) {
	ev.At = s.clock.Now().UTC()
	s.notifier.Notify(ev)
}

// reject counts and logs business errors and passes every error through.
func (s *Service) reject(err error) error {
	if e, ok := AsError(err); ok {
		s.metrics.CommandRejections.WithLabelValues(string(e.Code)).Inc()
		slog.Debug("command rejected", "code", e.Code, "message", e.Message)
		return err
	}
	slog.Error("command failed", "error", err)
	return err
}
