package safety

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/spot-safety/internal/models"
	"github.com/mr1hm/spot-safety/internal/repository"
)

// ConfirmationEngine owns the alert lifecycle: reporting, confirmation and
// moderation. Callers must serialize calls per spot; the engine itself only
// relies on the repository's compare-and-swap to detect lost updates.
type ConfirmationEngine struct {
	alerts     repository.AlertRepository
	clock      clockwork.Clock
	thresholds Thresholds
	newID      func() string
}

func NewConfirmationEngine(alerts repository.AlertRepository, clock clockwork.Clock, thresholds Thresholds, newID func() string) *ConfirmationEngine {
	return &ConfirmationEngine{
		alerts:     alerts,
		clock:      clock,
		thresholds: thresholds,
		newID:      newID,
	}
}

type ReportOutcome struct {
	Alert *models.Alert
	// Escalated is the alert that absorbed this report as corroboration, if
	// the reason crossed the confirmation threshold. It may be Alert itself.
	Escalated *models.Alert
	// Promoted is set when Escalated moved from PENDING to CONFIRMED.
	Promoted bool
	// Folded counts confirmations added to Escalated by this report.
	Folded int
}

// ReachedDeleteThreshold reports whether the escalated alert is corroborated
// enough to open a deletion proposal.
func (o *ReportOutcome) ReachedDeleteThreshold(t Thresholds) bool {
	return o.Escalated != nil && o.Escalated.TotalConfirmations() >= t.Delete
}

// Report creates a PENDING alert. Once the spot holds Thresholds.Confirm
// active alerts for the reason, the reporters are treated as confirmers: the
// most severe pending alert is promoted to CONFIRMED with the other
// same-reason reporters folded into its confirmations, or, when a confirmed
// alert for the reason already exists, the new reporter is folded into it.
func (e *ConfirmationEngine) Report(ctx context.Context, spotID, reporterID, rawReason, details string) (*ReportOutcome, error) {
	if spotID == "" {
		return nil, ErrMissingSpotID
	}
	if reporterID == "" {
		return nil, ErrMissingActorID
	}
	if strings.TrimSpace(rawReason) == "" {
		return nil, ErrMissingReason
	}
	reason, ok := models.ParseReason(rawReason)
	if !ok {
		return nil, newError(CodeInvalidReason, "unknown reason %q", rawReason)
	}

	alerts, err := e.alerts.ListAlertsBySpot(ctx, spotID)
	if err != nil {
		return nil, fmt.Errorf("error loading alerts for spot %s: %w", spotID, err)
	}
	for _, a := range alerts {
		if a.ReporterID == reporterID && a.Reason == reason && a.Status != models.AlertStatusDismissed {
			return nil, newError(CodeDuplicateReport, "%s already reported %s at spot %s", reporterID, reason, spotID)
		}
	}

	now := e.clock.Now().UTC()
	alert := &models.Alert{
		ID:            e.newID(),
		SpotID:        spotID,
		Reason:        reason,
		Severity:      reason.Severity(),
		Details:       strings.TrimSpace(details),
		ReporterID:    reporterID,
		Status:        models.AlertStatusPending,
		Confirmations: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.alerts.AddAlert(ctx, alert); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(CodeDuplicateReport, "%s already reported %s at spot %s", reporterID, reason, spotID)
		}
		return nil, fmt.Errorf("error saving alert: %w", err)
	}
	alerts = append(alerts, *alert.Clone())

	outcome := &ReportOutcome{Alert: alert}
	if countActive(alerts, reason) < e.thresholds.Confirm {
		return outcome, nil
	}

	target, promote := escalationTarget(alerts, reason)
	if target == nil {
		return outcome, nil
	}

	if promote {
		target.Status = models.AlertStatusConfirmed
		for _, a := range alerts {
			if a.Active() && a.Reason == target.Reason && target.AddConfirmation(a.ReporterID) {
				outcome.Folded++
			}
		}
	} else if target.AddConfirmation(reporterID) {
		outcome.Folded++
	}

	if !promote && outcome.Folded == 0 {
		return outcome, nil
	}

	// The report is stored already; a failed escalation is picked up again by
	// the next report or confirmation for the reason.
	target.UpdatedAt = now
	if err := e.alerts.UpdateAlert(ctx, target); err != nil {
		slog.Warn("alert escalation failed", "spot_id", spotID, "alert_id", target.ID, "error", err)
		return &ReportOutcome{Alert: alert}, nil
	}

	outcome.Escalated = target
	outcome.Promoted = promote
	if target.ID == alert.ID {
		outcome.Alert = target
	}
	return outcome, nil
}

// escalationTarget picks the alert a threshold-crossing report escalates: an
// already confirmed alert for the same reason, otherwise the most severe
// pending alert at the spot (earliest reported wins a severity tie). The
// returned alert is a copy.
func escalationTarget(alerts []models.Alert, reason models.Reason) (*models.Alert, bool) {
	for i := range alerts {
		if alerts[i].Status == models.AlertStatusConfirmed && alerts[i].Reason == reason {
			return alerts[i].Clone(), false
		}
	}

	var best *models.Alert
	for i := range alerts {
		a := &alerts[i]
		if a.Status != models.AlertStatusPending {
			continue
		}
		if best == nil || a.Severity.Rank() < best.Severity.Rank() {
			best = a
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Clone(), true
}

func countActive(alerts []models.Alert, reason models.Reason) int {
	n := 0
	for _, a := range alerts {
		if a.Active() && a.Reason == reason {
			n++
		}
	}
	return n
}

type ConfirmOutcome struct {
	Alert              *models.Alert
	TotalConfirmations int
	Promoted           bool
}

// Confirm records confirmerID on an alert. Without alertID the most recently
// reported PENDING alert at the spot is confirmed.
func (e *ConfirmationEngine) Confirm(ctx context.Context, spotID, alertID, confirmerID string) (*ConfirmOutcome, error) {
	if spotID == "" {
		return nil, ErrMissingSpotID
	}
	if confirmerID == "" {
		return nil, ErrMissingActorID
	}

	alert, err := e.confirmTarget(ctx, spotID, alertID)
	if err != nil {
		return nil, err
	}

	if confirmerID == alert.ReporterID {
		return nil, newError(CodeCannotConfirmOwnReport, "%s reported alert %s", confirmerID, alert.ID)
	}
	if !alert.AddConfirmation(confirmerID) {
		return nil, newError(CodeAlreadyConfirmed, "%s already confirmed alert %s", confirmerID, alert.ID)
	}

	outcome := &ConfirmOutcome{Alert: alert, TotalConfirmations: alert.TotalConfirmations()}
	if alert.Status == models.AlertStatusPending && outcome.TotalConfirmations >= e.thresholds.Confirm {
		alert.Status = models.AlertStatusConfirmed
		outcome.Promoted = true
	}

	alert.UpdatedAt = e.clock.Now().UTC()
	if err := e.alerts.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("error saving confirmation on alert %s: %w", alert.ID, err)
	}
	return outcome, nil
}

func (e *ConfirmationEngine) confirmTarget(ctx context.Context, spotID, alertID string) (*models.Alert, error) {
	if alertID != "" {
		alert, err := e.lookup(ctx, alertID)
		if err != nil {
			return nil, err
		}
		if alert.SpotID != spotID {
			return nil, newError(CodeAlertNotFound, "alert %s not found at spot %s", alertID, spotID)
		}
		if alert.Status == models.AlertStatusResolved {
			return nil, newError(CodeAlertClosed, "alert %s is resolved", alertID)
		}
		return alert, nil
	}

	alerts, err := e.alerts.ListAlertsBySpot(ctx, spotID)
	if err != nil {
		return nil, fmt.Errorf("error loading alerts for spot %s: %w", spotID, err)
	}
	latest := LatestPending(alerts)
	if latest == nil {
		return nil, newError(CodeAlertNotFound, "no pending alert at spot %s", spotID)
	}
	return latest.Clone(), nil
}

// LatestPending returns the PENDING alert with the newest CreatedAt, preferring
// the later-reported alert when timestamps are equal.
func LatestPending(alerts []models.Alert) *models.Alert {
	var latest *models.Alert
	for i := range alerts {
		a := &alerts[i]
		if a.Status != models.AlertStatusPending {
			continue
		}
		if latest == nil || !a.CreatedAt.Before(latest.CreatedAt) {
			latest = a
		}
	}
	return latest
}

// lookup loads an alert, hiding dismissed ones.
func (e *ConfirmationEngine) lookup(ctx context.Context, alertID string) (*models.Alert, error) {
	if alertID == "" {
		return nil, ErrMissingAlertID
	}
	alert, err := e.alerts.GetAlert(ctx, alertID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(CodeAlertNotFound, "alert %s not found", alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading alert %s: %w", alertID, err)
	}
	if alert.Status == models.AlertStatusDismissed {
		return nil, newError(CodeAlertNotFound, "alert %s not found", alertID)
	}
	return alert, nil
}

// Dismiss marks an alert as a false or abusive report.
func (e *ConfirmationEngine) Dismiss(ctx context.Context, alertID, moderatorID, note string) (*models.Alert, error) {
	return e.moderate(ctx, alertID, moderatorID, note, models.AlertStatusDismissed)
}

// Resolve marks the hazard behind an alert as addressed.
func (e *ConfirmationEngine) Resolve(ctx context.Context, alertID, moderatorID, resolution string) (*models.Alert, error) {
	return e.moderate(ctx, alertID, moderatorID, resolution, models.AlertStatusResolved)
}

func (e *ConfirmationEngine) moderate(ctx context.Context, alertID, moderatorID, note string, status models.AlertStatus) (*models.Alert, error) {
	// Dismissed alerts are terminal and hidden like missing ones.
	alert, err := e.lookup(ctx, alertID)
	if err != nil {
		return nil, err
	}

	alert.Status = status
	alert.ModeratedBy = moderatorID
	alert.ModerationNote = strings.TrimSpace(note)
	alert.UpdatedAt = e.clock.Now().UTC()
	if err := e.alerts.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("error saving alert %s: %w", alert.ID, err)
	}
	return alert, nil
}
