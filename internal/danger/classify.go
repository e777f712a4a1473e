// Package danger derives a spot's danger level from its alerts.
//
// The level is never stored independently: callers recompute it after every
// alert mutation and write the result back to the spot catalog.
//
//	no active alerts            SAFE
//	one pending alert           CAUTION
//	two or more pending alerts  WARNING
//	any confirmed alert         DANGEROUS, or CRITICAL when the most severe
//	                            active alert is CRITICAL
package danger

import (
	"slices"

	"github.com/mr1hm/spot-safety/internal/models"
)

// Classify maps a spot's alerts to a danger level. Alerts that are not
// PENDING or CONFIRMED are ignored, so the full alert history may be passed.
func Classify(alerts []models.Alert) models.DangerLevel {
	active := ActiveAlerts(alerts)
	if len(active) == 0 {
		return models.DangerSafe
	}

	highest := HighestSeverity(active)

	for _, a := range active {
		if a.Status == models.AlertStatusConfirmed {
			if highest == models.SeverityCritical {
				return models.DangerCritical
			}
			return models.DangerDangerous
		}
	}

	if len(active) >= 2 {
		return models.DangerWarning
	}
	return models.DangerCaution
}

func ActiveAlerts(alerts []models.Alert) []models.Alert {
	active := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.Active() {
			active = append(active, a)
		}
	}
	return active
}

// HighestSeverity returns the most severe severity among alerts, or "" when
// alerts is empty.
func HighestSeverity(alerts []models.Alert) models.Severity {
	var highest models.Severity
	for _, a := range alerts {
		if highest == "" || a.Severity.Rank() < highest.Rank() {
			highest = a.Severity
		}
	}
	return highest
}

// Reasons lists the distinct reasons of the active alerts, most severe first
// and in first-reported order within a severity.
func Reasons(alerts []models.Alert) []models.Reason {
	active := ActiveAlerts(alerts)
	slices.SortStableFunc(active, func(a, b models.Alert) int {
		if r := a.Severity.Rank() - b.Severity.Rank(); r != 0 {
			return r
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	reasons := make([]models.Reason, 0, len(active))
	for _, a := range active {
		if !slices.Contains(reasons, a.Reason) {
			reasons = append(reasons, a.Reason)
		}
	}
	return reasons
}
