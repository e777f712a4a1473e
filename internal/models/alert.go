package models

import (
	"slices"
	"strings"
	"time"
)

type Severity string

const (
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities with the most severe first (CRITICAL=0).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

type Reason string

const (
	ReasonTheft         Reason = "theft"
	ReasonAssault       Reason = "assault"
	ReasonHostilePolice Reason = "hostile_police"
	ReasonDangerousRoad Reason = "dangerous_road"
	ReasonWildAnimals   Reason = "wild_animals"
)

var reasonSeverity = map[Reason]Severity{
	ReasonTheft:         SeverityHigh,
	ReasonAssault:       SeverityCritical,
	ReasonHostilePolice: SeverityHigh,
	ReasonDangerousRoad: SeverityMedium,
	ReasonWildAnimals:   SeverityMedium,
}

// ParseReason accepts both the lower snake case wire form and the upper case
// constant form ("THEFT", "hostile_police").
func ParseReason(s string) (Reason, bool) {
	r := Reason(strings.ToLower(strings.TrimSpace(s)))
	_, ok := reasonSeverity[r]
	return r, ok
}

func (r Reason) Valid() bool {
	_, ok := reasonSeverity[r]
	return ok
}

func (r Reason) Severity() Severity {
	return reasonSeverity[r]
}

type AlertStatus string

const (
	AlertStatusPending   AlertStatus = "PENDING"
	AlertStatusConfirmed AlertStatus = "CONFIRMED"
	AlertStatusDismissed AlertStatus = "DISMISSED"
	AlertStatusResolved  AlertStatus = "RESOLVED"
)

type Alert struct {
	ID             string      `json:"id"`
	SpotID         string      `json:"spotId"`
	Reason         Reason      `json:"reason"`
	Severity       Severity    `json:"severity"`
	Details        string      `json:"details"`
	ReporterID     string      `json:"reporterId"`
	Status         AlertStatus `json:"status"`
	Confirmations  []string    `json:"confirmations"`
	ModeratedBy    string      `json:"moderatedBy,omitempty"`
	ModerationNote string      `json:"moderationNote,omitempty"`
	Version        int64       `json:"version"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Active reports whether the alert still counts toward classification and
// escalation thresholds.
func (a *Alert) Active() bool {
	return a.Status == AlertStatusPending || a.Status == AlertStatusConfirmed
}

func (a *Alert) HasConfirmation(actorID string) bool {
	return slices.Contains(a.Confirmations, actorID)
}

// AddConfirmation appends actorID unless it is the reporter or already present.
func (a *Alert) AddConfirmation(actorID string) bool {
	if actorID == "" || actorID == a.ReporterID || a.HasConfirmation(actorID) {
		return false
	}
	a.Confirmations = append(a.Confirmations, actorID)
	return true
}

// TotalConfirmations counts the reporter as an implicit confirmer.
func (a *Alert) TotalConfirmations() int {
	return len(a.Confirmations) + 1
}

func (a *Alert) Clone() *Alert {
	c := *a
	c.Confirmations = slices.Clone(a.Confirmations)
	return &c
}
