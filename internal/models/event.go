package models

import "time"

type EventType string

const (
	EventAlertReported    EventType = "alert.reported"
	EventAlertConfirmed   EventType = "alert.confirmed"
	EventAlertDismissed   EventType = "alert.dismissed"
	EventAlertResolved    EventType = "alert.resolved"
	EventDangerChanged    EventType = "danger.changed"
	EventProposalCreated  EventType = "proposal.created"
	EventProposalVoted    EventType = "proposal.voted"
	EventProposalResolved EventType = "proposal.resolved"
	EventProposalDeleted  EventType = "proposal.deleted"
)

// Event is an outcome handed to the notification layer after a command commits.
type Event struct {
	Type        EventType   `json:"type"`
	SpotID      string      `json:"spotId"`
	AlertID     string      `json:"alertId,omitempty"`
	ProposalID  string      `json:"proposalId,omitempty"`
	Status      string      `json:"status,omitempty"`
	DangerLevel DangerLevel `json:"dangerLevel,omitempty"`
	ActorID     string      `json:"actorId,omitempty"`
	At          time.Time   `json:"at"`
}
