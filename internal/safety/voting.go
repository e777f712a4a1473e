package safety

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/spot-safety/internal/models"
	"github.com/mr1hm/spot-safety/internal/repository"
)

// VotingEngine owns deletion proposals: opening them, tallying votes and
// resolving them by majority once quorum is reached.
type VotingEngine struct {
	proposals  repository.ProposalRepository
	clock      clockwork.Clock
	thresholds Thresholds
	newID      func() string
}

func NewVotingEngine(proposals repository.ProposalRepository, clock clockwork.Clock, thresholds Thresholds, newID func() string) *VotingEngine {
	return &VotingEngine{
		proposals:  proposals,
		clock:      clock,
		thresholds: thresholds,
		newID:      newID,
	}
}

// Snapshot is the spot's danger classification captured on a new proposal.
type Snapshot struct {
	Level   models.DangerLevel
	Reasons []models.Reason
}

// Propose opens a deletion proposal for the spot. It fails with
// AlreadyProposed while another proposal for the spot is open.
func (e *VotingEngine) Propose(ctx context.Context, spotID, triggeringAlertID, proposedBy string, snap Snapshot) (*models.DeletionProposal, error) {
	if spotID == "" {
		return nil, ErrMissingSpotID
	}
	if proposedBy == "" {
		return nil, ErrMissingActorID
	}

	existing, err := e.proposals.ActiveProposal(ctx, spotID)
	if err == nil {
		return nil, newError(CodeAlreadyProposed, "proposal %s is already open for spot %s", existing.ID, spotID)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("error loading active proposal for spot %s: %w", spotID, err)
	}

	now := e.clock.Now().UTC()
	p := &models.DeletionProposal{
		ID:                e.newID(),
		SpotID:            spotID,
		TriggeringAlertID: triggeringAlertID,
		ProposedBy:        proposedBy,
		Status:            models.ProposalStatusProposed,
		DangerLevel:       snap.Level,
		DangerReasons:     slices.Clone(snap.Reasons),
		Votes:             models.Votes{Approve: []string{}, Reject: []string{}},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if p.DangerReasons == nil {
		p.DangerReasons = []models.Reason{}
	}

	if err := e.proposals.AddProposal(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(CodeAlreadyProposed, "a proposal is already open for spot %s", spotID)
		}
		return nil, fmt.Errorf("error saving proposal: %w", err)
	}
	return p, nil
}

type VoteOutcome struct {
	Proposal *models.DeletionProposal
	// Resolved is true only on the vote that moved the proposal out of PROPOSED.
	Resolved bool
}

// Vote records voterID's choice, replacing any earlier vote by the same
// voter. Once the total reaches the quorum the strict majority decides; a tie
// leaves the proposal open.
func (e *VotingEngine) Vote(ctx context.Context, proposalID, voterID, rawChoice string) (*VoteOutcome, error) {
	p, err := e.Get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !p.Open() {
		return nil, newError(CodeProposalClosed, "proposal %s is %s", p.ID, p.Status)
	}
	choice, ok := models.ParseVoteChoice(rawChoice)
	if !ok {
		return nil, newError(CodeInvalidVote, "vote must be approve or reject, got %q", rawChoice)
	}
	if voterID == "" {
		return nil, ErrMissingActorID
	}

	p.Votes.Cast(voterID, choice)

	outcome := &VoteOutcome{Proposal: p}
	now := e.clock.Now().UTC()
	if status, decided := tally(p.Votes, e.thresholds.Quorum); decided {
		p.Status = status
		p.ResolvedAt = &now
		outcome.Resolved = true
	}

	p.UpdatedAt = now
	if err := e.proposals.UpdateProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("error saving vote on proposal %s: %w", p.ID, err)
	}
	return outcome, nil
}

func tally(v models.Votes, quorum int) (models.ProposalStatus, bool) {
	if v.Total() < quorum {
		return models.ProposalStatusProposed, false
	}
	approve, reject := len(v.Approve), len(v.Reject)
	switch {
	case approve > reject:
		return models.ProposalStatusApproved, true
	case reject > approve:
		return models.ProposalStatusRejected, true
	default:
		return models.ProposalStatusProposed, false
	}
}

// MarkDeleted records that the catalog removed the spot of an approved proposal.
func (e *VotingEngine) MarkDeleted(ctx context.Context, proposalID string) (*models.DeletionProposal, error) {
	p, err := e.Get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.ProposalStatusApproved {
		return nil, newError(CodeInvalidTransition, "proposal %s is %s, only APPROVED proposals can be marked deleted", p.ID, p.Status)
	}

	p.Status = models.ProposalStatusDeleted
	p.UpdatedAt = e.clock.Now().UTC()
	if err := e.proposals.UpdateProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("error saving proposal %s: %w", p.ID, err)
	}
	return p, nil
}

func (e *VotingEngine) Get(ctx context.Context, proposalID string) (*models.DeletionProposal, error) {
	if proposalID == "" {
		return nil, ErrMissingProposalID
	}
	p, err := e.proposals.GetProposal(ctx, proposalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(CodeProposalNotFound, "proposal %s not found", proposalID)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading proposal %s: %w", proposalID, err)
	}
	return p, nil
}
