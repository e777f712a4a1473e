package models

import (
	"slices"
	"strings"
	"time"
)

type ProposalStatus string

const (
	ProposalStatusProposed ProposalStatus = "PROPOSED"
	ProposalStatusApproved ProposalStatus = "APPROVED"
	ProposalStatusRejected ProposalStatus = "REJECTED"
	ProposalStatusDeleted  ProposalStatus = "DELETED"
)

func ParseProposalStatus(s string) (ProposalStatus, bool) {
	st := ProposalStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case ProposalStatusProposed, ProposalStatusApproved, ProposalStatusRejected, ProposalStatusDeleted:
		return st, true
	}
	return "", false
}

type VoteChoice string

const (
	VoteApprove VoteChoice = "approve"
	VoteReject  VoteChoice = "reject"
)

func ParseVoteChoice(s string) (VoteChoice, bool) {
	c := VoteChoice(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case VoteApprove, VoteReject:
		return c, true
	}
	return "", false
}

type Votes struct {
	Approve []string `json:"approve"`
	Reject  []string `json:"reject"`
}

func (v Votes) Total() int {
	return len(v.Approve) + len(v.Reject)
}

// Cast removes any earlier vote by voterID before recording the new one.
func (v *Votes) Cast(voterID string, choice VoteChoice) {
	v.Approve = slices.DeleteFunc(v.Approve, func(id string) bool { return id == voterID })
	v.Reject = slices.DeleteFunc(v.Reject, func(id string) bool { return id == voterID })

	switch choice {
	case VoteApprove:
		v.Approve = append(v.Approve, voterID)
	case VoteReject:
		v.Reject = append(v.Reject, voterID)
	}
}

type DeletionProposal struct {
	ID                string         `json:"id"`
	SpotID            string         `json:"spotId"`
	TriggeringAlertID string         `json:"triggeringAlertId,omitempty"`
	ProposedBy        string         `json:"proposedBy"`
	Status            ProposalStatus `json:"status"`
	DangerLevel       DangerLevel    `json:"dangerLevel"`
	DangerReasons     []Reason       `json:"dangerReasons"`
	Votes             Votes          `json:"votes"`
	Version           int64          `json:"version"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	ResolvedAt        *time.Time     `json:"resolvedAt,omitempty"`
}

func (p *DeletionProposal) Open() bool {
	return p.Status == ProposalStatusProposed
}

func (p *DeletionProposal) Clone() *DeletionProposal {
	c := *p
	c.DangerReasons = slices.Clone(p.DangerReasons)
	c.Votes = Votes{
		Approve: slices.Clone(p.Votes.Approve),
		Reject:  slices.Clone(p.Votes.Reject),
	}
	if p.ResolvedAt != nil {
		t := *p.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}
