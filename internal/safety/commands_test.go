package safety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/spot-safety/internal/models"
	"github.com/mr1hm/spot-safety/internal/repository"
)

func TestCommands_ResultEnvelope(t *testing.T) {
	f := newFixture(t)
	cmds := NewCommands(f.svc, ContextIdentity{})
	ctx := WithActor(context.Background(), "alice")

	res, err := cmds.ReportAlert(ctx, "S1", "theft", "bike stolen")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, res.Error)
	require.NotNil(t, res.Value)
	assert.Equal(t, "alice", res.Value.ReporterID)
	assert.Equal(t, "bike stolen", res.Value.Details)

	res, err = cmds.ReportAlert(ctx, "S1", "theft", "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Nil(t, res.Value)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeDuplicateReport, res.Error.Code)
}

func TestCommands_ActorComesFromIdentity(t *testing.T) {
	f := newFixture(t)
	cmds := NewCommands(f.svc, ContextIdentity{})

	res, err := cmds.ReportAlert(context.Background(), "S1", "theft", "")
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeMissingActorID, res.Error.Code)

	a := f.report(t, "S1", "alice", models.ReasonTheft)

	own, err := cmds.ConfirmAlert(WithActor(context.Background(), "alice"), "S1", a.ID)
	require.NoError(t, err)
	require.NotNil(t, own.Error)
	assert.Equal(t, CodeCannotConfirmOwnReport, own.Error.Code)

	other, err := cmds.ConfirmAlert(WithActor(context.Background(), "bob"), "S1", a.ID)
	require.NoError(t, err)
	require.True(t, other.Success)
	assert.Equal(t, 2, other.Value.TotalConfirmations)
}

func TestCommands_ProposalFlow(t *testing.T) {
	f := newFixture(t)
	cmds := NewCommands(f.svc, ContextIdentity{})
	as := func(id string) context.Context { return WithActor(context.Background(), id) }

	p, err := cmds.ProposeDeletion(as("alice"), "S1", "")
	require.NoError(t, err)
	require.True(t, p.Success)

	vote, err := cmds.VoteOnProposal(as("bob"), p.Value.ID, "maybe")
	require.NoError(t, err)
	require.NotNil(t, vote.Error)
	assert.Equal(t, CodeInvalidVote, vote.Error.Code)

	for _, voter := range []string{"v1", "v2", "v3", "v4", "v5"} {
		vote, err = cmds.VoteOnProposal(as(voter), p.Value.ID, "approve")
		require.NoError(t, err)
		require.True(t, vote.Success)
	}
	assert.True(t, vote.Value.Resolved)
	assert.Equal(t, models.ProposalStatusApproved, vote.Value.Proposal.Status)

	del, err := cmds.MarkDeleted(as("catalog"), p.Value.ID)
	require.NoError(t, err)
	require.True(t, del.Success)
	assert.Equal(t, models.ProposalStatusDeleted, del.Value.Status)

	again, err := cmds.MarkDeleted(as("catalog"), p.Value.ID)
	require.NoError(t, err)
	require.NotNil(t, again.Error)
	assert.Equal(t, CodeInvalidTransition, again.Error.Code)
}

func TestCommands_Moderation(t *testing.T) {
	f := newFixture(t)
	cmds := NewCommands(f.svc, ContextIdentity{})
	ctx := WithActor(context.Background(), "mod")

	a := f.report(t, "S1", "alice", models.ReasonTheft)

	res, err := cmds.ResolveAlert(ctx, a.ID, "lock installed")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, models.AlertStatusResolved, res.Value.Status)
	assert.Equal(t, "mod", res.Value.ModeratedBy)

	res, err = cmds.DismissAlert(ctx, "nope", "")
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeAlertNotFound, res.Error.Code)
}

func TestCommands_InfrastructureErrorsEscape(t *testing.T) {
	store := failingStore{repository.NewMemoryStore()}
	cmds := NewCommands(NewService(store, store, store), ContextIdentity{})

	res, err := cmds.ReportAlert(WithActor(context.Background(), "alice"), "S1", "theft", "")
	assert.ErrorIs(t, err, errDiskGone)
	assert.False(t, res.Success)
	assert.Nil(t, res.Error)
}

func TestErrorKinds(t *testing.T) {
	assert.Equal(t, KindValidation, CodeInvalidVote.Kind())
	assert.Equal(t, KindConflict, CodeAlreadyProposed.Kind())
	assert.Equal(t, KindNotFound, CodeProposalNotFound.Kind())

	err := newError(CodeAlertClosed, "alert %s is resolved", "a1")
	assert.ErrorIs(t, err, ErrAlertClosed)
	assert.NotErrorIs(t, err, ErrAlertNotFound)
	assert.Equal(t, "AlertClosed: alert a1 is resolved", err.Error())
}
