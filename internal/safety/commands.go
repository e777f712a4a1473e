package safety

import (
	"context"

	"github.com/mr1hm/spot-safety/internal/models"
)

// Result is the envelope every command returns. Expected business outcomes
// land in Error; Commands only return a Go error for infrastructure failures.
type Result[T any] struct {
	Success bool   `json:"success"`
	Value   T      `json:"value,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

func resultOf[T any](v T, err error) (Result[T], error) {
	if err == nil {
		return Result[T]{Success: true, Value: v}, nil
	}
	if e, ok := AsError(err); ok {
		return Result[T]{Error: e}, nil
	}
	return Result[T]{}, err
}

// Identity supplies the id of the actor issuing a command. It is trusted as
// given; authentication happens before this package.
type Identity interface {
	CurrentActorID(ctx context.Context) string
}

type actorKey struct{}

// WithActor returns a context carrying actorID for ContextIdentity.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ContextIdentity reads the actor id stored by WithActor.
type ContextIdentity struct{}

func (ContextIdentity) CurrentActorID(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}

// Commands is the command surface exposed to callers such as the HTTP API.
type Commands struct {
	svc      *Service
	identity Identity
}

func NewCommands(svc *Service, identity Identity) *Commands {
	return &Commands{svc: svc, identity: identity}
}

func (c *Commands) actor(ctx context.Context) string {
	return c.identity.CurrentActorID(ctx)
}

func (c *Commands) ReportAlert(ctx context.Context, spotID, reason, details string) (Result[*models.Alert], error) {
	v, err := c.svc.ReportAlert(ctx, spotID, c.actor(ctx), reason, details)
	return resultOf(v, err)
}

func (c *Commands) ConfirmAlert(ctx context.Context, spotID, alertID string) (Result[*Confirmation], error) {
	v, err := c.svc.ConfirmAlert(ctx, spotID, alertID, c.actor(ctx))
	return resultOf(v, err)
}

func (c *Commands) DismissAlert(ctx context.Context, alertID, reason string) (Result[*models.Alert], error) {
	v, err := c.svc.DismissAlert(ctx, alertID, c.actor(ctx), reason)
	return resultOf(v, err)
}

func (c *Commands) ResolveAlert(ctx context.Context, alertID, resolution string) (Result[*models.Alert], error) {
	v, err := c.svc.ResolveAlert(ctx, alertID, c.actor(ctx), resolution)
	return resultOf(v, err)
}

func (c *Commands) ProposeDeletion(ctx context.Context, spotID, alertID string) (Result[*models.DeletionProposal], error) {
	v, err := c.svc.ProposeDeletion(ctx, spotID, alertID, c.actor(ctx))
	return resultOf(v, err)
}

func (c *Commands) VoteOnProposal(ctx context.Context, proposalID, choice string) (Result[*VoteResult], error) {
	v, err := c.svc.VoteOnProposal(ctx, proposalID, c.actor(ctx), choice)
	return resultOf(v, err)
}

func (c *Commands) MarkDeleted(ctx context.Context, proposalID string) (Result[*models.DeletionProposal], error) {
	v, err := c.svc.MarkDeleted(ctx, proposalID, c.actor(ctx))
	return resultOf(v, err)
}
