package billing

import (
	"context"

	"github.com/xraph/roster/id"
	"github.com/xraph/roster/types"
)

// DeadLetter is a billing event that could not be applied and was
// parked for operator review. The original body is preserved verbatim
// so the event can be replayed after the underlying issue is fixed.
type DeadLetter struct {
	types.Entity
	ID             id.DeadLetterID   `json:"id"`
	EventID        string            `json:"event_id"`
	Kind           Kind              `json:"kind"`
	OrganizationID id.OrganizationID `json:"organization_id,omitzero"`
	Body           []byte            `json:"body"`
	Reason         string            `json:"reason"`
	Attempts       int               `json:"attempts"`
}

// Store persists reconciliation bookkeeping: the permanent processed-
// event markers and the dead-letter queue.
type Store interface {
	// MarkEventProcessed permanently claims an event ID. Returns a
	// conflict error when the ID was already claimed, which is how
	// redelivered events become no-ops.
	MarkEventProcessed(ctx context.Context, eventID string) error
	CreateDeadLetter(ctx context.Context, dl *DeadLetter) error
	ListDeadLetters(ctx context.Context, opts DeadLetterListOpts) ([]*DeadLetter, error)
}

type DeadLetterListOpts struct {
	OrganizationID id.OrganizationID
	Limit          int
	Offset         int
}
