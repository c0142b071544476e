package renewal

import (
	"context"

	"github.com/xraph/roster/id"
)

type Store interface {
	// AppendRecord inserts a history record. Records are never updated
	// or deleted afterwards.
	AppendRecord(ctx context.Context, r *Record) error
	ListRecords(ctx context.Context, orgID id.OrganizationID, opts ListOpts) ([]*Record, error)
}

type ListOpts struct {
	Kind   Kind
	Limit  int
	Offset int
}
