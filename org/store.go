package org

import (
	"context"
	"time"

	"github.com/xraph/roster/id"
)

type Store interface {
	Get(ctx context.Context, orgID id.OrganizationID) (*Organization, error)
	GetByOwner(ctx context.Context, ownerID id.AccountID) (*Organization, error)
	List(ctx context.Context, opts ListOpts) ([]*Organization, error)
	Update(ctx context.Context, o *Organization) error
	// ListExpiredTrials returns trial organizations whose trial expired
	// before the cutoff instant.
	ListExpiredTrials(ctx context.Context, cutoff time.Time, opts ListOpts) ([]*Organization, error)
}

type ListOpts struct {
	TrialOnly bool
	Limit     int
	Offset    int
}
