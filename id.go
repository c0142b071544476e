package roster

import "github.com/xraph/roster/id"

// ID is the primary identifier type for all Roster entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
