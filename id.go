package tickledger

import "github.com/xraph/tickledger/id"

// ID is the primary identifier type for all tickledger entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
