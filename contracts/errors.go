package contracts

import "errors"

var (
	// ErrInvalidZID is returned when a session identifier is not 1 to 32 lowercase hex chars
	ErrInvalidZID = errors.New("contracts: invalid zid")
	// ErrInvalidTimestamp is returned when a timestamp is not "<ZID>/<RFC3339>"
	ErrInvalidTimestamp = errors.New("contracts: invalid timestamp")
	// ErrInvalidPriority is returned for priorities outside 1..7
	ErrInvalidPriority = errors.New("contracts: invalid priority")
	// ErrInvalidCongestionControl is returned for unknown congestion control values
	ErrInvalidCongestionControl = errors.New("contracts: invalid congestion control")
	// ErrInvalidLocality is returned for unknown locality names
	ErrInvalidLocality = errors.New("contracts: invalid locality")
	// ErrInvalidTarget is returned for unknown query targets
	ErrInvalidTarget = errors.New("contracts: invalid query target")
	// ErrInvalidConsolidation is returned for unknown consolidation modes
	ErrInvalidConsolidation = errors.New("contracts: invalid consolidation mode")
	// ErrInvalidWhatAmI is returned for unknown node kinds
	ErrInvalidWhatAmI = errors.New("contracts: invalid whatami")
	// ErrQueryFinalized is returned when replying to a query whose handler already returned
	ErrQueryFinalized = errors.New("contracts: query is finalized")
)
