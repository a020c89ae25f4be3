package contracts

import (
	"fmt"
	"strconv"
	"strings"
)

// Priority is the publication priority, 1 (highest) to 7 (lowest)
type Priority int

const (
	PriorityRealTime        Priority = 1
	PriorityInteractiveHigh Priority = 2
	PriorityInteractiveLow  Priority = 3
	PriorityDataHigh        Priority = 4
	PriorityData            Priority = 5
	PriorityDataLow         Priority = 6
	PriorityBackground      Priority = 7
)

// ParsePriority parses a numeric priority
func ParsePriority(s string) (Priority, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	p := Priority(n)
	if !p.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPriority, n)
	}
	return p, nil
}

// Valid reports whether p is within 1..7
func (p Priority) Valid() bool {
	return p >= PriorityRealTime && p <= PriorityBackground
}

func (p Priority) String() string {
	switch p {
	case PriorityRealTime:
		return "real-time"
	case PriorityInteractiveHigh:
		return "interactive-high"
	case PriorityInteractiveLow:
		return "interactive-low"
	case PriorityDataHigh:
		return "data-high"
	case PriorityData:
		return "data"
	case PriorityDataLow:
		return "data-low"
	case PriorityBackground:
		return "background"
	default:
		return strconv.Itoa(int(p))
	}
}

// CongestionControl selects what happens when the network is congested
type CongestionControl int

const (
	// CongestionDrop drops the message
	CongestionDrop CongestionControl = iota
	// CongestionBlock blocks the publisher
	CongestionBlock
)

// ParseCongestionControl accepts 0/drop and 1/block
func ParseCongestionControl(s string) (CongestionControl, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "drop":
		return CongestionDrop, nil
	case "1", "block":
		return CongestionBlock, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCongestionControl, s)
}

func (c CongestionControl) String() string {
	if c == CongestionBlock {
		return "block"
	}
	return "drop"
}

// Reliability is the requested delivery guarantee
type Reliability int

const (
	BestEffort Reliability = iota
	Reliable
)

func (r Reliability) String() string {
	if r == Reliable {
		return "reliable"
	}
	return "best-effort"
}

// Locality restricts the origin or destination of messages
type Locality int

const (
	// LocalityAny allows local and remote peers
	LocalityAny Locality = iota
	// LocalityRemote allows remote peers only
	LocalityRemote
	// LocalitySessionLocal allows the declaring session only
	LocalitySessionLocal
)

// ParseLocality parses any, remote or session-local
func ParseLocality(s string) (Locality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "any":
		return LocalityAny, nil
	case "remote":
		return LocalityRemote, nil
	case "session-local", "session_local":
		return LocalitySessionLocal, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLocality, s)
}

func (l Locality) String() string {
	switch l {
	case LocalityRemote:
		return "remote"
	case LocalitySessionLocal:
		return "session-local"
	default:
		return "any"
	}
}

// Allows reports whether a message between two sessions passes the filter
func (l Locality) Allows(local bool) bool {
	switch l {
	case LocalityRemote:
		return !local
	case LocalitySessionLocal:
		return local
	default:
		return true
	}
}

// QueryTarget selects which queryables receive a query
type QueryTarget int

const (
	TargetBestMatching QueryTarget = iota
	TargetAll
	TargetAllComplete
)

// ParseQueryTarget parses all, all-complete or best-matching
func ParseQueryTarget(s string) (QueryTarget, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return TargetAll, nil
	case "all-complete", "all_complete":
		return TargetAllComplete, nil
	case "best-matching", "best_matching":
		return TargetBestMatching, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTarget, s)
}

func (t QueryTarget) String() string {
	switch t {
	case TargetAll:
		return "all"
	case TargetAllComplete:
		return "all-complete"
	default:
		return "best-matching"
	}
}

// ConsolidationMode controls how replies for the same key are merged
type ConsolidationMode int

const (
	ConsolidationAuto ConsolidationMode = iota
	ConsolidationNone
	ConsolidationMonotonic
	ConsolidationLatest
)

// ParseConsolidation parses auto, latest, monotonic or none
func ParseConsolidation(s string) (ConsolidationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto":
		return ConsolidationAuto, nil
	case "none":
		return ConsolidationNone, nil
	case "monotonic":
		return ConsolidationMonotonic, nil
	case "latest":
		return ConsolidationLatest, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidConsolidation, s)
}

func (c ConsolidationMode) String() string {
	switch c {
	case ConsolidationNone:
		return "none"
	case ConsolidationMonotonic:
		return "monotonic"
	case ConsolidationLatest:
		return "latest"
	default:
		return "auto"
	}
}
