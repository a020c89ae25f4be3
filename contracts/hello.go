package contracts

import (
	"fmt"
	"strings"
)

// WhatAmI is the role of a node
type WhatAmI int

const (
	Router WhatAmI = iota
	Peer
	Client
)

// ParseWhatAmI parses router, peer or client
func ParseWhatAmI(s string) (WhatAmI, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "router":
		return Router, nil
	case "peer":
		return Peer, nil
	case "client":
		return Client, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWhatAmI, s)
}

func (w WhatAmI) String() string {
	switch w {
	case Router:
		return "router"
	case Client:
		return "client"
	default:
		return "peer"
	}
}

// Hello is a scouting answer
type Hello struct {
	ZID      ZID
	WhatAmI  WhatAmI
	Locators []string
}
