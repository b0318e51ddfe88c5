package lineup

import (
	"errors"
	"maps"
	"strings"
)

var ErrUnknownPosition = errors.New("unknown roster position")
var ErrUnknownSide = errors.New("unknown side")

type Position string

const (
	PosQB   Position = "QB"
	PosRB   Position = "RB"
	PosWR   Position = "WR"
	PosTE   Position = "TE"
	PosFLEX Position = "FLEX"
)

// Positions is the fixed slot order of every roster.
var Positions = []Position{PosQB, PosRB, PosWR, PosTE, PosFLEX}

func ParsePosition(s string) (Position, error) {
	p := Position(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Positions {
		if p == known {
			return p, nil
		}
	}
	return "", ErrUnknownPosition
}

type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideHome:
		return SideHome, nil
	case SideAway:
		return SideAway, nil
	default:
		return "", ErrUnknownSide
	}
}

// Roster maps each position to a player id; "" marks an empty slot.
type Roster map[Position]string

func NewRoster() Roster {
	r := make(Roster, len(Positions))
	for _, p := range Positions {
		r[p] = ""
	}
	return r
}

// Assign returns a copy of r with playerID in pos.
func (r Roster) Assign(pos Position, playerID string) (Roster, error) {
	if _, err := ParsePosition(string(pos)); err != nil {
		return r, err
	}
	out := maps.Clone(r)
	if out == nil {
		out = NewRoster()
	}
	out[pos] = playerID
	return out, nil
}

func (r Roster) Clear(pos Position) (Roster, error) {
	return r.Assign(pos, "")
}

// PlayerIDs lists the assigned player ids in slot order.
func (r Roster) PlayerIDs() []string {
	ids := make([]string, 0, len(Positions))
	for _, p := range Positions {
		if id := r[p]; id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

type Lineup struct {
	Home   Roster  `json:"home"`
	Away   Roster  `json:"away"`
	Result *Result `json:"result,omitempty"`
}

func NewLineup() Lineup {
	return Lineup{Home: NewRoster(), Away: NewRoster()}
}

func (l Lineup) Roster(side Side) Roster {
	if side == SideAway {
		return l.Away
	}
	return l.Home
}

// WithRoster replaces one side and drops any result computed for the old rosters.
func (l Lineup) WithRoster(side Side, r Roster) Lineup {
	next := l
	if side == SideAway {
		next.Away = r
	} else {
		next.Home = r
	}
	next.Result = nil
	return next
}

// Holds reports whether l still has exactly these rosters.
func (l Lineup) Holds(home, away Roster) bool {
	return maps.Equal(l.Home, home) && maps.Equal(l.Away, away)
}
