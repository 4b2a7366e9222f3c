// internal/debate/debate.go
//
// Shared vocabulary for the debate core: stances, paces, categories, and the
// pool ticket that represents a participant waiting to be matched.
package debate

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Stance is one of the two mutually exclusive positions argued in a session.
// The two stances in a session are always complementary.
type Stance string

const (
	StanceFor     Stance = "for"
	StanceAgainst Stance = "against"
)

// OpeningStance always takes the first turn of a new session.
const OpeningStance = StanceFor

// Opposite returns the complementary stance.
func (s Stance) Opposite() Stance {
	if s == StanceFor {
		return StanceAgainst
	}
	return StanceFor
}

// ParseStance validates a client-supplied stance string.
func ParseStance(v string) (Stance, error) {
	switch Stance(v) {
	case StanceFor, StanceAgainst:
		return Stance(v), nil
	}
	return "", errors.New("stance must be \"for\" or \"against\"")
}

// Pace is a named timing profile fixing the per-turn duration.
type Pace string

const (
	PaceFast     Pace = "fast"
	PaceStandard Pace = "standard"
)

// TurnDuration returns the wall-clock budget for a single argument.
func (p Pace) TurnDuration() time.Duration {
	if p == PaceFast {
		return 30 * time.Second
	}
	return 60 * time.Second
}

// ParsePace validates a client-supplied pace string.
func ParsePace(v string) (Pace, error) {
	switch Pace(v) {
	case PaceFast, PaceStandard:
		return Pace(v), nil
	}
	return "", errors.New("pace must be \"fast\" or \"standard\"")
}

// Category separates rated play from practice. Ranked affects rating updates
// after completion but not the turn-level state machine.
type Category string

const (
	CategoryRanked   Category = "ranked"
	CategoryPractice Category = "practice"
)

// ParseCategory validates a client-supplied category string.
func ParseCategory(v string) (Category, error) {
	switch Category(v) {
	case CategoryRanked, CategoryPractice:
		return Category(v), nil
	}
	return "", errors.New("category must be \"ranked\" or \"practice\"")
}

// Ticket is a waiting request to be matched: the participant's connection,
// public profile fields, and the constraints they queued under. A ticket
// lives only inside a pool list or a private lobby; it is consumed on match.
type Ticket struct {
	ConnID   uuid.UUID
	Handle   string
	Stance   Stance
	Category Category
	Pace     Pace
	Rating   int
	Icon     string
	Banner   string
}

// Profile returns the ticket's public fields as shown to an opponent.
func (t *Ticket) Profile() *OpponentProfile {
	return &OpponentProfile{
		Handle: t.Handle,
		Rating: t.Rating,
		Icon:   t.Icon,
		Banner: t.Banner,
	}
}
