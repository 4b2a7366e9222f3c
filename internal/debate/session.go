// internal/debate/session.go
package debate

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTotalRounds is the fixed round count for a session. A round is one
// argument per side, so a full session plays DefaultTotalRounds*2 turns.
const DefaultTotalRounds = 5

// topicSelectorSpace bounds the shared topic selector. Both participants
// resolve the same index against their local topic list, so the server never
// stores topic text.
const topicSelectorSpace = 1000000

var (
	// ErrNotYourTurn rejects an argument submitted by the participant who
	// does not hold the turn.
	ErrNotYourTurn = errors.New("not your turn")

	// ErrSessionComplete rejects an argument submitted after the final round.
	ErrSessionComplete = errors.New("session is complete")
)

// Participant is one side of an active session.
type Participant struct {
	ConnID uuid.UUID `json:"connId"`
	Handle string    `json:"handle"`
	Stance Stance    `json:"stance"`
	Rating int       `json:"rating"`
	Icon   string    `json:"icon"`
	Banner string    `json:"banner"`
}

// TurnRecord is a single entry in the session's ordered argument log. A
// timed-out turn is recorded as an empty argument with Timeout set; it
// consumes the turn slot exactly like a submission.
type TurnRecord struct {
	Sender  uuid.UUID `json:"sender"`
	Content string    `json:"content"`
	Elapsed int       `json:"elapsed"`
	Timeout bool      `json:"timeout"`
}

// Result is the immutable summary handed to the OnEnd callback once a
// session completes its final round. It is safe to read without holding the
// session lock.
type Result struct {
	SessionID     uuid.UUID
	Category      Category
	Pace          Pace
	Private       bool
	TopicSelector int
	Participants  [2]Participant
	Turns         []TurnRecord
	Scores        map[uuid.UUID]int
}

// Session holds the entire state of one active debate. All mutation happens
// through SubmitTurn / TimeoutTurn / Abort while holding Mu; whose turn it
// is and which round is playing are both derived from the single
// MessagesPlayed counter.
type Session struct {
	ID            uuid.UUID
	Pace          Pace
	Category      Category
	Private       bool
	TopicSelector int

	Participants [2]Participant

	// CurrentTurn always equals one of the two participant connection ids
	// while the session is live.
	CurrentTurn    uuid.UUID
	Turns          []TurnRecord
	MessagesPlayed int
	TotalRounds    int
	Scores         map[uuid.UUID]int

	TurnDuration time.Duration
	// TurnID increments on every advancement and guards against stale timer
	// callbacks firing after the turn has already moved on.
	TurnID    int
	turnTimer *time.Timer

	Over      bool
	CreatedAt time.Time

	Mu sync.Mutex

	// BroadcastFn sends an event to both participants. Nil-safe.
	BroadcastFn func(ev Event)
	// OnEnd is invoked once, after the completion broadcast, when the final
	// round closes. The registry removal and post-game work hang off it.
	OnEnd func(res Result)
}

// NewSession pairs two consumed tickets into a session. The tickets must
// carry complementary stances; the participant holding the opening stance
// takes the first turn.
func NewSession(a, b *Ticket, pace Pace, category Category, private bool) *Session {
	id, _ := uuid.NewRandom()
	s := &Session{
		ID:            id,
		Pace:          pace,
		Category:      category,
		Private:       private,
		TopicSelector: rand.Intn(topicSelectorSpace),
		Participants: [2]Participant{
			{ConnID: a.ConnID, Handle: a.Handle, Stance: a.Stance, Rating: a.Rating, Icon: a.Icon, Banner: a.Banner},
			{ConnID: b.ConnID, Handle: b.Handle, Stance: b.Stance, Rating: b.Rating, Icon: b.Icon, Banner: b.Banner},
		},
		TotalRounds:  DefaultTotalRounds,
		Scores:       map[uuid.UUID]int{a.ConnID: 0, b.ConnID: 0},
		TurnDuration: pace.TurnDuration(),
		CreatedAt:    time.Now(),
	}
	s.CurrentTurn = a.ConnID
	if b.Stance == OpeningStance {
		s.CurrentTurn = b.ConnID
	}
	return s
}

// StartClock arms the deadline for the opening turn. Called once by the
// lifecycle controller after both participants have been notified.
func (s *Session) StartClock() {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Over {
		return
	}
	s.scheduleTurnTimer()
}

// SubmitTurn records an argument from connID, advances the turn pointer, and
// completes the session when the final round closes.
func (s *Session) SubmitTurn(connID uuid.UUID, content string, elapsed int) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if err := s.validateTurn(connID); err != nil {
		return err
	}
	s.advance(TurnRecord{Sender: connID, Content: content, Elapsed: elapsed})
	return nil
}

// TimeoutTurn forces an empty argument for connID. The transition is
// identical to SubmitTurn; a timeout is a submission with an empty payload,
// so the state machine has exactly one advancement path.
func (s *Session) TimeoutTurn(connID uuid.UUID) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if err := s.validateTurn(connID); err != nil {
		return err
	}
	s.advance(TurnRecord{Sender: connID, Timeout: true})
	return nil
}

// validateTurn assumes the lock is held.
func (s *Session) validateTurn(connID uuid.UUID) error {
	if s.Over || s.MessagesPlayed >= s.TotalRounds*2 {
		return ErrSessionComplete
	}
	if connID != s.CurrentTurn {
		return ErrNotYourTurn
	}
	return nil
}

// advance applies the single turn-advancement path shared by submissions and
// timeouts. Assumes the lock is held and the turn was validated.
func (s *Session) advance(rec TurnRecord) {
	s.Turns = append(s.Turns, rec)
	if !rec.Timeout {
		s.Scores[rec.Sender] += argumentScore(rec.Content, rec.Elapsed, int(s.TurnDuration.Seconds()))
	}
	s.MessagesPlayed++
	s.TurnID++

	round := RoundOf(s.MessagesPlayed, s.TotalRounds)
	completedRound := RoundCompleted(s.MessagesPlayed)

	other, _ := s.Other(rec.Sender)
	s.CurrentTurn = other

	ev := Event{
		Type:           EventArgumentRecorded,
		SessionID:      s.ID.String(),
		SenderID:       rec.Sender.String(),
		Content:        rec.Content,
		Elapsed:        rec.Elapsed,
		Round:          round,
		RoundCompleted: completedRound,
		TotalRounds:    s.TotalRounds,
	}
	if rec.Timeout {
		ev.Type = EventTurnTimedOut
		ev.Content = ""
		ev.Elapsed = 0
	}
	s.fire(ev)

	if completedRound && round >= s.TotalRounds {
		s.finish()
		return
	}

	s.fire(Event{
		Type:        EventTurnChange,
		SessionID:   s.ID.String(),
		CurrentTurn: s.CurrentTurn.String(),
		Round:       round,
	})
	s.scheduleTurnTimer()
}

// finish marks the session terminal, broadcasts completion, and hands the
// result to OnEnd. No turn_change follows a completion. Assumes lock held.
func (s *Session) finish() {
	s.Over = true
	s.stopTurnTimer()
	s.fire(Event{Type: EventSessionComplete, SessionID: s.ID.String()})
	if s.OnEnd != nil {
		s.OnEnd(s.result())
	}
}

// Abort marks the session terminal without a completion broadcast. The
// lifecycle controller uses it for explicit ends and forfeits, where it owns
// the outward notifications itself.
func (s *Session) Abort() {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.Over = true
	s.stopTurnTimer()
}

// scheduleTurnTimer arms the server-owned deadline for the current turn.
// When it fires, the timeout path runs exactly as if the holder had
// submitted an empty argument. Assumes lock held.
func (s *Session) scheduleTurnTimer() {
	if s.TurnDuration <= 0 {
		return
	}
	s.stopTurnTimer()

	holder := s.CurrentTurn
	turnID := s.TurnID
	s.turnTimer = time.AfterFunc(s.TurnDuration, func() {
		s.Mu.Lock()
		defer s.Mu.Unlock()
		// A submission may have raced the timer; TurnID identifies the exact
		// turn this deadline was armed for.
		if s.Over || s.TurnID != turnID || s.CurrentTurn != holder {
			return
		}
		s.advance(TurnRecord{Sender: holder, Timeout: true})
	})
}

// stopTurnTimer assumes lock held.
func (s *Session) stopTurnTimer() {
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
}

// Other returns the connection id of the participant opposite connID.
func (s *Session) Other(connID uuid.UUID) (uuid.UUID, bool) {
	switch connID {
	case s.Participants[0].ConnID:
		return s.Participants[1].ConnID, true
	case s.Participants[1].ConnID:
		return s.Participants[0].ConnID, true
	}
	return uuid.Nil, false
}

// HasParticipant reports whether connID is one of the two participants.
func (s *Session) HasParticipant(connID uuid.UUID) bool {
	return connID == s.Participants[0].ConnID || connID == s.Participants[1].ConnID
}

// HasPlayed reports whether any argument has been recorded yet. Used to
// distinguish an early walkout from a mid-session forfeit.
func (s *Session) HasPlayed() bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.MessagesPlayed > 0
}

// result assumes lock held.
func (s *Session) result() Result {
	turns := make([]TurnRecord, len(s.Turns))
	copy(turns, s.Turns)
	scores := make(map[uuid.UUID]int, len(s.Scores))
	for id, sc := range s.Scores {
		scores[id] = sc
	}
	return Result{
		SessionID:     s.ID,
		Category:      s.Category,
		Pace:          s.Pace,
		Private:       s.Private,
		TopicSelector: s.TopicSelector,
		Participants:  s.Participants,
		Turns:         turns,
		Scores:        scores,
	}
}

// fire sends an event to both participants if a broadcaster is attached.
// Assumes lock held; the broadcast implementation must not re-enter the
// session.
func (s *Session) fire(ev Event) {
	if s.BroadcastFn != nil {
		s.BroadcastFn(ev)
	}
}
