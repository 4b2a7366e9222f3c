// internal/debate/session_test.go
package debate

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster collects broadcast events instead of sending them over WS.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (mb *mockBroadcaster) broadcastFn(ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.events = append(mb.events, ev)
}

func (mb *mockBroadcaster) all() []Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	out := make([]Event, len(mb.events))
	copy(out, mb.events)
	return out
}

func (mb *mockBroadcaster) last() *Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.events) == 0 {
		return nil
	}
	return &mb.events[len(mb.events)-1]
}

func (mb *mockBroadcaster) countType(t EventType) int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	n := 0
	for _, ev := range mb.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func testTickets() (*Ticket, *Ticket) {
	forSide := &Ticket{
		ConnID:   uuid.New(),
		Handle:   "ada",
		Stance:   StanceFor,
		Category: CategoryPractice,
		Pace:     PaceStandard,
	}
	againstSide := &Ticket{
		ConnID:   uuid.New(),
		Handle:   "bryn",
		Stance:   StanceAgainst,
		Category: CategoryPractice,
		Pace:     PaceStandard,
	}
	return forSide, againstSide
}

// setupTestSession builds a session with the turn timer disabled so tests
// drive every advancement explicitly.
func setupTestSession(t *testing.T) (*Session, *Ticket, *Ticket, *mockBroadcaster) {
	t.Helper()
	forSide, againstSide := testTickets()
	s := NewSession(forSide, againstSide, PaceStandard, CategoryPractice, false)
	s.TurnDuration = 0
	mb := &mockBroadcaster{}
	s.BroadcastFn = mb.broadcastFn
	return s, forSide, againstSide, mb
}

func TestOpeningStanceHolderGoesFirst(t *testing.T) {
	forSide, againstSide := testTickets()

	s := NewSession(forSide, againstSide, PaceFast, CategoryRanked, false)
	assert.Equal(t, forSide.ConnID, s.CurrentTurn)
	assert.Equal(t, 30*time.Second, s.TurnDuration)

	// Ticket order must not matter, only the opening stance.
	s = NewSession(againstSide, forSide, PaceStandard, CategoryRanked, false)
	assert.Equal(t, forSide.ConnID, s.CurrentTurn)
}

func TestTurnAlternationAndCompletion(t *testing.T) {
	s, forSide, againstSide, mb := setupTestSession(t)

	var ended []Result
	s.OnEnd = func(res Result) { ended = append(ended, res) }

	sender := forSide.ConnID
	other := againstSide.ConnID
	for i := 1; i <= s.TotalRounds*2; i++ {
		require.NoError(t, s.SubmitTurn(sender, "argument", 5))
		assert.Equal(t, i, s.MessagesPlayed)
		assert.Equal(t, other, s.CurrentTurn, "turn pointer must flip to the non-caller")

		recorded := mb.last()
		if i < s.TotalRounds*2 {
			require.Equal(t, EventTurnChange, recorded.Type)
			assert.Equal(t, other.String(), recorded.CurrentTurn)
		}
		sender, other = other, sender
	}

	require.Len(t, ended, 1, "OnEnd must fire exactly once")
	assert.Equal(t, s.TotalRounds*2, len(ended[0].Turns))
	assert.True(t, s.Over)

	events := mb.all()
	// The 9th argument closes no round; the 10th closes round 5 and the
	// session, with no trailing turn_change.
	var recorded []Event
	for _, ev := range events {
		if ev.Type == EventArgumentRecorded {
			recorded = append(recorded, ev)
		}
	}
	require.Len(t, recorded, 10)
	assert.False(t, recorded[8].RoundCompleted)
	assert.Equal(t, 5, recorded[8].Round)
	assert.True(t, recorded[9].RoundCompleted)
	assert.Equal(t, 5, recorded[9].Round)

	require.Equal(t, EventSessionComplete, events[len(events)-1].Type)
	assert.Equal(t, 9, mb.countType(EventTurnChange))
}

func TestOutOfTurnSubmissionRejected(t *testing.T) {
	s, _, againstSide, mb := setupTestSession(t)

	err := s.SubmitTurn(againstSide.ConnID, "me first", 3)
	require.ErrorIs(t, err, ErrNotYourTurn)

	assert.Equal(t, 0, s.MessagesPlayed)
	assert.NotEqual(t, againstSide.ConnID, s.CurrentTurn)
	assert.Empty(t, mb.all(), "a rejected submission must not broadcast")
}

func TestSubmissionAfterCompletionRejected(t *testing.T) {
	s, forSide, againstSide, _ := setupTestSession(t)

	sender, other := forSide.ConnID, againstSide.ConnID
	for i := 0; i < s.TotalRounds*2; i++ {
		require.NoError(t, s.SubmitTurn(sender, "argument", 1))
		sender, other = other, sender
	}

	err := s.SubmitTurn(sender, "one more", 1)
	assert.ErrorIs(t, err, ErrSessionComplete)
	assert.Equal(t, s.TotalRounds*2, s.MessagesPlayed)
}

func TestTimeoutIsForcedEmptySubmission(t *testing.T) {
	s, forSide, againstSide, mb := setupTestSession(t)

	require.NoError(t, s.TimeoutTurn(forSide.ConnID))

	require.Len(t, s.Turns, 1)
	rec := s.Turns[0]
	assert.True(t, rec.Timeout)
	assert.Empty(t, rec.Content)
	assert.Zero(t, rec.Elapsed)
	assert.Equal(t, 0, s.Scores[forSide.ConnID], "timed-out turns score nothing")
	assert.Equal(t, againstSide.ConnID, s.CurrentTurn)

	events := mb.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventTurnTimedOut, events[0].Type)
	assert.Equal(t, EventTurnChange, events[1].Type)

	// Only the holder can be timed out.
	err := s.TimeoutTurn(forSide.ConnID)
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestServerDeadlineFiresTimeout(t *testing.T) {
	s, forSide, againstSide, mb := setupTestSession(t)
	s.TurnDuration = 30 * time.Millisecond

	s.StartClock()
	time.Sleep(100 * time.Millisecond)

	s.Mu.Lock()
	played := s.MessagesPlayed
	holder := s.CurrentTurn
	first := s.Turns[0]
	s.Mu.Unlock()

	require.GreaterOrEqual(t, played, 1)
	assert.True(t, first.Timeout)
	assert.Equal(t, forSide.ConnID, first.Sender)
	if played == 1 {
		assert.Equal(t, againstSide.ConnID, holder)
	}
	assert.GreaterOrEqual(t, mb.countType(EventTurnTimedOut), 1)
}

func TestSubmissionDisarmsDeadline(t *testing.T) {
	s, forSide, _, _ := setupTestSession(t)
	s.TurnDuration = 60 * time.Millisecond

	s.StartClock()
	require.NoError(t, s.SubmitTurn(forSide.ConnID, "quick reply", 0))

	// The stale timer for turn 0 must not fire a second advancement for the
	// original holder.
	time.Sleep(90 * time.Millisecond)
	s.Mu.Lock()
	defer s.Mu.Unlock()
	for _, rec := range s.Turns {
		if rec.Sender == forSide.ConnID {
			assert.False(t, rec.Timeout)
		}
	}
	assert.False(t, s.Turns[0].Timeout)
}

func TestAbortStopsSession(t *testing.T) {
	s, forSide, _, mb := setupTestSession(t)

	s.Abort()
	err := s.SubmitTurn(forSide.ConnID, "too late", 1)
	assert.ErrorIs(t, err, ErrSessionComplete)
	assert.Empty(t, mb.all())
}

func TestScoresAccumulateForFallback(t *testing.T) {
	s, forSide, againstSide, _ := setupTestSession(t)

	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	require.NoError(t, s.SubmitTurn(forSide.ConnID, string(long), 5))
	require.NoError(t, s.SubmitTurn(againstSide.ConnID, "ok", 55))

	assert.Greater(t, s.Scores[forSide.ConnID], s.Scores[againstSide.ConnID])
}
