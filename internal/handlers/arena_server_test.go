package handlers

import (
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rebuttal-gg/rebuttal/internal/debate"
	"github.com/rebuttal-gg/rebuttal/internal/judge"
)

func newTestServer() *DebateServer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv := NewDebateServer(logger)
	srv.Judge = &judge.Client{} // judge disabled; finalize uses the fallback
	return srv
}

// newTestConn registers a connection and drains the welcome event.
func newTestConn(t *testing.T, srv *DebateServer) *ArenaConn {
	t.Helper()
	conn := &ArenaConn{
		ID:      uuid.New(),
		Cancel:  func() {},
		OutChan: make(chan debate.Event, 64),
	}
	srv.Register(conn)
	ev := nextEvent(t, conn)
	require.Equal(t, debate.EventWelcome, ev.Type)
	require.Equal(t, conn.ID.String(), ev.ConnID)
	return conn
}

func nextEvent(t *testing.T, conn *ArenaConn) debate.Event {
	t.Helper()
	select {
	case ev := <-conn.OutChan:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event on conn %s", conn.ID)
		return debate.Event{}
	}
}

// nextEventOfType discards events until one with the wanted type arrives.
func nextEventOfType(t *testing.T, conn *ArenaConn, want debate.EventType) debate.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-conn.OutChan:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s on conn %s", want, conn.ID)
			return debate.Event{}
		}
	}
}

func ticket(conn *ArenaConn, handle string, stance debate.Stance, category debate.Category, pace debate.Pace) *debate.Ticket {
	return &debate.Ticket{
		ConnID:   conn.ID,
		Handle:   handle,
		Stance:   stance,
		Category: category,
		Pace:     pace,
		Rating:   100,
		Icon:     "👤",
		Banner:   "#3b82f6",
	}
}

func TestJoinQueuePairsOppositeStances(t *testing.T) {
	srv := newTestServer()
	alice := newTestConn(t, srv)
	bob := newTestConn(t, srv)

	srv.JoinQueue(ticket(alice, "alice", debate.StanceFor, debate.CategoryPractice, debate.PaceFast))
	ev := nextEvent(t, alice)
	require.Equal(t, debate.EventQueueStatus, ev.Type)
	assert.Equal(t, 1, ev.Position)

	srv.JoinQueue(ticket(bob, "bob", debate.StanceAgainst, debate.CategoryPractice, debate.PaceFast))

	aliceMatch := nextEvent(t, alice)
	bobMatch := nextEvent(t, bob)
	require.Equal(t, debate.EventMatchFound, aliceMatch.Type)
	require.Equal(t, debate.EventMatchFound, bobMatch.Type)

	assert.Equal(t, aliceMatch.SessionID, bobMatch.SessionID)
	assert.Equal(t, aliceMatch.TopicSelector, bobMatch.TopicSelector)
	assert.Equal(t, "bob", aliceMatch.Opponent.Handle)
	assert.Equal(t, "alice", bobMatch.Opponent.Handle)
	assert.Equal(t, debate.StanceFor, aliceMatch.Stance)
	assert.Equal(t, debate.StanceAgainst, aliceMatch.OpponentStance)
	assert.True(t, aliceMatch.OpensFirst, "the for stance argues first")
	assert.False(t, bobMatch.OpensFirst)

	assert.Equal(t, 0, srv.Pool.Waiting(debate.CategoryPractice, debate.PaceFast))
	assert.Equal(t, 1, srv.Sessions.Len())
}

func TestJoinQueueSameStanceWaits(t *testing.T) {
	srv := newTestServer()
	alice := newTestConn(t, srv)
	bob := newTestConn(t, srv)

	srv.JoinQueue(ticket(alice, "alice", debate.StanceFor, debate.CategoryRanked, debate.PaceStandard))
	srv.JoinQueue(ticket(bob, "bob", debate.StanceFor, debate.CategoryRanked, debate.PaceStandard))

	assert.Equal(t, 1, nextEvent(t, alice).Position)
	assert.Equal(t, 2, nextEvent(t, bob).Position)
	assert.Equal(t, 2, srv.Pool.Waiting(debate.CategoryRanked, debate.PaceStandard))
}

func TestLobbyFlowCreatesPrivatePracticeSession(t *testing.T) {
	srv := newTestServer()
	host := newTestConn(t, srv)
	guest := newTestConn(t, srv)

	srv.CreateLobby(ticket(host, "host", debate.StanceFor, debate.CategoryPractice, debate.PaceFast))
	created := nextEvent(t, host)
	require.Equal(t, debate.EventLobbyCreated, created.Type)
	require.Len(t, created.Code, 6)

	// Guest asks for the host's stance and is silently flipped.
	srv.JoinLobby(ticket(guest, "guest", debate.StanceFor, debate.CategoryPractice, debate.PaceFast), created.Code)

	hostMatch := nextEvent(t, host)
	guestMatch := nextEvent(t, guest)
	require.Equal(t, debate.EventMatchFound, hostMatch.Type)
	require.Equal(t, debate.EventMatchFound, guestMatch.Type)
	assert.Equal(t, debate.StanceFor, hostMatch.Stance)
	assert.Equal(t, debate.StanceAgainst, guestMatch.Stance)
	assert.Equal(t, debate.CategoryPractice, guestMatch.Category)

	_, still := srv.Lobbies.Get(created.Code)
	assert.False(t, still, "a consumed code must not resolve again")
}

func TestJoinLobbyErrors(t *testing.T) {
	srv := newTestServer()
	host := newTestConn(t, srv)
	guest := newTestConn(t, srv)

	srv.JoinLobby(ticket(guest, "guest", debate.StanceFor, debate.CategoryPractice, debate.PaceFast), "ZZZZZZ")
	ev := nextEvent(t, guest)
	require.Equal(t, debate.EventLobbyError, ev.Type)
	assert.Equal(t, "no lobby with that code", ev.Message)

	srv.CreateLobby(ticket(host, "host", debate.StanceFor, debate.CategoryPractice, debate.PaceStandard))
	created := nextEvent(t, host)

	srv.JoinLobby(ticket(guest, "guest", debate.StanceAgainst, debate.CategoryPractice, debate.PaceFast), created.Code)
	ev = nextEvent(t, guest)
	require.Equal(t, debate.EventLobbyError, ev.Type)
	assert.Equal(t, "this lobby uses a different pace", ev.Message)

	// The mismatch must not consume the lobby.
	_, still := srv.Lobbies.Get(created.Code)
	assert.True(t, still)

	// A dead host invalidates the code on the next join attempt.
	srv.conns.remove(host.ID)
	srv.JoinLobby(ticket(guest, "guest", debate.StanceAgainst, debate.CategoryPractice, debate.PaceStandard), created.Code)
	ev = nextEvent(t, guest)
	require.Equal(t, debate.EventLobbyError, ev.Type)
	assert.Equal(t, "the host has disconnected", ev.Message)
	_, still = srv.Lobbies.Get(created.Code)
	assert.False(t, still)
}

func TestCreateLobbyReplacesPriorLobby(t *testing.T) {
	srv := newTestServer()
	host := newTestConn(t, srv)

	srv.CreateLobby(ticket(host, "host", debate.StanceFor, debate.CategoryPractice, debate.PaceFast))
	first := nextEvent(t, host)

	srv.CreateLobby(ticket(host, "host", debate.StanceAgainst, debate.CategoryPractice, debate.PaceFast))
	cancelled := nextEvent(t, host)
	require.Equal(t, debate.EventLobbyCancelled, cancelled.Type)
	assert.Equal(t, first.Code, cancelled.Code)
	assert.Equal(t, "replaced by a new lobby", cancelled.Reason)

	second := nextEvent(t, host)
	require.Equal(t, debate.EventLobbyCreated, second.Type)
	assert.NotEqual(t, first.Code, second.Code)

	_, still := srv.Lobbies.Get(first.Code)
	assert.False(t, still)
}

func TestEndSessionForfeitNotifiesOpponent(t *testing.T) {
	srv := newTestServer()
	alice := newTestConn(t, srv)
	bob := newTestConn(t, srv)
	sessionID := pairUp(t, srv, alice, bob)

	srv.EndSession(alice.ID, sessionID, true)

	ev := nextEvent(t, bob)
	require.Equal(t, debate.EventOpponentLeft, ev.Type)
	assert.True(t, ev.Forfeit)
	assert.True(t, ev.BeforeStart, "no argument was played yet")
	assert.Equal(t, 0, srv.Sessions.Len())

	// Alice hears nothing back; the forfeit notification is one-sided.
	select {
	case ev := <-alice.OutChan:
		t.Fatalf("unexpected event for the forfeiting side: %s", ev.Type)
	default:
	}
}

func TestDisconnectSweepsPoolLobbyAndSessions(t *testing.T) {
	srv := newTestServer()
	alice := newTestConn(t, srv)
	bob := newTestConn(t, srv)
	sessionID := pairUp(t, srv, alice, bob)

	// Alice also waits in another pool and hosts a lobby.
	srv.JoinQueue(ticket(alice, "alice", debate.StanceFor, debate.CategoryRanked, debate.PaceStandard))
	nextEvent(t, alice)
	srv.CreateLobby(ticket(alice, "alice", debate.StanceFor, debate.CategoryPractice, debate.PaceStandard))
	created := nextEvent(t, alice)

	srv.HandleDisconnect(alice.ID)

	ev := nextEvent(t, bob)
	require.Equal(t, debate.EventOpponentLeft, ev.Type)
	assert.Equal(t, sessionID.String(), ev.SessionID)
	assert.True(t, ev.Forfeit)

	assert.Equal(t, 0, srv.Pool.Waiting(debate.CategoryRanked, debate.PaceStandard))
	_, still := srv.Lobbies.Get(created.Code)
	assert.False(t, still)
	assert.Equal(t, 0, srv.Sessions.Len())
	assert.False(t, srv.connAlive(alice.ID))
}

func TestSubmitTurnRejectionsAnswerSenderOnly(t *testing.T) {
	srv := newTestServer()
	alice := newTestConn(t, srv)
	bob := newTestConn(t, srv)

	srv.SubmitTurn(alice.ID, uuid.New(), "hello", 5)
	ev := nextEvent(t, alice)
	require.Equal(t, debate.EventError, ev.Type)
	assert.Equal(t, "session not found", ev.Message)

	sessionID := pairUp(t, srv, alice, bob)

	// Bob argues against and does not hold the opening turn.
	srv.SubmitTurn(bob.ID, sessionID, "me first", 3)
	ev = nextEvent(t, bob)
	require.Equal(t, debate.EventError, ev.Type)
	assert.Equal(t, "not your turn", ev.Message)

	select {
	case ev := <-alice.OutChan:
		t.Fatalf("rejection leaked to the other participant: %s", ev.Type)
	default:
	}
}

func TestFullSessionResolvesWithFallbackVerdict(t *testing.T) {
	srv := newTestServer()
	alice := newTestConn(t, srv)
	bob := newTestConn(t, srv)
	sessionID := pairUp(t, srv, alice, bob)

	// Alice opens (for); ten alternating turns complete the session.
	turn := []uuid.UUID{alice.ID, bob.ID}
	for i := 0; i < 10; i++ {
		content := "argument"
		if turn[i%2] == bob.ID {
			content = "" // empty turns score zero
		}
		srv.SubmitTurn(turn[i%2], sessionID, content, 2)
	}

	nextEventOfType(t, alice, debate.EventSessionComplete)
	nextEventOfType(t, bob, debate.EventSessionComplete)

	verdict := nextEventOfType(t, alice, debate.EventVerdict)
	require.NotNil(t, verdict.Payload)
	assert.Equal(t, judge.WinnerFor, verdict.Payload["winner"])
	assert.Equal(t, sessionID.String(), verdict.SessionID)
	nextEventOfType(t, bob, debate.EventVerdict)

	assert.Equal(t, 0, srv.Sessions.Len())
}

// pairUp queues both connections in the practice/fast pool and returns the
// created session id. Alice argues for and opens.
func pairUp(t *testing.T, srv *DebateServer, alice, bob *ArenaConn) uuid.UUID {
	t.Helper()
	srv.JoinQueue(ticket(alice, "alice", debate.StanceFor, debate.CategoryPractice, debate.PaceFast))
	nextEvent(t, alice) // queue_status
	srv.JoinQueue(ticket(bob, "bob", debate.StanceAgainst, debate.CategoryPractice, debate.PaceFast))

	aliceMatch := nextEvent(t, alice)
	require.Equal(t, debate.EventMatchFound, aliceMatch.Type)
	nextEvent(t, bob)

	id, err := uuid.Parse(aliceMatch.SessionID)
	require.NoError(t, err)
	return id
}
