// internal/handlers/arena_server.go
package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rebuttal-gg/rebuttal/internal/cache"
	"github.com/rebuttal-gg/rebuttal/internal/database"
	"github.com/rebuttal-gg/rebuttal/internal/debate"
	"github.com/rebuttal-gg/rebuttal/internal/judge"
	"github.com/rebuttal-gg/rebuttal/internal/rating"
)

// ArenaConn is a single participant's presence in the arena: the server-side
// half of one WebSocket, identified by a generated connection id.
type ArenaConn struct {
	ID      uuid.UUID
	Cancel  func()
	OutChan chan debate.Event
}

// Send pushes an event onto the connection's outbound channel without
// blocking. Sends are fire-and-forget; a full or closed channel drops the
// event and the write pump's own failure handling tears the socket down.
func (c *ArenaConn) Send(ev debate.Event) {
	select {
	case c.OutChan <- ev:
	default:
		logrus.WithFields(logrus.Fields{
			"conn": c.ID,
			"type": ev.Type,
		}).Warn("outbound channel full, dropped event")
	}
}

// SendError is a convenience for the explicit-feedback rule: a rejected
// intent must never be silently dropped.
func (c *ArenaConn) SendError(msg string) {
	c.Send(debate.Event{Type: debate.EventError, Message: msg})
}

// DebateServer is the session lifecycle controller. It owns the matchmaking
// pool, the private lobby directory, the session registry, and the live
// connection table; every participant intent lands on one of its methods.
type DebateServer struct {
	Logger   *logrus.Logger
	Pool     *debate.Pool
	Lobbies  *debate.LobbyDirectory
	Sessions *debate.SessionStore
	Judge    *judge.Client

	conns *connTable
}

// NewDebateServer wires an empty controller.
func NewDebateServer(logger *logrus.Logger) *DebateServer {
	if logger == nil {
		logger = logrus.New()
	}
	return &DebateServer{
		Logger:   logger,
		Pool:     debate.NewPool(),
		Lobbies:  debate.NewLobbyDirectory(),
		Sessions: debate.NewSessionStore(),
		Judge:    judge.NewClientFromEnv(),
		conns:    newConnTable(),
	}
}

// Register adds a live connection and announces its assigned id.
func (s *DebateServer) Register(conn *ArenaConn) {
	s.conns.add(conn)
	conn.Send(debate.Event{Type: debate.EventWelcome, ConnID: conn.ID.String()})
}

// connAlive reports whether a connection id is still registered.
func (s *DebateServer) connAlive(id uuid.UUID) bool {
	_, ok := s.conns.get(id)
	return ok
}

// sendTo delivers an event to a connection if it is still live.
func (s *DebateServer) sendTo(id uuid.UUID, ev debate.Event) {
	if conn, ok := s.conns.get(id); ok {
		conn.Send(ev)
	}
}

// JoinQueue offers a ticket to the open matchmaking pool: either an
// immediate pairing or a queue position reply.
func (s *DebateServer) JoinQueue(t *debate.Ticket) {
	res := s.Pool.Enqueue(t)
	if !res.Matched {
		s.Logger.Infof("%s (%d) queued %s/%s as %s, position %d",
			t.Handle, t.Rating, t.Category, t.Pace, t.Stance, res.Position)
		s.sendTo(t.ConnID, debate.Event{Type: debate.EventQueueStatus, Position: res.Position})
		return
	}
	s.createSession(res.Opponent, t, t.Pace, t.Category, false)
}

// LeaveQueue withdraws a waiting ticket. Idempotent.
func (s *DebateServer) LeaveQueue(connID uuid.UUID, category debate.Category, pace debate.Pace) {
	if s.Pool.Dequeue(connID, category, pace) {
		s.Logger.Infof("connection %s left the %s/%s pool", connID, category, pace)
	}
}

// CreateLobby opens a private invite for the host ticket and returns the
// shareable code. A host holds at most one lobby; a prior one is cancelled
// with a notification.
func (s *DebateServer) CreateLobby(host *debate.Ticket) {
	code, replaced := s.Lobbies.Create(host)
	if replaced != nil {
		s.sendTo(host.ConnID, debate.Event{
			Type:   debate.EventLobbyCancelled,
			Code:   replaced.Code,
			Reason: "replaced by a new lobby",
		})
	}
	s.Logger.Infof("%s opened lobby %s (%s, hosting %s)", host.Handle, code, host.Pace, host.Stance)
	s.sendTo(host.ConnID, debate.Event{
		Type:   debate.EventLobbyCreated,
		Code:   code,
		Pace:   host.Pace,
		Stance: host.Stance,
	})
}

// CancelLobby closes a pending lobby, host only.
func (s *DebateServer) CancelLobby(connID uuid.UUID, code string) {
	if lob, ok := s.Lobbies.Cancel(code, connID); ok {
		s.sendTo(connID, debate.Event{
			Type:   debate.EventLobbyCancelled,
			Code:   lob.Code,
			Reason: "cancelled",
		})
	}
}

// JoinLobby resolves a code and pairs the guest with the waiting host.
// Private sessions are always practice; ranked play requires the pool.
func (s *DebateServer) JoinLobby(guest *debate.Ticket, code string) {
	lob, effective, err := s.Lobbies.Join(code, guest.Stance, guest.Pace, s.connAlive)
	if err != nil {
		msg := "could not join lobby"
		switch {
		case errors.Is(err, debate.ErrLobbyNotFound):
			msg = "no lobby with that code"
		case errors.Is(err, debate.ErrHostGone):
			msg = "the host has disconnected"
		case errors.Is(err, debate.ErrPaceMismatch):
			msg = "this lobby uses a different pace"
		}
		s.sendTo(guest.ConnID, debate.Event{Type: debate.EventLobbyError, Message: msg})
		return
	}
	guest.Stance = effective
	s.createSession(lob.Host, guest, lob.Pace, debate.CategoryPractice, true)
}

// SubmitTurn routes an argument to its session's state machine. Rejections
// go back to the submitter only; session state is untouched.
func (s *DebateServer) SubmitTurn(connID uuid.UUID, sessionID uuid.UUID, content string, elapsed int) {
	sess, ok := s.Sessions.Get(sessionID)
	if !ok {
		s.sendTo(connID, debate.Event{Type: debate.EventError, Message: "session not found"})
		return
	}
	if err := sess.SubmitTurn(connID, content, elapsed); err != nil {
		s.sendTo(connID, debate.Event{Type: debate.EventError, Message: err.Error()})
	}
}

// TimeoutTurn handles a client-reported turn expiry. The server's own
// deadline usually fires first; this path exists so a client noticing
// expiry early does not have to wait for it.
func (s *DebateServer) TimeoutTurn(connID uuid.UUID, sessionID uuid.UUID) {
	sess, ok := s.Sessions.Get(sessionID)
	if !ok {
		s.sendTo(connID, debate.Event{Type: debate.EventError, Message: "session not found"})
		return
	}
	if err := sess.TimeoutTurn(connID); err != nil {
		s.sendTo(connID, debate.Event{Type: debate.EventError, Message: err.Error()})
	}
}

// EndSession tears a session down on explicit request. A forfeit notifies
// only the other side; a normal end notifies both. Unknown ids are silent
// no-ops, since natural completion may already have removed the session.
func (s *DebateServer) EndSession(connID uuid.UUID, sessionID uuid.UUID, forfeit bool) {
	sess, ok := s.Sessions.Get(sessionID)
	if !ok || !sess.HasParticipant(connID) {
		return
	}
	beforeStart := !sess.HasPlayed()
	sess.Abort()
	s.Sessions.Delete(sessionID)

	if forfeit {
		if other, ok := sess.Other(connID); ok {
			s.sendTo(other, debate.Event{
				Type:        debate.EventOpponentLeft,
				SessionID:   sessionID.String(),
				Forfeit:     true,
				BeforeStart: beforeStart,
			})
		}
		s.Logger.Infof("session %s forfeited by %s", sessionID, connID)
		return
	}
	ev := debate.Event{Type: debate.EventSessionComplete, SessionID: sessionID.String()}
	s.sendTo(connID, ev)
	if other, ok := sess.Other(connID); ok {
		s.sendTo(other, ev)
	}
	s.Logger.Infof("session %s ended by %s", sessionID, connID)
}

// HandleDisconnect runs the full cleanup for a dropped connection: every
// pool, any hosted lobby, and every session it participates in. The three
// sweeps are independent and unconditional.
func (s *DebateServer) HandleDisconnect(connID uuid.UUID) {
	s.conns.remove(connID)
	s.Pool.DequeueAll(connID)

	if lob, ok := s.Lobbies.RemoveHost(connID); ok {
		// No guest exists yet to notify.
		s.Logger.Infof("dropped lobby %s after host %s disconnected", lob.Code, connID)
	}

	for _, sess := range s.Sessions.SessionsFor(connID) {
		beforeStart := !sess.HasPlayed()
		sess.Abort()
		s.Sessions.Delete(sess.ID)
		if other, ok := sess.Other(connID); ok {
			s.sendTo(other, debate.Event{
				Type:        debate.EventOpponentLeft,
				SessionID:   sess.ID.String(),
				Forfeit:     true,
				BeforeStart: beforeStart,
			})
		}
		s.Logger.Infof("session %s forfeited: participant %s disconnected", sess.ID, connID)
	}
}

// createSession consumes two paired tickets into a registered session and
// notifies both participants. The ticket order does not matter; the opening
// stance decides who argues first.
func (s *DebateServer) createSession(a, b *debate.Ticket, pace debate.Pace, category debate.Category, private bool) {
	if private {
		category = debate.CategoryPractice
	}
	sess := debate.NewSession(a, b, pace, category, private)

	pa, pb := sess.Participants[0], sess.Participants[1]
	sess.BroadcastFn = func(ev debate.Event) {
		s.sendTo(pa.ConnID, ev)
		s.sendTo(pb.ConnID, ev)
	}
	sess.OnEnd = func(res debate.Result) {
		s.Sessions.Delete(res.SessionID)
		go s.finalize(res)
	}
	s.Sessions.Add(sess)

	tickets := map[uuid.UUID]*debate.Ticket{a.ConnID: a, b.ConnID: b}
	for _, p := range sess.Participants {
		opp := tickets[pb.ConnID]
		if p.ConnID == pb.ConnID {
			opp = tickets[pa.ConnID]
		}
		s.sendTo(p.ConnID, debate.Event{
			Type:           debate.EventMatchFound,
			SessionID:      sess.ID.String(),
			Opponent:       opp.Profile(),
			Stance:         p.Stance,
			OpponentStance: p.Stance.Opposite(),
			OpensFirst:     p.Stance == debate.OpeningStance,
			TopicSelector:  sess.TopicSelector,
			Pace:           pace,
			Category:       category,
		})
	}

	s.Logger.Infof("session %s created: %s (%s) vs %s (%s), %s %s private=%v",
		sess.ID, a.Handle, a.Stance, b.Handle, b.Stance, category, pace, private)
	sess.StartClock()
}

// finalize runs after natural completion: queue the transcript for the
// historian, obtain a verdict (judge, or local fallback), push it to both
// participants, and persist results and ratings. Nothing here can fail the
// session itself; it already completed.
func (s *DebateServer) finalize(res debate.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	forP, againstP := res.Participants[0], res.Participants[1]
	if forP.Stance != debate.StanceFor {
		forP, againstP = againstP, forP
	}

	s.publishTranscript(ctx, res)

	verdict, source := s.verdictFor(ctx, res, forP.ConnID, againstP.ConnID)
	payload := map[string]interface{}{
		"forScore":     verdict.ForScore,
		"againstScore": verdict.AgainstScore,
		"winner":       verdict.Winner,
		"reasoning":    verdict.Reasoning,
	}
	ev := debate.Event{Type: debate.EventVerdict, SessionID: res.SessionID.String(), Payload: payload}
	s.sendTo(forP.ConnID, ev)
	s.sendTo(againstP.ConnID, ev)

	if database.DB == nil {
		return
	}
	err := database.InsertMatchResult(ctx, database.MatchResult{
		SessionID:     res.SessionID,
		Category:      string(res.Category),
		Pace:          string(res.Pace),
		Private:       res.Private,
		TopicSelector: res.TopicSelector,
		ForHandle:     forP.Handle,
		AgainstHandle: againstP.Handle,
		ForScore:      verdict.ForScore,
		AgainstScore:  verdict.AgainstScore,
		Winner:        verdict.Winner,
		Reasoning:     verdict.Reasoning,
		VerdictSource: source,
	})
	if err != nil {
		s.Logger.Warnf("failed to persist result for session %s: %v", res.SessionID, err)
	}

	if res.Category == debate.CategoryRanked {
		s.applyRatings(ctx, res.SessionID, forP.Handle, againstP.Handle, verdict)
	}
}

// verdictFor asks the judge service for a verdict and falls back to the
// locally accumulated scores when it is unavailable. A completed debate
// always resolves to an outcome; the second return names the source.
func (s *DebateServer) verdictFor(ctx context.Context, res debate.Result, forID, againstID uuid.UUID) (*judge.Verdict, string) {
	if s.Judge.Enabled() {
		args := make([]judge.Argument, 0, len(res.Turns))
		stances := map[uuid.UUID]string{forID: judge.WinnerFor, againstID: judge.WinnerAgainst}
		for _, turn := range res.Turns {
			args = append(args, judge.Argument{Stance: stances[turn.Sender], Content: turn.Content})
		}
		v, err := s.Judge.Evaluate(ctx, args)
		if err == nil {
			return v, "judge"
		}
		s.Logger.Warnf("judge unavailable for session %s, using fallback: %v", res.SessionID, err)
	}
	return judge.Fallback(res.Scores[forID], res.Scores[againstID]), "fallback"
}

// applyRatings commits an Elo update for a ranked completion. Guests without
// an account simply have no row; the whole update is skipped unless both
// sides resolve.
func (s *DebateServer) applyRatings(ctx context.Context, sessionID uuid.UUID, forHandle, againstHandle string, verdict *judge.Verdict) {
	forUser, err := database.GetUserByHandle(ctx, forHandle)
	if err != nil {
		s.Logger.Infof("no account for %s, skipping rating update", forHandle)
		return
	}
	againstUser, err := database.GetUserByHandle(ctx, againstHandle)
	if err != nil {
		s.Logger.Infof("no account for %s, skipping rating update", againstHandle)
		return
	}

	winner, loser := forUser, againstUser
	outcome := rating.Win
	switch verdict.Winner {
	case judge.WinnerAgainst:
		winner, loser = againstUser, forUser
	case judge.WinnerTie:
		outcome = rating.Draw
	}

	newW, newL := rating.Apply(winner.Elo, loser.Elo, outcome)
	err = database.CommitRankedResult(ctx, sessionID,
		winner.Handle, loser.Handle,
		winner.Elo, loser.Elo, newW, newL,
		verdict.Winner == judge.WinnerTie,
	)
	if err != nil {
		s.Logger.Warnf("failed to commit ratings for session %s: %v", sessionID, err)
		return
	}
	s.Logger.Infof("ratings updated for session %s: %s %d→%d, %s %d→%d",
		sessionID, winner.Handle, winner.Elo, newW, loser.Handle, loser.Elo, newL)
}

// publishTranscript queues every turn for the historian. Failure is logged
// and ignored; transcripts are best-effort.
func (s *DebateServer) publishTranscript(ctx context.Context, res debate.Result) {
	if cache.Rdb == nil {
		return
	}
	handles := map[uuid.UUID]debate.Participant{
		res.Participants[0].ConnID: res.Participants[0],
		res.Participants[1].ConnID: res.Participants[1],
	}
	now := time.Now().UnixMilli()
	for i, turn := range res.Turns {
		p := handles[turn.Sender]
		err := cache.PublishTranscriptTurn(ctx, cache.TranscriptTurn{
			SessionID: res.SessionID,
			TurnIndex: i,
			Handle:    p.Handle,
			Stance:    string(p.Stance),
			Content:   turn.Content,
			Elapsed:   turn.Elapsed,
			Timeout:   turn.Timeout,
			Timestamp: now,
		})
		if err != nil {
			s.Logger.Warnf("failed to queue transcript turn %d for session %s: %v", i, res.SessionID, err)
			return
		}
	}
}
