// internal/debate/lobby_test.go
package debate

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysAlive(uuid.UUID) bool { return true }

func hostTicket(stance Stance, pace Pace) *Ticket {
	return &Ticket{
		ConnID: uuid.New(),
		Handle: "host",
		Stance: stance,
		Pace:   pace,
	}
}

func TestCreateGeneratesWellFormedCode(t *testing.T) {
	d := NewLobbyDirectory()

	code, replaced := d.Create(hostTicket(StanceFor, PaceFast))
	require.Nil(t, replaced)
	assert.Len(t, code, codeLength)
	for _, r := range code {
		assert.Contains(t, codeAlphabet, string(r))
	}
	assert.NotContains(t, code, "O")
	assert.NotContains(t, code, "0")

	_, ok := d.Get(code)
	assert.True(t, ok)
}

func TestJoinConsumesLobbyAndFlipsStance(t *testing.T) {
	d := NewLobbyDirectory()

	host := hostTicket(StanceFor, PaceFast)
	code, _ := d.Create(host)

	// Lowercase lookup, same requested stance as the host.
	lob, guestStance, err := d.Join(strings.ToLower(code), StanceFor, PaceFast, alwaysAlive)
	require.NoError(t, err)
	assert.Equal(t, host.ConnID, lob.Host.ConnID)
	assert.Equal(t, StanceAgainst, guestStance, "colliding stance preference is flipped")

	// Single use: the code is gone.
	_, _, err = d.Join(code, StanceAgainst, PaceFast, alwaysAlive)
	assert.ErrorIs(t, err, ErrLobbyNotFound)
}

func TestJoinHonorsComplementaryPreference(t *testing.T) {
	d := NewLobbyDirectory()

	code, _ := d.Create(hostTicket(StanceFor, PaceStandard))
	_, guestStance, err := d.Join(code, StanceAgainst, PaceStandard, alwaysAlive)
	require.NoError(t, err)
	assert.Equal(t, StanceAgainst, guestStance)
}

func TestJoinPaceMismatchLeavesLobbyOpen(t *testing.T) {
	d := NewLobbyDirectory()

	code, _ := d.Create(hostTicket(StanceFor, PaceFast))
	_, _, err := d.Join(code, StanceAgainst, PaceStandard, alwaysAlive)
	require.ErrorIs(t, err, ErrPaceMismatch)

	// A corrected retry still works.
	_, _, err = d.Join(code, StanceAgainst, PaceFast, alwaysAlive)
	assert.NoError(t, err)
}

func TestJoinDeadHostSelfHeals(t *testing.T) {
	d := NewLobbyDirectory()

	code, _ := d.Create(hostTicket(StanceFor, PaceFast))
	_, _, err := d.Join(code, StanceAgainst, PaceFast, func(uuid.UUID) bool { return false })
	require.ErrorIs(t, err, ErrHostGone)

	// The entry was deleted, not left dangling.
	_, _, err = d.Join(code, StanceAgainst, PaceFast, alwaysAlive)
	assert.ErrorIs(t, err, ErrLobbyNotFound)
}

func TestHostHoldsAtMostOneLobby(t *testing.T) {
	d := NewLobbyDirectory()

	host := hostTicket(StanceFor, PaceFast)
	first, replaced := d.Create(host)
	require.Nil(t, replaced)

	second, replaced := d.Create(host)
	require.NotNil(t, replaced)
	assert.Equal(t, first, replaced.Code)
	assert.NotEqual(t, first, second)

	_, ok := d.Get(first)
	assert.False(t, ok)
	_, ok = d.Get(second)
	assert.True(t, ok)
}

func TestCancelOnlyByHost(t *testing.T) {
	d := NewLobbyDirectory()

	host := hostTicket(StanceFor, PaceFast)
	code, _ := d.Create(host)

	_, ok := d.Cancel(code, uuid.New())
	assert.False(t, ok, "cancel by a non-host is a no-op")
	_, stillThere := d.Get(code)
	assert.True(t, stillThere)

	lob, ok := d.Cancel(code, host.ConnID)
	require.True(t, ok)
	assert.Equal(t, code, lob.Code)
	_, stillThere = d.Get(code)
	assert.False(t, stillThere)
}

func TestRemoveHostDropsPendingLobby(t *testing.T) {
	d := NewLobbyDirectory()

	host := hostTicket(StanceAgainst, PaceStandard)
	code, _ := d.Create(host)

	lob, ok := d.RemoveHost(host.ConnID)
	require.True(t, ok)
	assert.Equal(t, code, lob.Code)

	_, ok = d.RemoveHost(host.ConnID)
	assert.False(t, ok)
}
