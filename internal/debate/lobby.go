// internal/debate/lobby.go
package debate

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lobby code alphabet excludes visually confusable characters (I, O, 0, 1).
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

var (
	// ErrLobbyNotFound means no pending lobby exists for the code.
	ErrLobbyNotFound = errors.New("lobby not found")
	// ErrHostGone means the host's connection died before the lobby was
	// consumed. The directory deletes the entry when it detects this.
	ErrHostGone = errors.New("lobby host is no longer connected")
	// ErrPaceMismatch means the guest requested a different pace than the
	// host configured. The lobby stays open for a corrected retry.
	ErrPaceMismatch = errors.New("lobby pace does not match")
)

// Lobby is a pending single-host invitation addressed by a short shareable
// code. It is consumed by exactly one successful join.
type Lobby struct {
	Code      string
	Host      *Ticket
	Pace      Pace
	CreatedAt time.Time
}

// LobbyDirectory maps codes to pending private lobbies. A host holds at most
// one open lobby at a time.
type LobbyDirectory struct {
	mu     sync.Mutex
	byCode map[string]*Lobby
	byHost map[uuid.UUID]string
}

// NewLobbyDirectory returns an empty directory.
func NewLobbyDirectory() *LobbyDirectory {
	return &LobbyDirectory{
		byCode: make(map[string]*Lobby),
		byHost: make(map[uuid.UUID]string),
	}
}

// Create stores a pending lobby for the host ticket and returns its code.
// If the host already had an open lobby it is cancelled first and returned
// as replaced, so the caller can notify the host.
func (d *LobbyDirectory) Create(host *Ticket) (code string, replaced *Lobby) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.byHost[host.ConnID]; ok {
		replaced = d.byCode[old]
		delete(d.byCode, old)
		delete(d.byHost, host.ConnID)
	}

	code = d.newCodeLocked()
	d.byCode[code] = &Lobby{
		Code:      code,
		Host:      host,
		Pace:      host.Pace,
		CreatedAt: time.Now(),
	}
	d.byHost[host.ConnID] = code
	return code, replaced
}

// Join resolves a code to its pending lobby and consumes it. The alive
// callback reports whether a connection is still live; a dead host
// invalidates the entry (self-heal) and fails with ErrHostGone. The guest's
// requested stance is a preference: when it collides with the host's fixed
// stance the guest is silently flipped to the complement. Lookup is
// case-insensitive.
func (d *LobbyDirectory) Join(code string, guestStance Stance, guestPace Pace, alive func(uuid.UUID) bool) (*Lobby, Stance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	code = NormalizeCode(code)
	lob, ok := d.byCode[code]
	if !ok {
		return nil, "", ErrLobbyNotFound
	}
	if alive != nil && !alive(lob.Host.ConnID) {
		delete(d.byCode, code)
		delete(d.byHost, lob.Host.ConnID)
		return nil, "", ErrHostGone
	}
	if guestPace != lob.Pace {
		return nil, "", ErrPaceMismatch
	}

	effective := guestStance
	if effective == lob.Host.Stance {
		effective = lob.Host.Stance.Opposite()
	}

	delete(d.byCode, code)
	delete(d.byHost, lob.Host.ConnID)
	return lob, effective, nil
}

// Cancel removes the lobby for code if, and only if, the requester is its
// host. Anything else is a no-op.
func (d *LobbyDirectory) Cancel(code string, requester uuid.UUID) (*Lobby, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	code = NormalizeCode(code)
	lob, ok := d.byCode[code]
	if !ok || lob.Host.ConnID != requester {
		return nil, false
	}
	delete(d.byCode, code)
	delete(d.byHost, requester)
	return lob, true
}

// RemoveHost drops any lobby hosted by connID. Used by the disconnect sweep.
func (d *LobbyDirectory) RemoveHost(connID uuid.UUID) (*Lobby, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	code, ok := d.byHost[connID]
	if !ok {
		return nil, false
	}
	lob := d.byCode[code]
	delete(d.byCode, code)
	delete(d.byHost, connID)
	return lob, true
}

// Get looks up a pending lobby without consuming it.
func (d *LobbyDirectory) Get(code string) (*Lobby, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	lob, ok := d.byCode[NormalizeCode(code)]
	return lob, ok
}

// NormalizeCode uppercases a client-supplied code so lookups are
// case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// newCodeLocked draws codes until one misses the live directory. Collisions
// are vanishingly rare at this alphabet size but cost nothing to retry.
func (d *LobbyDirectory) newCodeLocked() string {
	for {
		b := make([]byte, codeLength)
		for i := range b {
			b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
		}
		code := string(b)
		if _, taken := d.byCode[code]; !taken {
			return code
		}
	}
}
