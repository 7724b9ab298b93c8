// Package registry is the process-wide session store. It tracks active
// players, waiting spectators, and disconnected-with-grace-period match
// snapshots, and assembles player pairs into matches. All three collections
// live under one mutex so membership transitions are atomic.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/salvora/broadside/internal/match"
	"github.com/salvora/broadside/internal/protocol"
	"github.com/salvora/broadside/internal/session"
	"github.com/salvora/broadside/internal/util"
)

// Default timing, overridable through Config.
const (
	DefaultGraceWindow   = 60 * time.Second
	DefaultSweepInterval = 10 * time.Second
)

// Role is the classification a join handshake resolves to.
type Role int

const (
	RolePlayer Role = iota
	RoleSpectator
)

func (r Role) String() string {
	if r == RolePlayer {
		return "PLAYER"
	}
	return "SPECTATOR"
}

// StartMatchFunc launches a match between two player sessions. snap is nil
// for a fresh match and non-nil when resuming from a reconnection. The
// callback is invoked with the registry lock held and must return quickly
// (spawn a goroutine) and must not call back into the registry.
type StartMatchFunc func(p1, p2 *session.Session, snap *match.Snapshot)

// Config tunes a Registry.
type Config struct {
	GraceWindow   time.Duration
	SweepInterval time.Duration
}

// Registry is the connection/session registry.
type Registry struct {
	mu           sync.Mutex
	sessions     map[*session.Session]struct{} // every live session, for chat fan-out
	players      []*session.Session            // ordered, capacity 2
	ready        map[*session.Session]bool     // role line delivered; may enter a match
	spectators   []*session.Session            // FIFO
	disconnected map[string]*match.Snapshot    // username -> snapshot
	byName       map[string]*session.Session
	matchActive  bool

	grace      time.Duration
	sweepEvery time.Duration
	startMatch StartMatchFunc
}

// New creates a Registry. Zero durations in cfg fall back to the defaults.
func New(cfg Config, startMatch StartMatchFunc) *Registry {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Registry{
		sessions:     make(map[*session.Session]struct{}),
		ready:        make(map[*session.Session]bool),
		disconnected: make(map[string]*match.Snapshot),
		byName:       make(map[string]*session.Session),
		grace:        cfg.GraceWindow,
		sweepEvery:   cfg.SweepInterval,
		startMatch:   startMatch,
	}
}

// Join classifies a session that completed the USER handshake and seats it,
// but never starts a match: the caller delivers the role line first and
// then calls Activate, so a match's opening lines cannot overtake the role
// assignment. A username with a non-expired snapshot makes this a
// reconnection: the stale connection (if any) is closed and superseded.
// Otherwise the session becomes a player if a slot is open and no
// interrupted match is awaiting a reconnection, else a spectator.
func (r *Registry) Join(sess *session.Session, username string) Role {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess.SetUsername(username)
	r.sessions[sess] = struct{}{}

	// Last-writer-wins: a new connection for a username always supersedes
	// the stale one.
	if old, ok := r.byName[username]; ok && old != sess {
		util.LogInfo("[%08x] %q superseded by new connection [%08x]", old.ID, username, sess.ID)
		r.removeLocked(old)
		old.Close()
	}
	r.byName[username] = sess

	if snap, ok := r.disconnected[username]; ok {
		if time.Since(snap.SavedAt) <= r.grace && len(r.players) < 2 {
			util.LogInfo("[%08x] %q reconnected within grace window", sess.ID, username)
			r.players = append(r.players, sess)
			return RolePlayer
		}
		if time.Since(snap.SavedAt) > r.grace {
			// Expired: a same-named rejoin is a brand-new player.
			delete(r.disconnected, username)
		}
	}

	// A free slot stays reserved while any snapshot is awaiting its player,
	// so a fresh join must not race the returning player for it.
	if len(r.players) < 2 && r.pendingReconnectsLocked() == 0 {
		r.players = append(r.players, sess)
		util.LogInfo("[%08x] %q joined as player (%d/2)", sess.ID, username, len(r.players))
		return RolePlayer
	}

	r.spectators = append(r.spectators, sess)
	util.LogInfo("[%08x] %q joined as spectator (#%d in queue)", sess.ID, username, len(r.spectators))
	return RoleSpectator
}

// Activate marks a session as having received its role line. A match
// (fresh or resumed) starts only once both seated players are activated.
func (r *Registry) Activate(sess *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready[sess] = true
	r.maybeStartLocked()
}

// maybeStartLocked starts a match when two activated players are seated and
// none is running. A non-expired snapshot stored under a seated username
// resumes the interrupted match; otherwise the pair starts fresh.
func (r *Registry) maybeStartLocked() {
	if r.matchActive || len(r.players) != 2 {
		return
	}
	p1, p2 := r.players[0], r.players[1]
	if !r.ready[p1] || !r.ready[p2] {
		return
	}

	snap := r.disconnected[p1.Username()]
	if snap == nil {
		snap = r.disconnected[p2.Username()]
	}
	if snap != nil && time.Since(snap.SavedAt) <= r.grace {
		for _, name := range snap.Players {
			delete(r.disconnected, name)
		}
		util.LogInfo("match %s resumed between %q and %q (turn: %q)",
			snap.MatchID, snap.Players[0], snap.Players[1], snap.Turn)
	} else {
		snap = nil
	}

	r.matchActive = true
	util.Stats.MatchStart()
	r.startMatch(p1, p2, snap)
}

// MatchEnded returns both player slots to the registry. A non-nil snap
// means the match was interrupted: it is stored under both usernames and a
// still-alive participant keeps its slot while waiting for the peer to
// reconnect. Otherwise the slots are freed and spectators are promoted.
func (r *Registry) MatchEnded(p1, p2 *session.Session, snap *match.Snapshot) {
	util.Stats.MatchEnd()

	var promoted []*session.Session
	r.mu.Lock()
	r.matchActive = false
	r.removePlayerLocked(p1)
	r.removePlayerLocked(p2)

	if snap != nil {
		for _, name := range snap.Players {
			r.disconnected[name] = snap
		}
		for _, p := range []*session.Session{p1, p2} {
			if p.Alive() {
				r.players = append(r.players, p)
			} else {
				r.dropSessionLocked(p)
			}
		}
		util.LogInfo("match %s snapshotted, awaiting reconnection (grace %s)", snap.MatchID, r.grace)
	} else {
		promoted = r.promoteLocked()
	}
	// A superseded participant may already have its replacement seated.
	r.maybeStartLocked()
	r.mu.Unlock()

	r.announcePromotions(promoted)
}

// Leave removes a session entirely (handshake failure, a spectator hanging
// up, or a player leaving after a finished match).
func (r *Registry) Leave(sess *session.Session) {
	r.mu.Lock()
	r.removeLocked(sess)
	sess.Close()
	promoted := r.promoteLocked()
	r.mu.Unlock()

	r.announcePromotions(promoted)
}

// promoteLocked pops waiting spectators into free player slots and returns
// them; the caller delivers their role lines through announcePromotions
// after releasing the lock. Promotion is held back while any non-expired
// snapshot is pending so a reconnecting player is never raced for its slot.
func (r *Registry) promoteLocked() []*session.Session {
	if r.pendingReconnectsLocked() > 0 {
		return nil
	}
	var promoted []*session.Session
	for len(r.players) < 2 && len(r.spectators) > 0 {
		sp := r.spectators[0]
		r.spectators = r.spectators[1:]
		r.players = append(r.players, sp)
		r.ready[sp] = false // seated, but not in a match until the new role line lands
		promoted = append(promoted, sp)
	}
	return promoted
}

// announcePromotions delivers ROLE PLAYER to each freshly promoted session
// outside the registry lock, so a stalled spectator socket never blocks
// joins, chat fan-out, or sweeping. A failed send drops that session and
// frees the slot for the next spectator.
func (r *Registry) announcePromotions(promoted []*session.Session) {
	for _, sp := range promoted {
		if err := sp.Send("ROLE PLAYER"); err != nil {
			util.LogWarning("[%08x] dropping unreachable spectator during promotion: %v", sp.ID, err)
			r.Leave(sp)
			continue
		}
		util.LogInfo("[%08x] spectator %q promoted to player", sp.ID, sp.Username())
		r.Activate(sp)
	}
}

func (r *Registry) pendingReconnectsLocked() int {
	n := 0
	for _, snap := range r.disconnected {
		if time.Since(snap.SavedAt) <= r.grace {
			n++
		}
	}
	return n
}

// StartSweeper launches the background task that evicts snapshots past the
// grace window. It stops when ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *Registry) sweep() {
	var promoted []*session.Session
	r.mu.Lock()
	evicted := false
	for name, snap := range r.disconnected {
		if time.Since(snap.SavedAt) > r.grace {
			util.LogInfo("evicting expired snapshot for %q (match %s, saved %s ago)",
				name, snap.MatchID, time.Since(snap.SavedAt).Round(time.Second))
			delete(r.disconnected, name)
			evicted = true
		}
	}
	// Freed slots that were reserved for reconnection can now be offered
	// to spectators.
	if evicted {
		promoted = r.promoteLocked()
	}
	r.mu.Unlock()

	r.announcePromotions(promoted)
}

// BroadcastChat fans a chat line out to every live session except the
// sender, prefixed with the sender's username. A failed send is logged and
// never propagates.
func (r *Registry) BroadcastChat(from *session.Session, text string) {
	line := "[" + from.Username() + "] " + text
	for _, sess := range r.liveSessions() {
		if sess == from {
			continue
		}
		if err := sess.SendType(protocol.TypeChat, line, false); err != nil {
			util.LogWarning("[%08x] chat send failed: %v", sess.ID, err)
		}
	}
}

// BroadcastSpectators sends a line to every waiting spectator. A failed
// send drops only that spectator; it never blocks or aborts the caller's
// turn loop.
func (r *Registry) BroadcastSpectators(line string) {
	r.mu.Lock()
	targets := make([]*session.Session, len(r.spectators))
	copy(targets, r.spectators)
	r.mu.Unlock()

	for _, sp := range targets {
		if err := sp.Send(line); err != nil {
			util.LogWarning("[%08x] dropping spectator %q: %v", sp.ID, sp.Username(), err)
			r.Leave(sp)
		}
	}
}

// ---------------------------------------------------------------------------
// Internal bookkeeping (all require r.mu held)
// ---------------------------------------------------------------------------

func (r *Registry) removePlayerLocked(sess *session.Session) {
	for i, p := range r.players {
		if p == sess {
			r.players = append(r.players[:i], r.players[i+1:]...)
			return
		}
	}
}

func (r *Registry) removeSpectatorLocked(sess *session.Session) {
	for i, sp := range r.spectators {
		if sp == sess {
			r.spectators = append(r.spectators[:i], r.spectators[i+1:]...)
			return
		}
	}
}

// dropSessionLocked forgets a session without touching the player or
// spectator lists.
func (r *Registry) dropSessionLocked(sess *session.Session) {
	delete(r.sessions, sess)
	delete(r.ready, sess)
	if name := sess.Username(); name != "" && r.byName[name] == sess {
		delete(r.byName, name)
	}
}

// removeLocked forgets a session everywhere.
func (r *Registry) removeLocked(sess *session.Session) {
	r.removePlayerLocked(sess)
	r.removeSpectatorLocked(sess)
	r.dropSessionLocked(sess)
}

func (r *Registry) liveSessions() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// Counts returns the current membership sizes, for logging and tests.
func (r *Registry) Counts() (players, spectators, snapshots int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players), len(r.spectators), len(r.disconnected)
}
