// Package match drives one Battleship match between two sessions: the
// placement phase, alternating bounded-time turns, shot resolution through
// the Board collaborator, spectator broadcasts, and the rematch handshake.
package match

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/salvora/broadside/internal/game"
	"github.com/salvora/broadside/internal/session"
	"github.com/salvora/broadside/internal/util"
)

// Default timing, overridable through Config.
const (
	DefaultTurnTimeout      = 30 * time.Second
	DefaultPlacementTimeout = 90 * time.Second
	DefaultRematchTimeout   = 60 * time.Second
)

// Config tunes one orchestrator.
type Config struct {
	TurnTimeout      time.Duration
	PlacementTimeout time.Duration
	RematchTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	if c.PlacementTimeout <= 0 {
		c.PlacementTimeout = DefaultPlacementTimeout
	}
	if c.RematchTimeout <= 0 {
		c.RematchTimeout = DefaultRematchTimeout
	}
	return c
}

// side is one participant: its session and its own board.
type side struct {
	sess  *session.Session
	board Board
	name  string
}

// Orchestrator is the per-match turn-driving state machine. It exclusively
// owns both boards while running.
type Orchestrator struct {
	id       uuid.UUID
	sides    [2]*side
	turn     int // index into sides
	cfg      Config
	spectate func(line string)
	rng      *rand.Rand
}

// New creates an orchestrator for a fresh match with empty boards.
func New(p1, p2 *session.Session, cfg Config, spectate func(string)) *Orchestrator {
	return build(p1, p2, game.NewBoard(game.BoardSize), game.NewBoard(game.BoardSize), 0, uuid.New(), cfg, spectate)
}

// Resume creates an orchestrator from a reconnection snapshot. Sides with
// restored ships skip the placement phase; the saved turn marker decides
// who moves first.
func Resume(p1, p2 *session.Session, snap *Snapshot, cfg Config, spectate func(string)) *Orchestrator {
	boardFor := func(s *session.Session) Board {
		if b, ok := snap.Boards[s.Username()]; ok && b != nil {
			return b
		}
		return game.NewBoard(game.BoardSize)
	}
	turn := 0
	if snap.Turn == p2.Username() {
		turn = 1
	}
	return build(p1, p2, boardFor(p1), boardFor(p2), turn, snap.MatchID, cfg, spectate)
}

func build(p1, p2 *session.Session, b1, b2 Board, turn int, id uuid.UUID, cfg Config, spectate func(string)) *Orchestrator {
	if spectate == nil {
		spectate = func(string) {}
	}
	return &Orchestrator{
		id: id,
		sides: [2]*side{
			{sess: p1, board: b1, name: p1.Username()},
			{sess: p2, board: b2, name: p2.Username()},
		},
		turn:     turn,
		cfg:      cfg.withDefaults(),
		spectate: spectate,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Outcomes of one turn.
type turnOutcome int

const (
	moveResolved turnOutcome = iota
	turnSkipped
	matchWon
	playerQuit
	connectionLost
	peerUnreachable
)

// Run drives the match to completion and returns a non-nil Snapshot only
// when it ended in a hard I/O failure that the registry should keep for
// reconnection. Quits and unreachable peers are deliberate terminations and
// are never snapshotted.
func (o *Orchestrator) Run(ctx context.Context) *Snapshot {
	util.LogInfo("match %s: %q vs %q", o.id, o.sides[0].name, o.sides[1].name)

	for i, s := range o.sides {
		if err := s.sess.Send(fmt.Sprintf("Welcome to Battleship! You are Player %d.", i+1)); err != nil {
			o.notifyGone(i, "Opponent is unreachable. Match cancelled.")
			return nil
		}
	}

	for { // one iteration per game, looping on rematch
		for i := range o.sides {
			if o.sides[i].board.HasShips() {
				o.sides[i].sess.Send("Your board was restored; placement skipped.")
				continue
			}
			switch o.placeFleet(i) {
			case placeOK:
			case placeLost:
				// Boards are incomplete; nothing worth resuming.
				o.notifyGone(i, "GAME_OVER Opponent disconnected during placement.")
				return nil
			default: // quit, timeout, unreachable
				o.notifyGone(i, "GAME_OVER Opponent quit the game.")
				return nil
			}
		}

		o.sendAll("All ships placed. Game starts now!")
		o.spectate(fmt.Sprintf("[SPECTATOR] match between %s and %s is underway", o.sides[0].name, o.sides[1].name))

	turns:
		for {
			if ctx.Err() != nil {
				return nil
			}
			switch o.handleTurn() {
			case moveResolved, turnSkipped:
				o.turn = 1 - o.turn
			case matchWon:
				break turns
			case playerQuit, peerUnreachable:
				return nil
			case connectionLost:
				return o.snapshot()
			}
		}

		if !o.askRematch() {
			return nil
		}
		o.sides[0].board.Reset()
		o.sides[1].board.Reset()
		o.turn = 0
		util.LogInfo("match %s: rematch", o.id)
	}
}

// ---------------------------------------------------------------------------
// Placement phase
// ---------------------------------------------------------------------------

type placeOutcome int

const (
	placeOK placeOutcome = iota
	placeQuit
	placeLost
	placeTimeout
	placeUnreachable
)

// placeFleet prompts side i through the fixed ship list. Invalid input
// re-prompts without consuming the ship slot; "PLACE RANDOM" fills every
// remaining ship at once.
func (o *Orchestrator) placeFleet(i int) placeOutcome {
	s := o.sides[i]
	if err := s.sess.Send(s.name + ", place your ships on the board."); err != nil {
		return placeUnreachable
	}

	for _, ship := range game.Fleet {
		for {
			s.sess.Send(fmt.Sprintf("PLACE %s (size %d)", ship.Name, ship.Length))
			if err := s.sess.SendPrompt("FORMAT: PLACE <coord> <H|V>"); err != nil {
				return placeUnreachable
			}

			line, err := s.sess.Receive(o.cfg.PlacementTimeout)
			switch {
			case errors.Is(err, session.ErrReceiveTimeout):
				s.sess.Send("ERROR out of time during placement, match cancelled")
				util.LogInfo("match %s: %q timed out during placement", o.id, s.name)
				return placeTimeout
			case errors.Is(err, session.ErrConnectionLost):
				util.LogInfo("match %s: %q disconnected during placement", o.id, s.name)
				return placeLost
			case err != nil:
				return placeLost
			}

			cmd := strings.TrimSpace(line)
			lower := strings.ToLower(cmd)

			if strings.HasPrefix(lower, "quit") {
				s.sess.Send("Thanks for playing. Goodbye.")
				util.LogInfo("match %s: %q quit during placement", o.id, s.name)
				return placeQuit
			}

			if lower == "place random" {
				s.board.PlaceFleetRandomly(o.rng)
				s.sess.Send("SUCCESS: remaining fleet placed randomly")
				o.sendGrid(s.sess, s.board.HiddenRows())
				return placeOK
			}

			fields := strings.Fields(cmd)
			if len(fields) != 3 || !strings.EqualFold(fields[0], "PLACE") {
				s.sess.Send("ERROR Invalid command. Use 'PLACE <coord> <H|V>'")
				continue
			}

			row, col, perr := game.ParseCoordinate(fields[1], s.board.Size())
			if perr != nil {
				s.sess.Send("ERROR " + perr.Error())
				continue
			}
			orient, oerr := game.ParseOrientation(fields[2])
			if oerr != nil {
				s.sess.Send("ERROR " + oerr.Error())
				continue
			}

			if err := s.board.PlaceShip(ship.Name, row, col, ship.Length, orient); err != nil {
				s.sess.Send("ERROR Cannot place ship here")
				continue
			}

			s.sess.Send(fmt.Sprintf("SUCCESS: %s placed at %s", ship.Name, strings.ToUpper(fields[1])))
			o.sendGrid(s.sess, s.board.HiddenRows())
			break
		}
	}
	return placeOK
}

// ---------------------------------------------------------------------------
// Turn phase
// ---------------------------------------------------------------------------

// handleTurn runs one bounded-time turn for the current mover. Exactly one
// of: a move resolves, the timeout wins and the turn passes with no board
// mutation, or the mover's connection is lost.
func (o *Orchestrator) handleTurn() turnOutcome {
	mover := o.sides[o.turn]
	opp := o.sides[1-o.turn]

	// Anything the mover typed before this prompt (in particular input
	// that arrived after a previous timeout was observed) is not a move.
	mover.sess.Drain()

	for {
		if !o.sendGrid(mover.sess, opp.board.DisplayRows()) {
			return o.unreachable(o.turn)
		}
		if err := mover.sess.SendPrompt(mover.name + ", enter coordinate to fire at (e.g. B5):"); err != nil {
			return o.unreachable(o.turn)
		}

		line, err := mover.sess.Receive(o.cfg.TurnTimeout)
		switch {
		case errors.Is(err, session.ErrReceiveTimeout):
			mover.sess.Send("ERROR out of time, turn skipped")
			opp.sess.Send(mover.name + " ran out of time, it's your turn.")
			o.spectate("[SPECTATOR] " + mover.name + " ran out of time, turn skipped")
			util.LogInfo("match %s: %q timed out, turn passes", o.id, mover.name)
			return turnSkipped
		case errors.Is(err, session.ErrConnectionLost):
			opp.sess.Send("Opponent connection lost. The match will resume if they reconnect in time.")
			util.LogInfo("match %s: %q disconnected mid-match", o.id, mover.name)
			return connectionLost
		case err != nil:
			return connectionLost
		}

		cmd := strings.TrimSpace(line)
		lower := strings.ToLower(cmd)

		if strings.HasPrefix(lower, "quit") {
			mover.sess.Send("Game quit. Thanks for playing.")
			opp.sess.Send("GAME_OVER Opponent quit the game.")
			o.spectate("[SPECTATOR] " + mover.name + " quit")
			util.LogInfo("match %s: %q quit", o.id, mover.name)
			return playerQuit
		}

		fields := strings.Fields(cmd)
		if len(fields) != 2 || !strings.EqualFold(fields[0], "FIRE") {
			mover.sess.Send("ERROR Use 'FIRE <coord>'")
			continue
		}

		row, col, perr := game.ParseCoordinate(fields[1], opp.board.Size())
		if perr != nil {
			mover.sess.Send("ERROR " + perr.Error())
			continue
		}

		result, sunk := opp.board.FireAt(row, col)
		switch result {
		case game.AlreadyShot:
			// Re-prompt without consuming the turn, like every other
			// rejected input.
			mover.sess.Send("RESULT ALREADY_SHOT")
			continue
		case game.Miss:
			mover.sess.Send("RESULT MISS")
			opp.sess.Send("RESULT MISS")
			o.spectate("[SPECTATOR] " + mover.name + " MISS")
		case game.Hit:
			if sunk != "" {
				mover.sess.Send("RESULT SINK " + sunk)
				opp.sess.Send("RESULT SINK " + sunk)
				o.spectate("[SPECTATOR] " + mover.name + " sank the " + sunk + "!")
			} else {
				mover.sess.Send("RESULT HIT OPPONENT SHIP")
				opp.sess.Send("RESULT HIT YOUR SHIP")
				o.spectate("[SPECTATOR] " + mover.name + " HIT")
			}
		}

		// Every resolved shot (never a timeout) refreshes the observers.
		o.spectateGrid(opp.board.DisplayRows())

		if opp.board.AllSunk() {
			mover.sess.Send("GAME_OVER You win! All ships sunk!")
			opp.sess.Send("GAME_OVER You lose! All your ships are sunk!")
			o.spectate("[SPECTATOR] GAME OVER! " + mover.name + " wins!")
			util.LogInfo("match %s: %q wins", o.id, mover.name)
			return matchWon
		}
		return moveResolved
	}
}

// ---------------------------------------------------------------------------
// Rematch
// ---------------------------------------------------------------------------

// askRematch offers both players a rematch. Both must answer Y within the
// wait; any other answer, a timeout, or a lost connection ends the match
// permanently.
func (o *Orchestrator) askRematch() bool {
	for _, s := range o.sides {
		s.sess.Drain()
		if err := s.sess.SendPrompt("GAME_OVER Play again? (Y/N)"); err != nil {
			return false
		}
	}
	for _, s := range o.sides {
		line, err := s.sess.Receive(o.cfg.RematchTimeout)
		if err != nil || !strings.EqualFold(strings.TrimSpace(line), "Y") {
			o.sendAll("Match ended. Thanks for playing!")
			util.LogInfo("match %s: no rematch", o.id)
			return false
		}
	}
	o.sendAll("Rematch! Place your ships again.")
	return true
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (o *Orchestrator) snapshot() *Snapshot {
	return &Snapshot{
		MatchID: o.id,
		Players: [2]string{o.sides[0].name, o.sides[1].name},
		Boards: map[string]Board{
			o.sides[0].name: o.sides[0].board,
			o.sides[1].name: o.sides[1].board,
		},
		Turn:    o.sides[o.turn].name,
		SavedAt: time.Now(),
	}
}

// sendGrid sends a grid dump: the GRID marker, then the header row and one
// row per board row. Reports false if the session is unreachable.
func (o *Orchestrator) sendGrid(sess *session.Session, rows []string) bool {
	if err := sess.Send("GRID"); err != nil {
		return false
	}
	for _, row := range rows {
		if err := sess.Send(row); err != nil {
			return false
		}
	}
	return true
}

func (o *Orchestrator) spectateGrid(rows []string) {
	o.spectate("GRID")
	for _, row := range rows {
		o.spectate(row)
	}
}

func (o *Orchestrator) sendAll(text string) {
	for _, s := range o.sides {
		s.sess.Send(text)
	}
}

// notifyGone tells side i's opponent that side i is out of the match.
func (o *Orchestrator) notifyGone(i int, text string) {
	o.sides[1-i].sess.Send(text)
}

func (o *Orchestrator) unreachable(i int) turnOutcome {
	util.LogInfo("match %s: %q unreachable", o.id, o.sides[i].name)
	o.notifyGone(i, "GAME_OVER Opponent is unreachable.")
	return peerUnreachable
}
