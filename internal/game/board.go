// Package game implements the Battleship board model: ship placement,
// fire resolution with sink detection, and the two grid views (the owner's
// ship-revealing view and the redacted observer view).
package game

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// BoardSize is the standard board edge length.
const BoardSize = 10

// Cell markers used by both grids.
const (
	cellWater = '.' // empty water / unknown
	cellShip  = 'S' // ship segment (hidden grid only)
	cellHit   = 'X' // revealed hit
	cellMiss  = 'o' // revealed miss
)

// Ship describes one fleet entry.
type Ship struct {
	Name   string
	Length int
}

// Fleet is the fixed ship list each side places, largest first.
var Fleet = []Ship{
	{"Carrier", 5},
	{"Battleship", 4},
	{"Cruiser", 3},
	{"Submarine", 3},
	{"Destroyer", 2},
}

// Orientation of a ship placement.
type Orientation uint8

const (
	Horizontal Orientation = iota
	Vertical
)

// ParseOrientation maps the wire tokens "H" and "V" (case-insensitive).
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "H":
		return Horizontal, nil
	case "V":
		return Vertical, nil
	}
	return 0, fmt.Errorf("orientation must be 'H' or 'V', got %q", s)
}

// ShotResult is the outcome of firing at a cell.
type ShotResult uint8

const (
	Miss ShotResult = iota
	Hit
	AlreadyShot
)

// ErrInvalidPlacement is returned when a ship does not fit at the requested
// position (out of bounds or overlapping another ship).
var ErrInvalidPlacement = errors.New("ship cannot be placed there")

type placedShip struct {
	name      string
	remaining int
}

// Board is a single side's grid. It is not safe for concurrent use; the
// orchestrator owns it exclusively while a match runs, and ownership
// transfers to the registry's snapshot store on disconnect.
type Board struct {
	size    int
	hidden  [][]byte // real ship positions, hits, misses
	display [][]byte // observer view: hits and misses only
	ships   []*placedShip
	// cellShip maps an occupied cell to its owning ship for O(1) hit
	// resolution.
	cellShip map[[2]int]*placedShip
}

// NewBoard creates an empty board of the given edge length.
func NewBoard(size int) *Board {
	b := &Board{size: size}
	b.Reset()
	return b
}

// Size returns the board edge length.
func (b *Board) Size() int { return b.size }

// Reset clears both grids and all placed ships.
func (b *Board) Reset() {
	b.hidden = emptyGrid(b.size)
	b.display = emptyGrid(b.size)
	b.ships = nil
	b.cellShip = make(map[[2]int]*placedShip)
}

func emptyGrid(size int) [][]byte {
	grid := make([][]byte, size)
	for r := range grid {
		grid[r] = make([]byte, size)
		for c := range grid[r] {
			grid[r][c] = cellWater
		}
	}
	return grid
}

// CanPlace reports whether a ship of the given length fits at (row, col)
// with the given orientation: fully in bounds and overlapping nothing.
func (b *Board) CanPlace(row, col, length int, o Orientation) bool {
	if row < 0 || col < 0 {
		return false
	}
	for i := 0; i < length; i++ {
		r, c := row, col
		if o == Horizontal {
			c += i
		} else {
			r += i
		}
		if r >= b.size || c >= b.size {
			return false
		}
		if b.hidden[r][c] != cellWater {
			return false
		}
	}
	return true
}

// PlaceShip marks the ship's cells on the hidden grid and records it for
// sink detection. Returns ErrInvalidPlacement if it does not fit.
func (b *Board) PlaceShip(name string, row, col, length int, o Orientation) error {
	if !b.CanPlace(row, col, length, o) {
		return fmt.Errorf("%w: %s at (%d,%d)", ErrInvalidPlacement, name, row, col)
	}
	ship := &placedShip{name: name, remaining: length}
	for i := 0; i < length; i++ {
		r, c := row, col
		if o == Horizontal {
			c += i
		} else {
			r += i
		}
		b.hidden[r][c] = cellShip
		b.cellShip[[2]int{r, c}] = ship
	}
	b.ships = append(b.ships, ship)
	return nil
}

// PlaceFleetRandomly places every remaining Fleet ship at random valid
// positions. Ships already on the board are kept.
func (b *Board) PlaceFleetRandomly(rng *rand.Rand) {
	for _, ship := range Fleet[len(b.ships):] {
		for {
			o := Orientation(rng.Intn(2))
			row := rng.Intn(b.size)
			col := rng.Intn(b.size)
			if b.PlaceShip(ship.Name, row, col, ship.Length, o) == nil {
				break
			}
		}
	}
}

// PlacedShips returns how many ships are on the board.
func (b *Board) PlacedShips() int { return len(b.ships) }

// HasShips reports whether any ship has been placed. A restored board with
// existing ships skips the placement phase.
func (b *Board) HasShips() bool { return len(b.ships) > 0 }

// FireAt resolves a shot at (row, col). The second return value is the name
// of the ship sunk by this shot, or "" if none. A previously revealed cell
// yields AlreadyShot and mutates nothing.
func (b *Board) FireAt(row, col int) (ShotResult, string) {
	switch b.hidden[row][col] {
	case cellShip:
		b.hidden[row][col] = cellHit
		b.display[row][col] = cellHit
		ship := b.cellShip[[2]int{row, col}]
		delete(b.cellShip, [2]int{row, col})
		ship.remaining--
		if ship.remaining == 0 {
			return Hit, ship.name
		}
		return Hit, ""
	case cellWater:
		b.hidden[row][col] = cellMiss
		b.display[row][col] = cellMiss
		return Miss, ""
	default: // cellHit or cellMiss
		return AlreadyShot, ""
	}
}

// AllSunk reports whether every placed ship has zero remaining cells.
// It is false for a board with no ships at all.
func (b *Board) AllSunk() bool {
	if len(b.ships) == 0 {
		return false
	}
	for _, ship := range b.ships {
		if ship.remaining > 0 {
			return false
		}
	}
	return true
}

// DisplayRows renders the redacted observer view as wire lines: a column
// header row followed by one labeled row per board row.
func (b *Board) DisplayRows() []string {
	return renderGrid(b.display, b.size)
}

// HiddenRows renders the ship-revealing owner view.
func (b *Board) HiddenRows() []string {
	return renderGrid(b.hidden, b.size)
}

func renderGrid(grid [][]byte, size int) []string {
	rows := make([]string, 0, size+1)
	header := make([]string, size)
	for i := range header {
		header[i] = fmt.Sprintf("%2d", i+1)
	}
	rows = append(rows, "   "+strings.Join(header, " "))
	for r := 0; r < size; r++ {
		cells := make([]string, size)
		for c := 0; c < size; c++ {
			cells[c] = string(grid[r][c])
		}
		rows = append(rows, fmt.Sprintf("%-2c %s", rune('A'+r), strings.Join(cells, "  ")))
	}
	return rows
}
