package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomPlacementAlwaysFits(t *testing.T) {
	// A 10x10 board must admit a full random fleet for any seed.
	for seed := int64(0); seed < 100; seed++ {
		b := NewBoard(BoardSize)
		b.PlaceFleetRandomly(rand.New(rand.NewSource(seed)))
		assert.Equal(t, len(Fleet), b.PlacedShips(), "seed %d", seed)
	}
}

func TestCanPlaceBoundsAndOverlap(t *testing.T) {
	b := NewBoard(BoardSize)

	assert.True(t, b.CanPlace(0, 5, 5, Horizontal))
	assert.False(t, b.CanPlace(0, 6, 5, Horizontal), "runs off the right edge")
	assert.False(t, b.CanPlace(6, 0, 5, Vertical), "runs off the bottom edge")
	assert.False(t, b.CanPlace(-1, 0, 2, Horizontal))

	require.NoError(t, b.PlaceShip("Carrier", 0, 0, 5, Horizontal))
	assert.False(t, b.CanPlace(0, 4, 2, Horizontal), "overlaps the carrier")
	assert.False(t, b.CanPlace(0, 2, 3, Vertical), "crosses the carrier")
	assert.True(t, b.CanPlace(1, 0, 4, Horizontal))

	err := b.PlaceShip("Battleship", 0, 0, 4, Vertical)
	assert.ErrorIs(t, err, ErrInvalidPlacement)
}

func TestFireAtSameCellTwice(t *testing.T) {
	b := NewBoard(BoardSize)
	require.NoError(t, b.PlaceShip("Destroyer", 2, 2, 2, Horizontal))

	result, sunk := b.FireAt(2, 2)
	assert.Equal(t, Hit, result)
	assert.Empty(t, sunk)

	result, _ = b.FireAt(2, 2)
	assert.Equal(t, AlreadyShot, result, "second shot at a hit cell")

	result, _ = b.FireAt(5, 5)
	assert.Equal(t, Miss, result)
	result, _ = b.FireAt(5, 5)
	assert.Equal(t, AlreadyShot, result, "second shot at a miss cell")
}

func TestSinkReportsNameExactlyOnce(t *testing.T) {
	b := NewBoard(BoardSize)
	require.NoError(t, b.PlaceShip("Cruiser", 0, 0, 3, Vertical))
	require.NoError(t, b.PlaceShip("Destroyer", 0, 5, 2, Horizontal))

	_, sunk := b.FireAt(0, 0)
	assert.Empty(t, sunk)
	_, sunk = b.FireAt(1, 0)
	assert.Empty(t, sunk)
	_, sunk = b.FireAt(2, 0)
	assert.Equal(t, "Cruiser", sunk, "last cell sinks the cruiser")
	assert.False(t, b.AllSunk(), "destroyer still afloat")

	// Re-firing the sinking cell must not report the sink again.
	result, sunk := b.FireAt(2, 0)
	assert.Equal(t, AlreadyShot, result)
	assert.Empty(t, sunk)

	_, sunk = b.FireAt(0, 5)
	assert.Empty(t, sunk)
	_, sunk = b.FireAt(0, 6)
	assert.Equal(t, "Destroyer", sunk)
	assert.True(t, b.AllSunk())
}

func TestAllSunkEmptyBoard(t *testing.T) {
	b := NewBoard(BoardSize)
	assert.False(t, b.AllSunk(), "a board with no ships is not won")
	assert.False(t, b.HasShips())
}

func TestResetClearsEverything(t *testing.T) {
	b := NewBoard(BoardSize)
	require.NoError(t, b.PlaceShip("Destroyer", 0, 0, 2, Horizontal))
	b.FireAt(0, 0)

	b.Reset()
	assert.False(t, b.HasShips())
	assert.Equal(t, 0, b.PlacedShips())
	result, _ := b.FireAt(0, 0)
	assert.Equal(t, Miss, result, "cell is plain water again after reset")
}

func TestDisplayRowsRedactShips(t *testing.T) {
	b := NewBoard(BoardSize)
	require.NoError(t, b.PlaceShip("Destroyer", 0, 0, 2, Horizontal))
	b.FireAt(0, 0) // hit
	b.FireAt(9, 9) // miss

	display := b.DisplayRows()
	require.Len(t, display, BoardSize+1)
	assert.NotContains(t, display[1], "S", "observer view never shows ships")
	assert.Contains(t, display[1], "X")
	assert.Contains(t, display[10], "o")

	hidden := b.HiddenRows()
	assert.Contains(t, hidden[1], "S", "owner view shows the unhit segment")
}

func TestParseCoordinate(t *testing.T) {
	testCases := []struct {
		in        string
		row, col  int
		expectErr bool
	}{
		{"A1", 0, 0, false},
		{"a1", 0, 0, false},
		{"C10", 2, 9, false},
		{"J10", 9, 9, false},
		{" b5 ", 1, 4, false},
		{"K1", 0, 0, true},  // row out of range
		{"A11", 0, 0, true}, // column out of range
		{"A0", 0, 0, true},  // columns are 1-indexed
		{"5A", 0, 0, true},
		{"A", 0, 0, true},
		{"", 0, 0, true},
		{"Axy", 0, 0, true},
	}

	for _, tc := range testCases {
		row, col, err := ParseCoordinate(tc.in, BoardSize)
		if tc.expectErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.row, row, "input %q", tc.in)
		assert.Equal(t, tc.col, col, "input %q", tc.in)
	}
}

func TestParseOrientation(t *testing.T) {
	o, err := ParseOrientation("h")
	require.NoError(t, err)
	assert.Equal(t, Horizontal, o)

	o, err = ParseOrientation(" V ")
	require.NoError(t, err)
	assert.Equal(t, Vertical, o)

	_, err = ParseOrientation("D")
	assert.Error(t, err)
}
