package game

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCoordinate converts a textual coordinate like "B5" into zero-based
// (row, col). The row is one letter starting at 'A', the column a 1-indexed
// number: "A1" => (0, 0), "C10" => (2, 9). Case-insensitive.
func ParseCoordinate(coord string, size int) (row, col int, err error) {
	coord = strings.ToUpper(strings.TrimSpace(coord))
	if len(coord) < 2 {
		return 0, 0, fmt.Errorf("coordinate %q: want row letter followed by column number (e.g. B5)", coord)
	}
	letter := coord[0]
	if letter < 'A' || letter > 'Z' {
		return 0, 0, fmt.Errorf("coordinate %q: row must be a letter", coord)
	}
	n, convErr := strconv.Atoi(coord[1:])
	if convErr != nil {
		return 0, 0, fmt.Errorf("coordinate %q: column must be a number", coord)
	}
	row = int(letter - 'A')
	col = n - 1
	if row >= size || col < 0 || col >= size {
		return 0, 0, fmt.Errorf("coordinate %q out of range (A1-%c%d)", coord, rune('A'+size-1), size)
	}
	return row, col, nil
}
