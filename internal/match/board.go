package match

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/salvora/broadside/internal/game"
)

// Board is the grid collaborator the orchestrator drives. It is implemented
// by *game.Board; the orchestrator only ever goes through this interface so
// the placement/hit-testing model stays swappable.
type Board interface {
	Reset()
	CanPlace(row, col, length int, o game.Orientation) bool
	PlaceShip(name string, row, col, length int, o game.Orientation) error
	PlaceFleetRandomly(rng *rand.Rand)
	FireAt(row, col int) (game.ShotResult, string)
	AllSunk() bool
	HasShips() bool
	DisplayRows() []string
	HiddenRows() []string
	Size() int
}

var _ Board = (*game.Board)(nil)

// Snapshot preserves an interrupted match for the reconnection grace
// window: the username pair, each side's board, and whose turn it is. The
// boards' exclusive ownership transfers with the snapshot — first to the
// registry's store, then back to the resumed orchestrator.
type Snapshot struct {
	MatchID uuid.UUID
	Players [2]string        // username pair
	Boards  map[string]Board // each side's own board, by username
	Turn    string           // username whose turn it is
	SavedAt time.Time
}
