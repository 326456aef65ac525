package brackets

import "fmt"

// RoomSize is the number of teams debating in one BP room.
const RoomSize = 4

// SwingsNeeded returns how many placeholder teams bring teamCount up to a multiple of four.
func SwingsNeeded(teamCount int) int {
	remainder := teamCount % RoomSize
	if remainder == 0 {
		return 0
	}
	return RoomSize - remainder
}

// SwingName names the n-th swing team of a tournament (1-based).
func SwingName(n int) string {
	return fmt.Sprintf("Swing %d", n)
}
