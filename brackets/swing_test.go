package brackets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSwingsNeeded(t *testing.T) {
	cases := map[int]int{0: 0, 1: 3, 2: 2, 3: 1, 4: 0, 5: 3, 10: 2, 16: 0, 17: 3}
	for teams, want := range cases {
		assert.Equal(t, want, SwingsNeeded(teams), "teams=%d", teams)
	}
}

func TestSwingName(t *testing.T) {
	assert.Equal(t, "Swing 1", SwingName(1))
	assert.Equal(t, "Swing 3", SwingName(3))
}
