package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilled(t *testing.T) {
	tests := []struct {
		done, total int
		want        int
	}{
		{0, 215, 0},
		{1, 215, 0},
		{11, 215, 1},
		{107, 215, 9},
		{108, 215, 10},
		{214, 215, 19},
		{215, 215, 20},
		{300, 215, 20},
		{-5, 215, 0},
		{1, 0, 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Filled(tt.done, tt.total), "%d/%d", tt.done, tt.total)
	}
}

func TestFilledIsMonotonic(t *testing.T) {
	prev := 0
	for i := 1; i <= 431; i++ {
		f := Filled(i, 431)
		require.GreaterOrEqual(t, f, prev)
		prev = f
	}
	assert.Equal(t, Segments, prev)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "Recording: "+strings.Repeat("-", 20)+" 0%", Render("Recording", 0, 10))
	assert.Equal(t, "Recording: "+strings.Repeat("█", 10)+strings.Repeat("-", 10)+" 50%", Render("Recording", 5, 10))
	assert.Equal(t, "Recording: "+strings.Repeat("█", 20)+" 100%", Render("Recording", 10, 10))
}

func TestBarRedrawsInPlace(t *testing.T) {
	var out bytes.Buffer
	bar := New(&out, "Recording", 4)
	for i := 1; i <= 4; i++ {
		require.NoError(t, bar.Update(i))
	}

	lines := strings.Split(out.String(), "\r")
	require.Len(t, lines, 5)
	assert.Empty(t, lines[0])
	assert.True(t, strings.HasSuffix(lines[1], " 25%"))
	assert.True(t, strings.HasSuffix(lines[4], " 100%"))
	assert.NotContains(t, out.String(), "\n")
}
