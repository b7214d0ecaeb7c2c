package beatgrid

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/decklink/internal/core"
	dlerrors "github.com/tessro/decklink/internal/errors"
)

var track = core.DataReference{Player: 1, Slot: core.SlotUSB, ID: 99}

// grid120 is eight beats at 120 bpm starting half a second in, first beat a downbeat.
func grid120(t *testing.T) *BeatGrid {
	t.Helper()
	g, err := New(track,
		[]int{1, 2, 3, 4, 1, 2, 3, 4},
		[]int{12000, 12000, 12000, 12000, 12000, 12000, 12000, 12000},
		[]int64{500, 1000, 1500, 2000, 2500, 3000, 3500, 4000})
	require.NoError(t, err)
	return g
}

func TestRoundTripBeatAtTimeAt(t *testing.T) {
	g := grid120(t)
	for b := 1; b <= g.BeatCount(); b++ {
		ms, err := g.TimeAt(b)
		require.NoError(t, err)
		got, err := g.BeatAt(ms)
		require.NoError(t, err)
		assert.Equal(t, b, got, "beat %d", b)
	}
}

func TestBeatAtBeforeFirstBeat(t *testing.T) {
	g := grid120(t)
	first, _ := g.TimeAt(1)
	got, err := g.BeatAt(first - 1)
	require.NoError(t, err)
	assert.Equal(t, -1, got)
}

func TestBeatAtBetweenBeats(t *testing.T) {
	g := grid120(t)
	got, err := g.BeatAt(1749)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	got, err = g.BeatAt(999999)
	require.NoError(t, err)
	assert.Equal(t, 8, got)
}

func TestClamping(t *testing.T) {
	g := grid120(t)

	ms, err := g.TimeAt(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ms)

	last, _ := g.BeatWithinBar(g.BeatCount())
	over, err := g.BeatWithinBar(g.BeatCount() + 5)
	require.NoError(t, err)
	assert.Equal(t, last, over)

	ms, err = g.TimeAt(-3)
	require.NoError(t, err)
	assert.Equal(t, int64(500), ms)
}

func TestClampingLogsToInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	g, err := FromPayload(track, grid120(t).Payload(), WithLogger(logger))
	require.NoError(t, err)

	_, err = g.TimeAt(-3)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "beat number below range")
	assert.Contains(t, buf.String(), "beat=-3")

	buf.Reset()
	_, err = g.BPMAt(g.BeatCount() + 1)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "beat number past end of grid")
	assert.Contains(t, buf.String(), "beats=8")

	buf.Reset()
	_, err = g.TimeAt(2)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestEmptyGrid(t *testing.T) {
	g, err := New(track, nil, nil, nil)
	require.NoError(t, err)

	ms, err := g.TimeAt(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ms)

	_, err = g.TimeAt(1)
	assert.ErrorIs(t, err, dlerrors.ErrInvalidState)
	_, err = g.BeatWithinBar(1)
	assert.ErrorIs(t, err, dlerrors.ErrInvalidState)
	_, err = g.BPMAt(1)
	assert.ErrorIs(t, err, dlerrors.ErrInvalidState)
	_, err = g.BarOf(1)
	assert.ErrorIs(t, err, dlerrors.ErrInvalidState)
	_, err = g.BeatAt(100)
	assert.ErrorIs(t, err, dlerrors.ErrInvalidState)
}

func TestBarOf(t *testing.T) {
	g := grid120(t)
	tests := []struct{ beat, bar int }{
		{1, 1}, {4, 1}, {5, 2}, {8, 2},
	}
	for _, tt := range tests {
		got, err := g.BarOf(tt.beat)
		require.NoError(t, err)
		assert.Equal(t, tt.bar, got, "beat %d", tt.beat)
	}
}

func TestBarOfPartialLeadingBar(t *testing.T) {
	g, err := New(track,
		[]int{3, 4, 1, 2, 3, 4, 1},
		[]int{12800, 12800, 12800, 12800, 12800, 12800, 12800},
		[]int64{0, 468, 937, 1406, 1875, 2343, 2812})
	require.NoError(t, err)

	bars := make([]int, 0, g.BeatCount())
	for b := 1; b <= g.BeatCount(); b++ {
		bar, err := g.BarOf(b)
		require.NoError(t, err)
		bars = append(bars, bar)
	}
	assert.Equal(t, []int{-1, -1, 1, 1, 1, 1, 2}, bars)
}

func TestNewRejectsMismatchedArrays(t *testing.T) {
	_, err := New(track, []int{1}, []int{12000, 12000}, []int64{0})
	assert.ErrorIs(t, err, dlerrors.ErrInvalidState)

	_, err = New(track, []int{1, 2}, []int{1, 1}, []int64{10, 5})
	assert.ErrorIs(t, err, dlerrors.ErrInvalidState)
}

func TestPayloadRoundTrip(t *testing.T) {
	g := grid120(t)
	parsed, err := FromPayload(track, g.Payload())
	require.NoError(t, err)
	assert.Equal(t, g, parsed)

	bpm, err := parsed.BPMAt(3)
	require.NoError(t, err)
	assert.Equal(t, 12000, bpm)
}

func TestAnalysisTagRoundTrip(t *testing.T) {
	g := grid120(t)
	parsed, err := FromAnalysisTag(track, g.AnalysisTag())
	require.NoError(t, err)
	assert.Equal(t, g, parsed)

	_, err = FromAnalysisTag(track, []byte("PWAV0000"))
	assert.Error(t, err)
}
