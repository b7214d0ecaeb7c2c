package timefinder

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/decklink/internal/beatgrid"
	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dispatch"
	"github.com/tessro/decklink/internal/finder"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var loaded = core.DataReference{Player: 2, Slot: core.SlotUSB, ID: 41}

// grid has beat n at n*500ms, four beats to the bar, starting on a downbeat.
func grid(t *testing.T, track core.DataReference, beats int) *beatgrid.BeatGrid {
	t.Helper()
	bwb := make([]int, beats)
	bpm := make([]int, beats)
	times := make([]int64, beats)
	for i := range bwb {
		bwb[i] = i%4 + 1
		bpm[i] = 12000
		times[i] = int64(i+1) * 500
	}
	g, err := beatgrid.New(track, bwb, bpm, times)
	require.NoError(t, err)
	return g
}

func setup(t *testing.T) (*TimeFinder, *clock.Mock, *beatgrid.BeatGrid) {
	t.Helper()
	clk := clock.NewMock()
	tf := New(nil, nil, nil, clk, quiet)
	g := grid(t, loaded, 600)
	tf.OnBeatGrid(finder.Update[beatgrid.BeatGrid]{Deck: core.MainDeck(1), Value: g})
	return tf, clk, g
}

func status(clk clock.Clock, playing, reverse bool) *core.CdjStatus {
	return &core.CdjStatus{
		Player:            1,
		Timestamp:         clk.Now(),
		TrackSourcePlayer: loaded.Player,
		TrackSourceSlot:   loaded.Slot,
		TrackType:         core.TrackTypeRekordbox,
		RekordboxID:       loaded.ID,
		Playing:           playing,
		Reverse:           reverse,
		Pitch:             1.0,
	}
}

func precise(clk clock.Clock, ms int64) *core.PrecisePosition {
	return &core.PrecisePosition{Player: 1, Timestamp: clk.Now(), TrackLength: 300, PositionMs: ms, Pitch: 1.0}
}

func TestInterpolation(t *testing.T) {
	tests := []struct {
		name    string
		playing bool
		reverse bool
		want    int64
	}{
		{"forward", true, false, 12000},
		{"reverse", true, true, 8000},
		{"paused", false, false, 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tf, clk, _ := setup(t)
			tf.OnStatus(status(clk, tt.playing, tt.reverse))
			tf.OnPrecisePosition(precise(clk, 10000))

			u := tf.LatestPositionFor(1)
			require.NotNil(t, u)
			assert.True(t, u.Definitive)
			assert.True(t, u.Precise)

			clk.Add(2 * time.Second)
			assert.InDelta(t, tt.want, tf.TimeFor(1), 5)

			clk.Add(time.Hour)
			if !tt.playing {
				assert.Equal(t, int64(10000), tf.TimeFor(1))
			}
		})
	}
}

func TestInterpolationClamps(t *testing.T) {
	tf, clk, _ := setup(t)
	tf.OnStatus(status(clk, true, false))
	p := precise(clk, 10000)
	p.TrackLength = 11
	tf.OnPrecisePosition(p)
	clk.Add(5 * time.Second)
	assert.Equal(t, int64(11000), tf.TimeFor(1))

	tf.OnStatus(status(clk, true, true))
	clk.Add(time.Minute)
	assert.Equal(t, int64(0), tf.TimeFor(1))
}

func TestUnknownWithoutGrid(t *testing.T) {
	clk := clock.NewMock()
	tf := New(nil, nil, nil, clk, quiet)
	tf.OnStatus(status(clk, true, false))
	tf.OnPrecisePosition(precise(clk, 10000))
	tf.OnBeat(&core.Beat{Player: 1, Timestamp: clk.Now(), Pitch: 1, BeatWithinBar: 1})
	assert.Nil(t, tf.LatestPositionFor(1))
	assert.Equal(t, int64(-1), tf.TimeFor(1))
}

func TestStatusAloneNeverAnchors(t *testing.T) {
	tf, clk, _ := setup(t)
	s := status(clk, true, false)
	s.BeatNumber = 20
	tf.OnStatus(s)
	assert.Equal(t, int64(-1), tf.TimeFor(1))
}

func TestBeatAnchorsOnNearestBeat(t *testing.T) {
	tf, clk, _ := setup(t)
	s := status(clk, true, false)
	s.BeatNumber = 4
	tf.OnStatus(s)

	clk.Add(480 * time.Millisecond)
	tf.OnBeat(&core.Beat{Player: 1, Timestamp: clk.Now(), Pitch: 1, BeatWithinBar: 1})
	u := tf.LatestPositionFor(1)
	require.NotNil(t, u)
	assert.Equal(t, 5, u.BeatNumber)
	assert.Equal(t, int64(2500), u.PositionMs)
	assert.True(t, u.FromBeat)
	assert.True(t, u.Definitive)

	clk.Add(510 * time.Millisecond)
	tf.OnBeat(&core.Beat{Player: 1, Timestamp: clk.Now(), Pitch: 1, BeatWithinBar: 2})
	assert.Equal(t, 6, tf.LatestPositionFor(1).BeatNumber)
}

func TestPreciseReportsSuppressBeats(t *testing.T) {
	tf, clk, _ := setup(t)
	tf.OnStatus(status(clk, true, false))
	tf.OnPrecisePosition(precise(clk, 10000))
	clk.Add(100 * time.Millisecond)
	tf.OnBeat(&core.Beat{Player: 1, Timestamp: clk.Now(), Pitch: 1, BeatWithinBar: 1})
	u := tf.LatestPositionFor(1)
	assert.True(t, u.Precise)
	assert.Equal(t, int64(10000), u.PositionMs)
}

func TestTrackChangeInvalidates(t *testing.T) {
	tf, clk, _ := setup(t)
	tf.OnStatus(status(clk, true, false))
	tf.OnPrecisePosition(precise(clk, 10000))
	require.NotNil(t, tf.LatestPositionFor(1))

	s := status(clk, true, false)
	s.RekordboxID = 99
	tf.OnStatus(s)
	assert.Nil(t, tf.LatestPositionFor(1))

	tf.OnPrecisePosition(precise(clk, 10000))
	assert.Nil(t, tf.LatestPositionFor(1), "old grid does not match the new track")
}

func TestNewGridInvalidates(t *testing.T) {
	tf, clk, _ := setup(t)
	tf.OnStatus(status(clk, true, false))
	tf.OnPrecisePosition(precise(clk, 10000))

	tf.OnBeatGrid(finder.Update[beatgrid.BeatGrid]{Deck: core.MainDeck(1), Value: grid(t, loaded, 10)})
	assert.Equal(t, int64(-1), tf.TimeFor(1))

	tf.OnPrecisePosition(precise(clk, 2000))
	assert.Equal(t, int64(2000), tf.TimeFor(1))
	assert.Equal(t, 4, tf.LatestPositionFor(1).BeatNumber)

	tf.OnBeatGrid(finder.Update[beatgrid.BeatGrid]{Deck: core.NewDeckReference(1, 3), Value: nil})
	assert.NotNil(t, tf.LatestPositionFor(1), "hot cue grids are ignored")
	tf.OnBeatGrid(finder.Update[beatgrid.BeatGrid]{Deck: core.MainDeck(1), Value: nil})
	assert.Nil(t, tf.LatestPositionFor(1))
}

func TestPlayStateChangeRebases(t *testing.T) {
	tf, clk, _ := setup(t)
	tf.OnStatus(status(clk, true, false))
	tf.OnPrecisePosition(precise(clk, 10000))
	clk.Add(time.Second)
	tf.OnStatus(status(clk, false, false))

	u := tf.LatestPositionFor(1)
	require.NotNil(t, u)
	assert.False(t, u.Definitive)
	assert.InDelta(t, 11000, u.PositionMs, 5)
	clk.Add(time.Minute)
	assert.InDelta(t, 11000, tf.TimeFor(1), 5)
}

type fakeGrids struct {
	listeners *dispatch.Listeners[finder.Update[beatgrid.BeatGrid]]
	loaded    map[core.DeckReference]*beatgrid.BeatGrid
}

func (g *fakeGrids) AddListener(fn func(finder.Update[beatgrid.BeatGrid])) dispatch.Subscription {
	return g.listeners.Add(fn)
}
func (g *fakeGrids) RemoveListener(id dispatch.Subscription) { g.listeners.Remove(id) }
func (g *fakeGrids) Loaded() map[core.DeckReference]*beatgrid.BeatGrid {
	return g.loaded
}

func TestLifecycleAndListeners(t *testing.T) {
	clk := clock.NewMock()
	grids := &fakeGrids{
		listeners: dispatch.NewListeners[finder.Update[beatgrid.BeatGrid]]("grids", quiet),
		loaded:    map[core.DeckReference]*beatgrid.BeatGrid{core.MainDeck(1): grid(t, loaded, 100)},
	}
	tf := New(nil, grids, nil, clk, quiet)
	require.NoError(t, tf.Start())
	require.NoError(t, tf.Start())
	assert.Equal(t, 1, grids.listeners.Len())

	updates := make(chan *PositionUpdate, 10)
	tf.AddTrackPositionListener(1, func(u *PositionUpdate) { updates <- u })

	tf.OnStatus(status(clk, true, false))
	tf.OnPrecisePosition(precise(clk, 3000))
	select {
	case u := <-updates:
		require.NotNil(t, u)
		assert.Equal(t, int64(3000), u.PositionMs)
	case <-time.After(2 * time.Second):
		t.Fatal("no position delivered")
	}

	tf.Stop()
	tf.Stop()
	assert.False(t, tf.Running())
	assert.Zero(t, grids.listeners.Len())
	assert.Nil(t, <-updates)
	assert.Equal(t, int64(-1), tf.TimeFor(1))
}
