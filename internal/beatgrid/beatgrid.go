// Package beatgrid models the beat grid of an analyzed track: when each beat
// occurs, where it falls in its bar, and the tempo in effect at that beat.
package beatgrid

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tessro/decklink/internal/core"
	dlerrors "github.com/tessro/decklink/internal/errors"
)

const (
	payloadHeaderSize = 0x14
	payloadEntrySize  = 16
)

// BeatGrid is an immutable table of beats. Beat numbers are 1-based.
type BeatGrid struct {
	Track core.DataReference

	beatWithinBar []int
	bpm           []int // tempo * 100
	timeMs        []int64

	logger *slog.Logger
}

// Option configures a BeatGrid.
type Option func(*BeatGrid)

// WithLogger sets the logger that receives out-of-range beat lookups.
func WithLogger(logger *slog.Logger) Option {
	return func(g *BeatGrid) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New builds a grid from explicit parallel slices, which must have equal length
// and non-decreasing times. The slices are copied.
func New(track core.DataReference, beatWithinBar, bpm []int, timeMs []int64, opts ...Option) (*BeatGrid, error) {
	if len(beatWithinBar) != len(bpm) || len(bpm) != len(timeMs) {
		return nil, fmt.Errorf("beat grid arrays differ in length (%d, %d, %d): %w",
			len(beatWithinBar), len(bpm), len(timeMs), dlerrors.ErrInvalidState)
	}
	for i := 1; i < len(timeMs); i++ {
		if timeMs[i] < timeMs[i-1] {
			return nil, fmt.Errorf("beat %d at %dms precedes beat %d at %dms: %w",
				i+1, timeMs[i], i, timeMs[i-1], dlerrors.ErrInvalidState)
		}
	}
	g := &BeatGrid{
		Track:         track,
		beatWithinBar: append([]int(nil), beatWithinBar...),
		bpm:           append([]int(nil), bpm...),
		timeMs:        append([]int64(nil), timeMs...),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// FromPayload decodes the beat grid blob returned by a player's database server.
// The payload is a fixed header followed by little-endian 16-byte entries.
func FromPayload(track core.DataReference, payload []byte, opts ...Option) (*BeatGrid, error) {
	if len(payload) < payloadHeaderSize {
		return nil, fmt.Errorf("beat grid payload too short (%d bytes)", len(payload))
	}
	count := (len(payload) - payloadHeaderSize) / payloadEntrySize
	beatWithinBar := make([]int, count)
	bpm := make([]int, count)
	timeMs := make([]int64, count)
	for i := 0; i < count; i++ {
		base := payloadHeaderSize + i*payloadEntrySize
		beatWithinBar[i] = int(payload[base])
		bpm[i] = int(binary.LittleEndian.Uint16(payload[base+2:]))
		timeMs[i] = int64(binary.LittleEndian.Uint32(payload[base+4:]))
	}
	return New(track, beatWithinBar, bpm, timeMs, opts...)
}

// Payload encodes the grid in the database server's blob layout, the inverse of FromPayload.
func (g *BeatGrid) Payload() []byte {
	out := make([]byte, payloadHeaderSize+len(g.timeMs)*payloadEntrySize)
	for i := range g.timeMs {
		base := payloadHeaderSize + i*payloadEntrySize
		out[base] = byte(g.beatWithinBar[i])
		binary.LittleEndian.PutUint16(out[base+2:], uint16(g.bpm[i]))
		binary.LittleEndian.PutUint32(out[base+4:], uint32(g.timeMs[i]))
	}
	return out
}

// BeatCount returns the number of beats in the grid.
func (g *BeatGrid) BeatCount() int {
	return len(g.timeMs)
}

// index maps a 1-based beat number onto a slice index, clamping out-of-range values.
func (g *BeatGrid) index(beatNumber int) (int, error) {
	n := len(g.timeMs)
	if n == 0 {
		return 0, fmt.Errorf("beat grid for %s has no beats: %w", g.Track, dlerrors.ErrInvalidState)
	}
	if beatNumber < 1 {
		g.logger.Debug("beat number below range, using first beat",
			"track", g.Track.String(),
			"beat", beatNumber)
		return 0, nil
	}
	if beatNumber > n {
		g.logger.Debug("beat number past end of grid, using last beat",
			"track", g.Track.String(),
			"beat", beatNumber,
			"beats", n)
		return n - 1, nil
	}
	return beatNumber - 1, nil
}

// TimeAt returns the time in milliseconds at which a beat occurs.
// Beat 0 means "before the first beat" and is always at time zero.
func (g *BeatGrid) TimeAt(beatNumber int) (int64, error) {
	if beatNumber == 0 {
		return 0, nil
	}
	i, err := g.index(beatNumber)
	if err != nil {
		return 0, err
	}
	return g.timeMs[i], nil
}

// BeatWithinBar returns the position (1-4) of a beat within its bar.
func (g *BeatGrid) BeatWithinBar(beatNumber int) (int, error) {
	i, err := g.index(beatNumber)
	if err != nil {
		return 0, err
	}
	return g.beatWithinBar[i], nil
}

// BPMAt returns the tempo (bpm * 100) in effect at a beat.
func (g *BeatGrid) BPMAt(beatNumber int) (int, error) {
	i, err := g.index(beatNumber)
	if err != nil {
		return 0, err
	}
	return g.bpm[i], nil
}

// BarOf returns the 1-based bar containing a beat. Bars are anchored on the
// first downbeat of the grid; beats in a partial leading bar are in bar -1.
func (g *BeatGrid) BarOf(beatNumber int) (int, error) {
	i, err := g.index(beatNumber)
	if err != nil {
		return 0, err
	}
	first := g.firstDownbeat()
	if i < first {
		return -1, nil
	}
	return (i-first)/4 + 1, nil
}

func (g *BeatGrid) firstDownbeat() int {
	b := g.beatWithinBar[0]
	if b <= 1 || b > 4 {
		return 0
	}
	// Bar positions wrap 1..4, so the first downbeat is at most three beats in.
	return 5 - b
}

// BeatAt returns the latest beat at or before the given time. It returns -1
// when the time precedes the first beat.
func (g *BeatGrid) BeatAt(timeMs int64) (int, error) {
	if len(g.timeMs) == 0 {
		return 0, fmt.Errorf("beat grid for %s has no beats: %w", g.Track, dlerrors.ErrInvalidState)
	}
	// First index whose time is strictly after timeMs.
	i := sort.Search(len(g.timeMs), func(i int) bool { return g.timeMs[i] > timeMs })
	if i == 0 {
		return -1, nil
	}
	return i, nil
}
