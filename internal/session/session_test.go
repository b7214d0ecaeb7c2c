package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/decklink/internal/config"
	"github.com/tessro/decklink/internal/dbserver"
	dlerrors "github.com/tessro/decklink/internal/errors"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewBuildsStoppedSession(t *testing.T) {
	s, err := New(Options{Clock: clock.NewMock(), Logger: quiet()})
	require.NoError(t, err)

	assert.False(t, s.Running())
	assert.Nil(t, s.Announcer)
	assert.Nil(t, s.AutoAttach)
	assert.NotNil(t, s.Config())
	for _, f := range s.finders() {
		assert.NotNil(t, f)
	}
	assert.Equal(t, "metadata", s.Metadata.Name())
	assert.False(t, s.Metadata.Running())
	assert.False(t, s.Time.Running())

	s.Stop()
	assert.False(t, s.Running())
}

func TestNewWithAutoAttachDir(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.AutoAttachDir = t.TempDir()
	s, err := New(Options{Config: cfg, Logger: quiet()})
	require.NoError(t, err)
	assert.NotNil(t, s.AutoAttach)
}

func TestDatabaseForStoppedSession(t *testing.T) {
	s, err := New(Options{Logger: quiet()})
	require.NoError(t, err)

	called := false
	err = s.DatabaseFor(context.Background(), 3, func(*dbserver.Client) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dlerrors.ErrNotRunning))
	assert.NotEmpty(t, dlerrors.GetSuggestion(err))
	assert.False(t, called)
}
