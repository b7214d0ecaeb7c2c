package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/decklink/internal/tui"
)

var tuiRefresh int

var tuiCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"ui", "tui"},
	Short:   "Launch the deck monitor",
	Long: `Launch the full-screen deck monitor.

The monitor shows:
  • Decks - loaded track, waveform, position, bar and phrase per player
  • Devices - players, mixers and rekordbox hosts with their media
  • History - tracks loaded this session

Keyboard shortcuts:
  q, Ctrl+C    Quit
  ?            Help
  Tab          Switch panel
  j/k          Select device`,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().IntVar(&tuiRefresh, "refresh", 0, "refresh interval in milliseconds (default from config)")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refreshRate := cfg.TUI.Refresh()
	if tuiRefresh > 0 {
		refreshRate = time.Duration(tuiRefresh) * time.Millisecond
	}

	s, err := startSession(ctx)
	if err != nil {
		return err
	}
	defer s.Stop()

	return tui.Run(ctx, s, refreshRate, cfg.TUI.Theme)
}
