package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tessro/decklink/internal/session"
	"github.com/tessro/decklink/internal/tail"
)

var (
	tailNoEmoji   bool
	tailTimestamp bool
	tailFormat    string
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow deck changes in real-time",
	Long: `Join the network and print changes as they happen.

Events tracked:
  - Devices joining and leaving
  - Media inserted and removed
  - Tracks loaded and unloaded, per deck and hot cue
  - Artwork, beat grids, waveforms and phrase analysis arriving
  - Play and pause, with the position and beat`,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().BoolVar(&tailNoEmoji, "no-emoji", false, "disable emoji output")
	tailCmd.Flags().BoolVarP(&tailTimestamp, "timestamp", "t", false, "show timestamps")
	tailCmd.Flags().StringVarP(&tailFormat, "format", "f", "", "custom format template")

	rootCmd.AddCommand(tailCmd)
}

// startSession builds and starts a session from the loaded configuration.
// It announces as a virtual player unless running passively.
func startSession(ctx context.Context) (*session.Session, error) {
	s, err := session.New(session.Options{
		Config:   cfg,
		Announce: !cfg.Finder.Passive,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func runTail(cmd *cobra.Command, args []string) error {
	formatter := tail.NewFormatter(
		tail.WithEmoji(!tailNoEmoji),
		tail.WithTimestamp(tailTimestamp),
		tail.WithTemplate(tailFormat),
	)

	// Handle Ctrl+C gracefully
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := startSession(ctx)
	if err != nil {
		return err
	}
	defer s.Stop()

	watcher := tail.NewWatcher(nil, 256)
	watcher.Attach(s)
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			fmt.Println(formatter.Format(event))
		}
	}
}
