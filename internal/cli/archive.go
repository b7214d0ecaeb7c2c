package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tessro/decklink/internal/archive"
	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/dbserver"
	dlerrors "github.com/tessro/decklink/internal/errors"
	"github.com/tessro/decklink/internal/session"
)

var (
	archivePlaylist int
	archiveYAML     bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Create and inspect metadata archives",
	Long: `Metadata archives hold everything needed to follow a media library without
asking the players: track metadata, artwork, beat grids, waveforms and phrase
analysis. Attach them in the [archive] config section.`,
}

var archiveCreateCmd = &cobra.Command{
	Use:   "create <player> <slot> <file>",
	Short: "Archive the metadata of mounted media",
	Long: `Reads every track (or one playlist, with --playlist) from the media in a
player slot and writes it to an archive file.

Slots: usb, sd, cd, collection`,
	Example: `  decklink archive create 2 usb set.dlk
  decklink archive create 3 sd friday.dlk --playlist 12`,
	Args: cobra.ExactArgs(3),
	RunE: runArchiveCreate,
}

var archiveInspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show what an archive contains",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveInspect,
}

func init() {
	archiveCreateCmd.Flags().IntVarP(&archivePlaylist, "playlist", "p", 0, "archive only this playlist")
	archiveInspectCmd.Flags().BoolVar(&archiveYAML, "yaml", false, "output as YAML")

	archiveCmd.AddCommand(archiveCreateCmd)
	archiveCmd.AddCommand(archiveInspectCmd)
	rootCmd.AddCommand(archiveCmd)
}

// waitForDevice polls until the player has announced itself or the timeout
// passes.
func waitForDevice(cmd *cobra.Command, s *session.Session, player int, timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, ok := s.Discovery.Device(player); ok {
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return dlerrors.ErrCanceled
		case <-deadline:
			return dlerrors.WithSuggestion(
				fmt.Errorf("%w: player %d", dlerrors.ErrDeviceNotFound, player),
				"Run 'decklink devices' to see which players are on the network",
			)
		case <-ticker.C:
		}
	}
}

func runArchiveCreate(cmd *cobra.Command, args []string) error {
	player, err := strconv.Atoi(args[0])
	if err != nil || player < 1 {
		return fmt.Errorf("invalid player number %q", args[0])
	}
	slot, err := core.ParseSlot(args[1])
	if err != nil {
		return err
	}
	path := args[2]

	if cfg.Finder.Passive {
		return dlerrors.WithSuggestion(
			fmt.Errorf("%w: archiving needs to query the player", dlerrors.ErrPassive),
			"Drop --passive or set finder.passive = false",
		)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	s, err := startSession(ctx)
	if err != nil {
		return err
	}
	defer s.Stop()

	if err := waitForDevice(cmd, s, player, cfg.Network.Timeout()); err != nil {
		return err
	}
	ref := core.NewSlotReference(player, slot)
	media := s.Mounts.Details(ref)
	if media == nil {
		logger.Debug("no media details yet, archive will not be matched automatically", "slot", ref)
	}

	var res *dlerrors.PartialResult[int]
	err = s.DatabaseFor(ctx, player, func(c *dbserver.Client) error {
		ids, err := c.TrackList(ctx, slot, archivePlaylist)
		if err != nil {
			return fmt.Errorf("list tracks: %w", err)
		}
		if len(ids) == 0 {
			return fmt.Errorf("no tracks found in %s", ref)
		}

		bar := progressbar.NewOptions(len(ids),
			progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionFullWidth(),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("[cyan]Archiving[reset] tracks..."),
		)
		defer func() { _ = bar.Finish() }()

		res, err = archive.Create(ctx, path, archive.NewClientSource(c, ref), ids, archive.CreateOptions{
			PlaylistID: archivePlaylist,
			Media:      media,
			Logger:     logger,
			Progress: func(done, total int, md *core.TrackMetadata) bool {
				if md != nil {
					bar.Describe(fmt.Sprintf("[cyan]Archiving[reset] %s", TruncateString(md.Title, 30)))
				}
				_ = bar.Set(done)
				return true
			},
		})
		return err
	})
	fmt.Println()
	if errors.Is(err, dlerrors.ErrCanceled) {
		fmt.Println("Canceled, partial archive removed")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Archived %d tracks to %s\n", res.Data, path)
	if res.HasErrors() {
		fmt.Fprintf(os.Stderr, "Skipped %d tracks: %s\n", len(res.Errors), res.ErrorSummary())
	}
	return nil
}

type archiveInfo struct {
	Path       string             `json:"path" yaml:"path"`
	PlaylistID int                `json:"playlist_id" yaml:"playlist_id"`
	Tracks     int                `json:"tracks" yaml:"tracks"`
	Artwork    int                `json:"artwork" yaml:"artwork"`
	Media      *core.MediaDetails `json:"media,omitempty" yaml:"media,omitempty"`
}

func runArchiveInspect(cmd *cobra.Command, args []string) error {
	r, err := archive.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	info := archiveInfo{
		Path:       args[0],
		PlaylistID: r.PlaylistID(),
		Tracks:     r.TrackCount(),
		Artwork:    len(r.ArtworkIDs()),
		Media:      r.MediaDetails(),
	}

	switch {
	case JSONOutput():
		return writeJSON(os.Stdout, info)
	case archiveYAML:
		return writeYAML(os.Stdout, info)
	}

	fmt.Printf("Archive:  %s\n", info.Path)
	if info.PlaylistID == 0 {
		fmt.Println("Contents: all tracks")
	} else {
		fmt.Printf("Contents: playlist %d\n", info.PlaylistID)
	}
	fmt.Printf("Tracks:   %s\n", humanize.Comma(int64(info.Tracks)))
	fmt.Printf("Artwork:  %s\n", humanize.Comma(int64(info.Artwork)))
	if m := info.Media; m != nil {
		fmt.Println()
		fmt.Printf("Media:    %s (%s)\n", m.Name, m.MediaType)
		if m.CreationDate != "" {
			fmt.Printf("Created:  %s\n", m.CreationDate)
		}
		fmt.Printf("Library:  %s tracks, %s playlists\n", humanize.Comma(int64(m.TrackCount)), humanize.Comma(int64(m.PlaylistCount)))
		if m.TotalSize > 0 {
			fmt.Printf("Size:     %s (%s free)\n", humanize.Bytes(uint64(m.TotalSize)), humanize.Bytes(uint64(m.FreeSpace)))
		}
	}
	return nil
}
