package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/prolink"
)

var devicesWait time.Duration

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices on the player network",
	Long: `Listens for device announcements and player status for a few seconds,
then lists every player, mixer and rekordbox host that was heard, with the
media slots that hold media.`,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().DurationVarP(&devicesWait, "wait", "w", 3*time.Second, "how long to listen")
	rootCmd.AddCommand(devicesCmd)
}

type deviceInfo struct {
	core.DeviceAnnouncement
	Kind  string   `json:"kind"`
	Media []string `json:"media,omitempty"`
}

func deviceKind(d core.DeviceAnnouncement) string {
	switch {
	case d.IsMixer():
		return "mixer"
	case d.IsCollection():
		return "rekordbox"
	default:
		return "player"
	}
}

func runDevices(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	discovery := prolink.NewDiscovery(cfg.Network.Timeout(), nil, logger)
	packets := prolink.NewListener(nil, logger)
	mounts := prolink.NewMountTracker(logger)
	packets.OnStatus(mounts.OnStatus)
	discovery.AddListener(mounts.OnDevice)

	if err := discovery.Start(ctx); err != nil {
		return err
	}
	defer discovery.Stop()
	if err := packets.Start(ctx); err != nil {
		logger.Warn("not listening for status", "error", err)
	} else {
		defer packets.Stop()
	}

	select {
	case <-ctx.Done():
	case <-time.After(devicesWait):
	}

	mounted := mounts.Mounted()
	var devices []deviceInfo
	for _, d := range discovery.Devices() {
		info := deviceInfo{DeviceAnnouncement: d, Kind: deviceKind(d)}
		for _, slot := range mounted {
			if slot.Player == d.Number {
				info.Media = append(info.Media, slot.Slot.String())
			}
		}
		devices = append(devices, info)
	}

	if JSONOutput() {
		if devices == nil {
			devices = []deviceInfo{}
		}
		return writeJSON(os.Stdout, devices)
	}
	if len(devices) == 0 {
		fmt.Println("No devices found")
		return nil
	}

	t := NewTable("#", "NAME", "KIND", "ADDRESS", "MEDIA", "SEEN")
	for _, d := range devices {
		t.Row(
			fmt.Sprint(d.Number),
			TruncateString(d.Name, 20),
			d.Kind,
			d.Address.String(),
			strings.Join(d.Media, ","),
			humanize.Time(d.LastSeen),
		)
	}
	t.Flush()

	if Verbose() {
		fmt.Println()
		for _, d := range devices {
			fmt.Printf("%d: mac %s\n", d.Number, d.MAC)
		}
	}
	return nil
}
