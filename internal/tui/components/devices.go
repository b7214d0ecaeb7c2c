package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/decklink/internal/core"
	"github.com/tessro/decklink/internal/tui/styles"
)

// Devices displays the devices on the network
type Devices struct {
	selected int
}

// NewDevices creates a new Devices component
func NewDevices() *Devices {
	return &Devices{selected: 0}
}

// SelectNext selects the next device
func (d *Devices) SelectNext() {
	d.selected++
}

// SelectPrev selects the previous device
func (d *Devices) SelectPrev() {
	if d.selected > 0 {
		d.selected--
	}
}

// Selected returns the selected device index
func (d *Devices) Selected() int {
	return d.selected
}

// Render renders the devices panel. mounted lists the slots holding media.
func (d *Devices) Render(devices []core.DeviceAnnouncement, mounted []core.SlotReference, now time.Time, width, height int, focused bool) string {
	title := styles.PanelTitle("Devices", focused)

	var content string
	if len(devices) == 0 {
		content = styles.Muted.Render("No devices found")
	} else {
		content = d.renderDevices(devices, mounted, now, height-4, focused)
	}

	return styles.Panel(focused).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", content))
}

func (d *Devices) renderDevices(devices []core.DeviceAnnouncement, mounted []core.SlotReference, now time.Time, maxLines int, focused bool) string {
	if d.selected >= len(devices) {
		d.selected = len(devices) - 1
	}
	if d.selected < 0 {
		d.selected = 0
	}

	lines := make([]string, 0, len(devices))
	for i, device := range devices {
		selector := "  "
		if focused && i == d.selected {
			selector = "▸ "
		}

		name := fmt.Sprintf("%s #%d", device.Name, device.Number)
		if i == d.selected && focused {
			name = styles.Highlight.Render(name)
		}

		var media string
		for _, slot := range mounted {
			if slot.Player == device.Number {
				media += " " + styles.Playing.Render(slot.Slot.String())
			}
		}

		seen := styles.Dim.Render(fmt.Sprintf(" %ds", int(now.Sub(device.LastSeen).Seconds())))
		lines = append(lines, fmt.Sprintf("%s%s %s%s%s", selector, styles.DeviceIcon(device.Number), name, media, seen))

		if len(lines) >= maxLines {
			break
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
