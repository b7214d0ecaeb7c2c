package core

import (
	"net"
	"time"
)

// DeviceAnnouncement describes a device seen on the network.
type DeviceAnnouncement struct {
	Name     string           `json:"name"`
	Number   int              `json:"number"`
	Address  net.IP           `json:"address"`
	MAC      net.HardwareAddr `json:"mac"`
	LastSeen time.Time        `json:"last_seen"`
}

// IsMixer reports whether the device number falls in the range used by mixers.
func (d DeviceAnnouncement) IsMixer() bool {
	return d.Number >= 0x21 && d.Number <= 0x28
}

// IsCollection reports whether the device is a rekordbox or rekordbox-link host.
func (d DeviceAnnouncement) IsCollection() bool {
	return d.Number >= 0x11 && d.Number <= 0x20
}

// DeviceEvent reports a device appearing on or disappearing from the network.
type DeviceEvent struct {
	Device DeviceAnnouncement
	Lost   bool
}
