package audio

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// DeviceInfo describes one host playback device.
type DeviceInfo struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
}

// enumeratePlayback lists the host's playback devices.
func enumeratePlayback(ctx *malgo.AllocatedContext) ([]DeviceInfo, []malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, DeviceInfo{
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return devices, infos, nil
}

// findPlaybackDevice resolves a device name to the host's identifier.
// An empty name selects the system default (nil id).
func findPlaybackDevice(ctx *malgo.AllocatedContext, name string) (*malgo.DeviceID, error) {
	if name == "" {
		return nil, nil
	}
	_, infos, err := enumeratePlayback(ctx)
	if err != nil {
		return nil, err
	}
	for i := range infos {
		if infos[i].Name() == name {
			id := infos[i].ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("device %q: %w", name, ErrDeviceUnavailable)
}
