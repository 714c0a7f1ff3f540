package device

import (
	"context"
	"errors"
	"fmt"

	"frame-relay/services/ingest"
	"frame-relay/utils"
)

// Devices groups what BringUp initialises.
type Devices struct {
	Camera  ingest.FrameSource
	Flash   Flash
	Network Network
}

// readyDuty is the brightness of the single blink that signals the link is up.
const readyDuty uint8 = 255

// BringUp runs the start-up sequence: camera, flash, network. Once the
// network is joined the flash blinks once, then stays lit when configured.
// The first failure is returned and the caller is expected to exit; the
// loops must not start on a half-initialised device.
func BringUp(ctx context.Context, cfg utils.RelayConfig, d Devices) error {
	utils.L().Info("initialising camera (source=%s)", cfg.Camera.Source)
	if d.Camera == nil {
		return errors.New("camera: no frame source")
	}
	utils.L().Info("camera initialised")

	if d.Flash == nil {
		return errors.New("flash: not configured")
	}
	utils.L().Info("flash initialised")

	if d.Network == nil {
		return errors.New("network: not configured")
	}
	if err := d.Network.Connect(ctx, cfg.Device.WifiSSID, cfg.Device.WifiPSK); err != nil {
		return fmt.Errorf("network: %w", err)
	}

	if err := d.Flash.Blink(1, readyDuty); err != nil {
		return fmt.Errorf("flash: %w", err)
	}
	if cfg.Device.UseFlash {
		if err := d.Flash.Activate(uint8(cfg.Device.FlashBrightness)); err != nil {
			return fmt.Errorf("flash: %w", err)
		}
	}
	return nil
}
