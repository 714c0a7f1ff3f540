// Package device brings up the collaborators the relay needs before its
// loops start: the flash LED and the network link to the server.
package device

import (
	"sync"
	"time"

	"frame-relay/utils"
)

// Flash drives the camera flash LED. Brightness is a PWM duty in 0..255.
type Flash interface {
	Activate(brightness uint8) error
	Deactivate() error
	Blink(times int, brightness uint8) error
}

// Blink timing used by the board firmware.
const (
	blinkOn  = 750 * time.Millisecond
	blinkOff = 500 * time.Millisecond
)

// HostFlash stands in for the LED on machines without one. It keeps the
// last duty level so callers and tests can inspect it.
type HostFlash struct {
	mu      sync.Mutex
	duty    uint8
	changes int

	onFor  time.Duration
	offFor time.Duration
}

// NewHostFlash returns a flash that starts dark.
func NewHostFlash() *HostFlash {
	return &HostFlash{onFor: blinkOn, offFor: blinkOff}
}

func (f *HostFlash) Activate(brightness uint8) error {
	f.set(brightness)
	utils.L().Debug("flash on (duty=%d)", brightness)
	return nil
}

func (f *HostFlash) Deactivate() error {
	f.set(0)
	utils.L().Debug("flash off")
	return nil
}

// Blink flashes times times, ending dark.
func (f *HostFlash) Blink(times int, brightness uint8) error {
	for i := 0; i < times; i++ {
		if err := f.Activate(brightness); err != nil {
			return err
		}
		time.Sleep(f.onFor)
		if err := f.Deactivate(); err != nil {
			return err
		}
		time.Sleep(f.offFor)
	}
	return nil
}

// Duty is the current duty level.
func (f *HostFlash) Duty() uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duty
}

// Changes counts duty writes since creation.
func (f *HostFlash) Changes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changes
}

func (f *HostFlash) set(d uint8) {
	f.mu.Lock()
	f.duty = d
	f.changes++
	f.mu.Unlock()
}
