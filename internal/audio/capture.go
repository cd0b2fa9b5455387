// Package audio's capture.go adapts audio/capture.go's malgo device
// handling down to a single capture device: this pipeline distinguishes
// "microphone" from "system" at the asrtypes.Source level, not in the
// capture layer, so multi-device mixing, BlackHole/ScreenCaptureKit/Core
// Audio tap selection are dropped — a caller that wants system audio opens
// a second Capture against that device's id.
package audio

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// SampleRate is the fixed rate the pipeline's models expect. Start opens
// the capture device at this rate, so callbacks already receive 16kHz
// samples.
const SampleRate = 16000

// Device describes one enumerated capture device.
type Device struct {
	ID   malgo.DeviceID
	Name string
}

// Capture streams PCM samples from one input device into a callback,
// grounded on audio/capture.go's malgo.InitContext/InitDevice/Start
// sequence.
type Capture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex
	running bool
}

// NewCapture initializes the malgo context shared by every device this
// process opens.
func NewCapture() (*Capture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Capture{ctx: ctx}, nil
}

// ListDevices enumerates capture-capable devices.
func (c *Capture) ListDevices() ([]Device, error) {
	raw, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}
	devices := make([]Device, len(raw))
	for i, d := range raw {
		devices[i] = Device{ID: d.ID, Name: d.Name()}
	}
	return devices, nil
}

// Start opens deviceID (nil for the system default) at SampleRate mono
// float32 and calls onSamples for every captured frame until Close.
func (c *Capture) Start(deviceID *malgo.DeviceID, onSamples func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("capture already running")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = SampleRate
	deviceConfig.Alsa.NoMMap = 1
	if deviceID != nil {
		deviceConfig.Capture.DeviceID = deviceID.Pointer()
	}

	onRecvFrames := func(_, input []byte, frameCount uint32) {
		n := int(frameCount)
		if len(input) != n*4 {
			return
		}
		samples := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := uint32(input[i*4]) | uint32(input[i*4+1])<<8 | uint32(input[i*4+2])<<16 | uint32(input[i*4+3])<<24
			samples[i] = math.Float32frombits(bits)
		}
		onSamples(samples)
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		return fmt.Errorf("start capture device: %w", err)
	}

	c.device = device
	c.running = true
	log.Println("[audio] capture started")
	return nil
}

// Close stops the device (if running) and releases the malgo context.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.running = false
	if c.ctx == nil {
		return nil
	}
	err := c.ctx.Uninit()
	c.ctx.Free()
	return err
}
