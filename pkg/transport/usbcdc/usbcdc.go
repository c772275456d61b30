// Package usbcdc implements iface.Transport over a USB-CDC bulk
// interface using google/gousb, grounded on the device-open/claim-
// interface/endpoint sequence in guiperry-HASHER's
// internal/driver/device/usb_device.go.
package usbcdc

import (
	"fmt"
	"sync"

	"github.com/google/gousb"

	"github.com/brahimab8/sensorbusd/pkg/protocol"
)

// bestChunk matches a full-speed USB bulk endpoint's max packet size,
// chosen so a full protocol.MaxFrame frame fits one USB-CDC FS write.
const bestChunk = 64

// Device adapts a USB-CDC bulk endpoint pair to iface.Transport.
type Device struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	cfg    *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint

	mu     sync.Mutex
	cb     func([]byte)
	stopCh chan struct{}
	wg     sync.WaitGroup
	ready  bool
}

// Open claims interface 0 alt-setting 0 of the device matching vid/pid
// and starts the background bulk-IN read loop.
func Open(vid, pid uint16) (*Device, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usbcdc: open device %04x:%04x: %w", vid, pid, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("usbcdc: device %04x:%04x not found", vid, pid)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbcdc: set auto detach: %w", err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbcdc: claim config: %w", err)
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbcdc: claim interface: %w", err)
	}
	epOut, err := intf.OutEndpoint(2)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbcdc: out endpoint: %w", err)
	}
	epIn, err := intf.InEndpoint(1)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbcdc: in endpoint: %w", err)
	}

	d := &Device{
		ctx:    ctx,
		dev:    dev,
		cfg:    cfg,
		intf:   intf,
		epOut:  epOut,
		epIn:   epIn,
		stopCh: make(chan struct{}),
		ready:  true,
	}
	d.wg.Add(1)
	go d.readLoop()
	return d, nil
}

func (d *Device) readLoop() {
	defer d.wg.Done()
	buf := make([]byte, protocol.MaxFrame)
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}
		n, err := d.epIn.Read(buf)
		if err != nil {
			continue
		}
		if n == 0 {
			continue
		}
		d.mu.Lock()
		cb := d.cb
		d.mu.Unlock()
		if cb != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			cb(chunk)
		}
	}
}

// TxWrite performs one bulk-OUT write. A failed write is reported as 0
// bytes written (busy) rather than as an error; a short write without an
// error reports the number of bytes the endpoint accepted.
func (d *Device) TxWrite(buf []byte) (int, error) {
	n, err := d.epOut.Write(buf)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// LinkReady reports whether the device was opened successfully and has
// not been closed.
func (d *Device) LinkReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// BestChunk returns the configured bulk endpoint write ceiling.
func (d *Device) BestChunk() uint16 { return bestChunk }

// SetRXCallback registers the function invoked with each chunk read from
// the bulk-IN endpoint.
func (d *Device) SetRXCallback(cb func([]byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cb = cb
}

// Close stops the read loop and releases the interface, config, device,
// and context in reverse acquisition order.
func (d *Device) Close() error {
	d.mu.Lock()
	d.ready = false
	d.mu.Unlock()
	close(d.stopCh)
	d.wg.Wait()

	d.intf.Close()
	d.cfg.Close()
	d.dev.Close()
	return d.ctx.Close()
}
