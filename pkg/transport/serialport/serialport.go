// Package serialport implements iface.Transport over a UART using
// go.bug.st/serial: open the port, spawn a read goroutine that feeds
// bytes to the registered RX callback, and expose a blocking write.
package serialport

import (
	"fmt"
	"sync"

	"go.bug.st/serial"

	"github.com/brahimab8/sensorbusd/pkg/protocol"
)

// bestChunk mirrors PS_TRANSPORT_MAX_WRITE_SIZE from the original
// firmware's ps_config.h: a per-write ceiling equal to protocol.MaxFrame,
// so one full frame fits a single write.
const bestChunk = 64

// Port adapts a UART device to iface.Transport. Reads happen on a
// dedicated goroutine started by Open; each chunk read is handed to the
// registered RX callback, mirroring usock.readLoop's pattern of reading
// off the wire and handing bytes to a callback.
type Port struct {
	port serial.Port

	mu      sync.Mutex
	cb      func([]byte)
	stopCh  chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// Open opens device at baud and starts the background read loop.
func Open(device string, baud int) (*Port, error) {
	mode := &serial.Mode{BaudRate: baud}
	sp, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", device, err)
	}
	p := &Port{port: sp, stopCh: make(chan struct{})}
	p.wg.Add(1)
	go p.readLoop()
	return p, nil
}

func (p *Port) readLoop() {
	defer p.wg.Done()
	buf := make([]byte, protocol.MaxFrame)
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		n, err := p.port.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		p.mu.Lock()
		cb := p.cb
		p.mu.Unlock()
		if cb != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			cb(chunk)
		}
	}
}

// TxWrite performs one blocking write of the whole buffer. UART writes
// over go.bug.st/serial don't report partial short writes under normal
// operation, so a non-nil error is treated as "0 written, busy"; a
// successful write always reports the full length.
func (p *Port) TxWrite(buf []byte) (int, error) {
	n, err := p.port.Write(buf)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// LinkReady reports whether the port is open.
func (p *Port) LinkReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// BestChunk returns the configured maximum safe single-write size.
func (p *Port) BestChunk() uint16 { return bestChunk }

// SetRXCallback registers the function invoked with each chunk of bytes
// read from the port.
func (p *Port) SetRXCallback(cb func([]byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb = cb
}

// Close stops the read loop and closes the underlying port.
func (p *Port) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	close(p.stopCh)
	err := p.port.Close()
	p.wg.Wait()
	return err
}
