// Package serial provides a serial transport for the frame capture bridge:
// it reads length-prefixed IEEE 802.15.4 PSDUs from a USB radio dongle and
// dispatches each decoded frame to a handler.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"

	"github.com/gowpan/dot15d4/frame"
)

// DefaultBaudRate is the default baud rate for the bridge's serial link.
const DefaultBaudRate = 115200

const readBufSize = 512

// FrameHandler is called for each decoded frame read from the serial port.
type FrameHandler func(fr frame.Frame, raw []byte)

// Config holds the configuration for a serial transport.
type Config struct {
	// Port is the serial port path (e.g. "/dev/ttyUSB0" or "COM3").
	Port string
	// BaudRate is the serial baud rate. Defaults to 115200.
	BaudRate int
	// Logger falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Transport reads length-prefixed 802.15.4 PSDUs from a serial port: each
// frame on the wire is [1-octet length][length octets of PSDU, FCS included].
type Transport struct {
	cfg  Config
	port serial.Port
	log  *slog.Logger

	mu        sync.RWMutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
	handler   FrameHandler
}

// New creates a serial transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transport{cfg: cfg, log: cfg.Logger.With("component", "transport.serial")}
}

// SetFrameHandler sets the callback invoked for each decoded frame.
func (t *Transport) SetFrameHandler(fn FrameHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
}

// Start opens the serial port and begins reading frames.
func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.Port == "" {
		return errors.New("transport/serial: port is required")
	}

	port, err := serial.Open(t.cfg.Port, &serial.Mode{BaudRate: t.cfg.BaudRate})
	if err != nil {
		return fmt.Errorf("transport/serial: open: %w", err)
	}

	t.mu.Lock()
	t.port = port
	t.connected = true
	t.done = make(chan struct{})
	t.mu.Unlock()

	readCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	go t.readLoop(readCtx)

	t.log.Info("connected", "port", t.cfg.Port, "baud", t.cfg.BaudRate)
	return nil
}

// Stop closes the serial port and waits for the read loop to exit.
func (t *Transport) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}

	t.mu.Lock()
	t.connected = false
	port := t.port
	t.port = nil
	done := t.done
	t.mu.Unlock()

	var err error
	if port != nil {
		err = port.Close()
	}
	if done != nil {
		<-done
	}
	return err
}

// IsConnected reports whether the serial port is open.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.done)

	buf := make([]byte, readBufSize)
	var assembly []byte

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				t.handleDisconnect(err)
				return
			}
			t.log.Error("read error", "error", err)
			t.handleDisconnect(err)
			return
		}
		if n == 0 {
			continue
		}

		assembly = append(assembly, buf[:n]...)
		assembly = t.processFrames(assembly)
	}
}

// processFrames extracts complete length-prefixed PSDUs from data, decodes
// each with the frame codec, and dispatches it. It returns any remaining
// bytes that do not yet form a complete frame.
func (t *Transport) processFrames(data []byte) []byte {
	for len(data) >= 1 {
		n := int(data[0])
		if len(data) < 1+n {
			return data
		}
		raw := data[1 : 1+n]
		data = data[1+n:]

		fr, err := frame.Parse(raw)
		if err != nil {
			t.log.Debug("failed to parse frame", "error", err)
			continue
		}

		t.mu.RLock()
		handler := t.handler
		t.mu.RUnlock()
		if handler != nil {
			handler(fr, raw)
		}
	}
	return data
}

func (t *Transport) handleDisconnect(err error) {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	if err != nil {
		t.log.Error("disconnected", "error", err)
	}
}
