package tcp

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"

	"github.com/nilsocket/tuntcp/internal"
)

// InterfaceConfig configures a [NewInterface] call.
type InterfaceConfig struct {
	// Name is the TUN device name to create or attach to, e.g. "tun0".
	Name string
	// Addr is the local address (and prefix length) to assign the device.
	// The zero Prefix leaves the device unconfigured.
	Addr netip.Prefix
	// Log receives trace/debug/error output from the Manager and every
	// Conn it owns. Nil disables logging.
	Log *slog.Logger
}

// Interface is the single entry point a caller needs: it opens a TUN
// device, starts the Manager's ingest and periodic-tick goroutines, and
// tears both down on Close. Bind ports on the returned Interface to obtain
// Listeners.
type Interface struct {
	dev    *internal.Tun
	mgr    *Manager
	cancel context.CancelFunc
	done   chan error
}

// NewInterface opens the TUN device described by cfg and starts serving it.
func NewInterface(cfg InterfaceConfig) (*Interface, error) {
	dev, err := internal.NewTun(cfg.Name, cfg.Addr)
	if err != nil {
		return nil, err
	}
	mgr, err := NewManager(dev, cfg.Log)
	if err != nil {
		dev.Close()
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	iface := &Interface{dev: dev, mgr: mgr, cancel: cancel, done: make(chan error, 1)}
	go func() { iface.done <- mgr.Run(ctx) }()
	return iface, nil
}

// Bind marks port as listening and returns a Listener for it. See
// [Manager.Bind].
func (i *Interface) Bind(port uint16) (*Listener, error) { return i.mgr.Bind(port) }

// Close stops the ingest and tick goroutines, wakes every blocked Accept,
// Read and Flush so they observe termination, and closes the TUN device.
func (i *Interface) Close() error {
	i.cancel()
	runErr := <-i.done
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	closeErr := i.dev.Close()
	return errors.Join(runErr, closeErr)
}
