package gpio

import (
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

const edgePollInterval = 100 * time.Millisecond

// Press is one accepted button edge.
type Press struct {
	Line string
	At   time.Time
}

// ButtonConfig describes one input line.
type ButtonConfig struct {
	Line      string
	ActiveLow bool
	Debounce  time.Duration
}

// Button is a debounced input port.
type Button struct {
	name   string
	logger *slog.Logger
	pin    Pin
	deb    *Debouncer
	now    func() time.Time
	events chan Press

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// OpenButton configures the named line as an edge-triggered input. On any
// failure the returned button is inert.
func OpenButton(logger *slog.Logger, open Opener, cfg ButtonConfig) *Button {
	return openButton(logger, open, cfg, time.Now)
}

func openButton(logger *slog.Logger, open Opener, cfg ButtonConfig, now func() time.Time) *Button {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Button{
		name:   cfg.Line,
		logger: logger,
		deb:    NewDebouncer(cfg.Debounce),
		now:    now,
		done:   make(chan struct{}),
	}

	if cfg.Line == "" {
		logger.Debug("button line not configured")
		return b
	}

	pin, err := open(cfg.Line)
	if err != nil {
		logger.Error("button unavailable; input disabled", "line", cfg.Line, "error", err.Error())
		return b
	}

	pull, edge := gpio.PullDown, gpio.RisingEdge
	if cfg.ActiveLow {
		pull, edge = gpio.PullUp, gpio.FallingEdge
	}
	if err := pin.In(pull, edge); err != nil {
		logger.Error("button configure failed; input disabled", "line", cfg.Line, "error", err.Error())
		return b
	}

	b.pin = pin
	b.events = make(chan Press, 1)
	b.wg.Add(1)
	go b.watch()
	return b
}

// Events returns the press stream. An inert button returns a nil channel,
// which never fires.
func (b *Button) Events() <-chan Press {
	return b.events
}

// Inert reports whether the button failed to open.
func (b *Button) Inert() bool {
	return b.pin == nil
}

// Name returns the configured line name.
func (b *Button) Name() string {
	return b.name
}

// Close stops edge tracking and halts the line.
func (b *Button) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
		if b.pin != nil {
			err = b.pin.Halt()
		}
	})
	return err
}

func (b *Button) watch() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		default:
		}

		if !b.pin.WaitForEdge(edgePollInterval) {
			continue
		}
		b.handleEdge(b.now())
	}
}

func (b *Button) handleEdge(at time.Time) {
	if !b.deb.Accept(at) {
		return
	}
	select {
	case b.events <- Press{Line: b.name, At: at}:
	default:
		// consumer still holds the previous press
		b.logger.Debug("button press dropped", "line", b.name)
	}
}
