package gpio

import (
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// LEDConfig describes one output line.
type LEDConfig struct {
	Line      string
	ActiveLow bool
}

// LED is a settable boolean output port.
type LED struct {
	name      string
	activeLow bool
	logger    *slog.Logger

	mu     sync.Mutex
	pin    Pin
	on     bool
	warned bool
	closed bool
}

// OpenLED configures the named line as an output, initially off. On any failure
// the returned LED is inert.
func OpenLED(logger *slog.Logger, open Opener, cfg LEDConfig) *LED {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &LED{name: cfg.Line, activeLow: cfg.ActiveLow, logger: logger}

	if cfg.Line == "" {
		logger.Debug("led line not configured")
		return l
	}

	pin, err := open(cfg.Line)
	if err != nil {
		logger.Error("led unavailable; output disabled", "line", cfg.Line, "error", err.Error())
		return l
	}
	if err := pin.Out(l.level(false)); err != nil {
		logger.Error("led configure failed; output disabled", "line", cfg.Line, "error", err.Error())
		return l
	}
	l.pin = pin
	return l
}

// Set drives the LED. Writes to an inert or closed LED are ignored.
func (l *LED) Set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.on = on
	if l.pin == nil || l.closed {
		return
	}
	if err := l.pin.Out(l.level(on)); err != nil && !l.warned {
		l.warned = true
		l.logger.Warn("led write failed", "line", l.name, "error", err.Error())
	}
}

// On reports the last requested state.
func (l *LED) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Inert reports whether the LED failed to open.
func (l *LED) Inert() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pin == nil
}

// Close turns the LED off and halts the line.
func (l *LED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.on = false
	if l.pin == nil {
		return nil
	}
	_ = l.pin.Out(l.level(false))
	return l.pin.Halt()
}

func (l *LED) level(on bool) gpio.Level {
	if l.activeLow {
		return gpio.Level(!on)
	}
	return gpio.Level(on)
}
