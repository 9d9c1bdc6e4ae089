// Package indicator mirrors controller state on the LEDs and with audio cues.
package indicator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/playback"
)

const defaultCueTimeout = 3 * time.Second

// Light is one boolean output line.
type Light interface {
	Set(on bool)
	Close() error
}

// Player renders cue clips.
type Player interface {
	Play(ctx context.Context, clip playback.Clip) error
}

// Controller is the session-facing indicator contract.
type Controller interface {
	PowerOn()
	ShowRecording()
	ShowProcessing()
	ShowComplete()
	ShowError()
	// PlayError plays the error cue and waits for it to finish.
	PlayError(ctx context.Context)
	PowerOff()
}

// Panel drives the active and status LEDs plus cue tones.
type Panel struct {
	active Light
	status Light
	player Player
	logger *slog.Logger

	sound      bool
	cues       cueSet
	cueTimeout time.Duration

	mu      sync.Mutex
	off     bool
	pending sync.WaitGroup
}

// NewPanel builds a panel from config. Missing override cue files fall back to
// the synthesized tones.
func NewPanel(cfg config.IndicatorConfig, active Light, status Light, player Player, logger *slog.Logger) *Panel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cues, problems := loadCues(cfg)
	for _, err := range problems {
		logger.Warn("cue override ignored", "error", err.Error())
	}

	timeout := time.Duration(cfg.CueTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultCueTimeout
	}

	return &Panel{
		active:     active,
		status:     status,
		player:     player,
		logger:     logger,
		sound:      cfg.SoundEnable && player != nil,
		cues:       cues,
		cueTimeout: timeout,
	}
}

// PowerOn lights the status LED for the lifetime of the controller.
func (p *Panel) PowerOn() {
	p.set(p.status, true)
	p.set(p.active, false)
}

// ShowRecording lights the active LED and plays the start cue.
func (p *Panel) ShowRecording() {
	p.set(p.active, true)
	p.playAsync(cueStart)
}

// ShowProcessing clears the active LED and plays the stop cue.
func (p *Panel) ShowProcessing() {
	p.set(p.active, false)
	p.playAsync(cueStop)
}

// ShowComplete plays the completion cue.
func (p *Panel) ShowComplete() {
	p.set(p.active, false)
	p.playAsync(cueComplete)
}

// ShowError plays the error cue without waiting.
func (p *Panel) ShowError() {
	p.set(p.active, false)
	p.playAsync(cueError)
}

// PlayError plays the error cue synchronously.
func (p *Panel) PlayError(ctx context.Context) {
	p.set(p.active, false)
	p.play(ctx, cueError)
}

// PowerOff waits for queued cues, then turns the active LED off and the status
// LED off last. Later calls are no-ops.
func (p *Panel) PowerOff() {
	p.mu.Lock()
	if p.off {
		p.mu.Unlock()
		return
	}
	p.off = true
	p.mu.Unlock()

	p.pending.Wait()
	p.set(p.active, false)
	p.set(p.status, false)
	p.close(p.active)
	p.close(p.status)
}

func (p *Panel) set(light Light, on bool) {
	if light == nil {
		return
	}
	p.mu.Lock()
	off := p.off
	p.mu.Unlock()
	// once powered off only PowerOff itself may drive the lines
	if off && on {
		return
	}
	light.Set(on)
}

func (p *Panel) close(light Light) {
	if light == nil {
		return
	}
	if err := light.Close(); err != nil {
		p.logger.Debug("indicator line close failed", "error", err.Error())
	}
}

// playAsync queues a cue so LED updates never wait on audio.
func (p *Panel) playAsync(kind cueKind) {
	if !p.sound {
		return
	}
	p.mu.Lock()
	if p.off {
		p.mu.Unlock()
		return
	}
	p.pending.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.pending.Done()
		p.play(context.Background(), kind)
	}()
}

func (p *Panel) play(ctx context.Context, kind cueKind) {
	if !p.sound {
		return
	}
	clip, ok := p.cues[kind]
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.cueTimeout)
	defer cancel()
	if err := p.player.Play(ctx, clip); err != nil {
		p.logger.Debug("indicator audio cue failed", "cue", kind.String(), "error", err.Error())
	}
}
