// Package session coordinates the interaction lifecycle: one recording at a
// time, piped through the response pipeline and announced back to the user.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/gpio"
	"github.com/rbright/murmur/internal/pipeline"
	"github.com/rbright/murmur/internal/playback"
)

const (
	defaultShutdownGrace = 3 * time.Second
	cancelWait           = 500 * time.Millisecond
	eventBuffer          = 16
)

var (
	// ErrConcurrentSession rejects a press while an interaction is in flight.
	ErrConcurrentSession = errors.New("interaction already in progress")
	// ErrBusy rejects a selection change outside Idle.
	ErrBusy = errors.New("controller busy")
	// ErrRecordingNotStarted reports a press whose recorder failed to start.
	// The apology path has already run when it is returned.
	ErrRecordingNotStarted = errors.New("recording did not start")
	// ErrNotRecording rejects a manual stop outside Recording.
	ErrNotRecording = errors.New("not recording")
	// ErrClosed is returned once the controller has begun shutting down.
	ErrClosed = errors.New("controller closed")
)

// Recorder is one capture session.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (audio.Result, error)
	Wait() (audio.Result, error)
}

// RecorderFactory returns a fresh recorder for each interaction.
type RecorderFactory func() Recorder

// Responder runs the response pipeline.
type Responder interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
	Synthesize(ctx context.Context, text string, voice string, language string) ([]byte, error)
}

// Speaker plays synthesized replies.
type Speaker interface {
	Play(ctx context.Context, clip playback.Clip) error
}

// Indicator is the controller-facing subset of indicator behavior.
type Indicator interface {
	PowerOn()
	ShowRecording()
	ShowProcessing()
	ShowComplete()
	PlayError(ctx context.Context)
	PowerOff()
}

type noopIndicator struct{}

func (noopIndicator) PowerOn()                  {}
func (noopIndicator) ShowRecording()            {}
func (noopIndicator) ShowProcessing()           {}
func (noopIndicator) ShowComplete()             {}
func (noopIndicator) PlayError(context.Context) {}
func (noopIndicator) PowerOff()                 {}

// Inputs are the debounced button streams. Nil channels are never selected.
type Inputs struct {
	Record   <-chan gpio.Press
	Stop     <-chan gpio.Press
	Provider <-chan gpio.Press
	Voice    <-chan gpio.Press
}

// Deps are the collaborators a controller drives.
type Deps struct {
	Recorders RecorderFactory
	Responder Responder
	Speaker   Speaker
	Indicator Indicator
	// Scratch is closed during shutdown after in-flight work has settled.
	Scratch io.Closer
	// Closers are released last, after the indicator powers off.
	Closers []io.Closer
	Logger  *slog.Logger
}

// Options configure conversation behavior.
type Options struct {
	Providers     []pipeline.Provider
	Voices        []string
	Language      string
	HistoryLimit  int
	Apology       string
	ShutdownGrace time.Duration
	// SkipUnvoiced treats a recording that never crossed the silence
	// threshold as no speech without calling the pipeline.
	SkipUnvoiced bool
	// OnResult is called from the controller goroutine after each interaction.
	OnResult func(Result)
}

// Status is a point-in-time controller snapshot.
type Status struct {
	State     fsm.State
	Provider  string
	Voice     string
	History   int
	SessionID string
}

type command int

const (
	commandStatus command = iota + 1
	commandPress
	commandStop
	commandSwitchProvider
	commandSwitchVoice
)

type request struct {
	command command
	reply   chan reply
}

type reply struct {
	status Status
	err    error
}

// Controller is the single owner of interaction state, conversation history,
// and provider selection. All mutation happens on the Run goroutine.
type Controller struct {
	logger    *slog.Logger
	recorders RecorderFactory
	responder Responder
	speaker   Speaker
	indicator Indicator
	scratch   io.Closer
	closers   []io.Closer
	inputs    Inputs
	opts      Options

	requests chan request
	events   chan event
	stopping chan struct{}
	finished chan struct{}
	runOnce  sync.Once

	// owned by the Run goroutine
	state      fsm.State
	history    *History
	selection  Selection
	current    *interaction
	draining   bool
	workers    sync.WaitGroup
	workCtx    context.Context
	cancelWork context.CancelFunc
}

// NewController constructs a controller with safe default fallbacks.
func NewController(deps Deps, inputs Inputs, opts Options) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ind := deps.Indicator
	if ind == nil {
		ind = noopIndicator{}
	}
	if opts.Apology == "" {
		opts.Apology = config.DefaultApology
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaultShutdownGrace
	}

	return &Controller{
		logger:    logger,
		recorders: deps.Recorders,
		responder: deps.Responder,
		speaker:   deps.Speaker,
		indicator: ind,
		scratch:   deps.Scratch,
		closers:   deps.Closers,
		inputs:    inputs,
		opts:      opts,
		requests:  make(chan request),
		events:    make(chan event, eventBuffer),
		stopping:  make(chan struct{}),
		finished:  make(chan struct{}),
		state:     fsm.StateIdle,
		history:   NewHistory(opts.HistoryLimit),
		selection: NewSelection(opts.Providers, opts.Voices),
	}
}

// Run owns the controller until ctx is cancelled, then performs the bounded
// shutdown sequence. Run may only be called once.
func (c *Controller) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("controller already running")
	}

	c.workCtx, c.cancelWork = context.WithCancel(context.Background())
	c.indicator.PowerOn()
	c.logger.Info("controller ready",
		"provider", c.selection.Provider().Name,
		"voice", c.selection.Voice(),
	)
	defer c.shutdown()

	record, stop, provider, voice := c.inputs.Record, c.inputs.Stop, c.inputs.Provider, c.inputs.Voice
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-c.requests:
			status, err := c.handle(req.command, "ipc")
			req.reply <- reply{status: status, err: err}
		case ev := <-c.events:
			c.apply(ev)
		case _, ok := <-record:
			if !ok {
				record = nil
				continue
			}
			_, _ = c.handle(commandPress, "button")
		case _, ok := <-stop:
			if !ok {
				stop = nil
				continue
			}
			_, _ = c.handle(commandStop, "button")
		case _, ok := <-provider:
			if !ok {
				provider = nil
				continue
			}
			_, _ = c.handle(commandSwitchProvider, "button")
		case _, ok := <-voice:
			if !ok {
				voice = nil
				continue
			}
			_, _ = c.handle(commandSwitchVoice, "button")
		}
	}
}

// Done is closed once shutdown has completed.
func (c *Controller) Done() <-chan struct{} {
	return c.finished
}

// Press starts an interaction when Idle.
func (c *Controller) Press(ctx context.Context) (Status, error) {
	return c.call(ctx, commandPress)
}

// StopRecording manually ends the active recording.
func (c *Controller) StopRecording(ctx context.Context) (Status, error) {
	return c.call(ctx, commandStop)
}

// SwitchProvider advances to the next inference provider and clears history.
func (c *Controller) SwitchProvider(ctx context.Context) (Status, error) {
	return c.call(ctx, commandSwitchProvider)
}

// SwitchVoice advances to the next synthesis voice.
func (c *Controller) SwitchVoice(ctx context.Context) (Status, error) {
	return c.call(ctx, commandSwitchVoice)
}

// Status returns a snapshot served by the controller goroutine.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	return c.call(ctx, commandStatus)
}

func (c *Controller) call(ctx context.Context, cmd command) (Status, error) {
	ch := make(chan reply, 1)
	select {
	case c.requests <- request{command: cmd, reply: ch}:
	case <-c.stopping:
		return Status{}, ErrClosed
	case <-c.finished:
		return Status{}, ErrClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	r := <-ch
	return r.status, r.err
}

func (c *Controller) handle(cmd command, source string) (Status, error) {
	var err error
	switch cmd {
	case commandStatus:
	case commandPress:
		err = c.press(source)
	case commandStop:
		err = c.stopRecording(source)
	case commandSwitchProvider:
		err = c.switchProvider(source)
	case commandSwitchVoice:
		err = c.switchVoice(source)
	}
	return c.snapshot(), err
}

func (c *Controller) snapshot() Status {
	status := Status{
		State:    c.state,
		Provider: c.selection.Provider().Name,
		Voice:    c.selection.Voice(),
		History:  c.history.Len(),
	}
	if c.current != nil {
		status.SessionID = c.current.result.ID
	}
	return status
}

func (c *Controller) switchProvider(source string) error {
	if c.state != fsm.StateIdle {
		c.logger.Debug("provider switch rejected", "state", string(c.state), "source", source)
		return ErrBusy
	}
	c.history.Clear()
	next := c.selection.NextProvider()
	c.logger.Info("provider switched", "provider", next.Name, "source", source)
	return nil
}

func (c *Controller) switchVoice(source string) error {
	if c.state != fsm.StateIdle {
		c.logger.Debug("voice switch rejected", "state", string(c.state), "source", source)
		return ErrBusy
	}
	next := c.selection.NextVoice()
	c.logger.Info("voice switched", "voice", next, "source", source)
	return nil
}

// goWork runs fn as a tracked worker.
func (c *Controller) goWork(fn func()) {
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		fn()
	}()
}

// post hands a worker result back to the controller goroutine.
func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.finished:
	}
}

func (c *Controller) shutdown() {
	close(c.stopping)
	c.draining = true
	c.logger.Info("controller stopping", "state", string(c.state))

	if c.current != nil && c.state == fsm.StateRecording {
		c.stopRecorder(c.current, "shutdown")
	}
	if !c.drain(c.opts.ShutdownGrace) {
		c.logger.Warn("in-flight work exceeded shutdown grace; cancelling", "grace", c.opts.ShutdownGrace.String())
	}
	c.cancelWork()
	if !c.drain(cancelWait) {
		c.logger.Warn("workers still running after cancellation")
	}
	if c.current != nil {
		c.finish(OutcomeInterrupted, context.Canceled)
	}

	if c.scratch != nil {
		if err := c.scratch.Close(); err != nil {
			c.logger.Warn("scratch cleanup failed", "error", err.Error())
		}
	}
	c.indicator.PowerOff()
	for _, closer := range c.closers {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil {
			c.logger.Debug("port close failed", "error", err.Error())
		}
	}
	close(c.finished)
	c.logger.Info("controller stopped")
}

// drain applies worker events until every worker has exited or limit passes.
func (c *Controller) drain(limit time.Duration) bool {
	idle := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(idle)
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()
	for {
		select {
		case ev := <-c.events:
			c.apply(ev)
		case <-idle:
			for {
				select {
				case ev := <-c.events:
					c.apply(ev)
				default:
					return true
				}
			}
		case <-timer.C:
			return false
		}
	}
}
