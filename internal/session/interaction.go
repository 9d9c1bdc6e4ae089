package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/pipeline"
	"github.com/rbright/murmur/internal/playback"
)

// Outcome classifies a finished interaction.
type Outcome string

const (
	OutcomeAnswered    Outcome = "answered"
	OutcomeNoSpeech    Outcome = "no_speech"
	OutcomeFailed      Outcome = "failed"
	OutcomeInterrupted Outcome = "interrupted"
)

// Result summarizes one interaction from press to return to Idle.
type Result struct {
	ID         string
	Provider   string
	Voice      string
	Outcome    Outcome
	StopReason audio.Reason
	Captured   time.Duration
	AudioBytes int
	Transcript string
	Reply      string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	Timings    pipeline.Timings
}

type interaction struct {
	recorder Recorder
	provider pipeline.Provider
	voice    string
	outcome  Outcome
	result   Result
}

type eventKind int

const (
	eventCaptured eventKind = iota + 1
	eventProcessed
	eventAnnounced
)

type event struct {
	kind    eventKind
	id      string
	capture audio.Result
	answer  pipeline.Result
	err     error
}

func (c *Controller) press(source string) error {
	if c.state != fsm.StateIdle {
		c.logger.Debug("press ignored", "state", string(c.state), "source", source)
		return ErrConcurrentSession
	}
	next, err := fsm.Transition(c.state, fsm.EventPress)
	if err != nil {
		return err
	}
	c.state = next

	it := &interaction{
		provider: c.selection.Provider(),
		voice:    c.selection.Voice(),
	}
	it.result = Result{
		ID:        uuid.NewString(),
		Provider:  it.provider.Name,
		Voice:     it.voice,
		StartedAt: time.Now(),
	}
	c.current = it
	c.logger.Info("recording started", "session", it.result.ID, "source", source)

	if c.recorders == nil {
		err := errors.New("no audio recorder configured")
		c.onCaptured(event{kind: eventCaptured, id: it.result.ID, err: err})
		return fmt.Errorf("%w: %w", ErrRecordingNotStarted, err)
	}
	it.recorder = c.recorders()
	if err := it.recorder.Start(c.workCtx); err != nil {
		c.onCaptured(event{kind: eventCaptured, id: it.result.ID, err: err})
		return fmt.Errorf("%w: %w", ErrRecordingNotStarted, err)
	}
	c.indicator.ShowRecording()

	rec, id := it.recorder, it.result.ID
	c.goWork(func() {
		res, err := rec.Wait()
		c.post(event{kind: eventCaptured, id: id, capture: res, err: err})
	})
	return nil
}

func (c *Controller) stopRecording(source string) error {
	if c.state != fsm.StateRecording || c.current == nil {
		return ErrNotRecording
	}
	c.stopRecorder(c.current, source)
	return nil
}

// stopRecorder triggers a manual stop off the controller goroutine; the
// capture worker reports the result.
func (c *Controller) stopRecorder(it *interaction, source string) {
	if it.recorder == nil {
		return
	}
	c.logger.Debug("manual stop requested", "session", it.result.ID, "source", source)
	rec := it.recorder
	c.goWork(func() {
		_, _ = rec.Stop()
	})
}

func (c *Controller) apply(ev event) {
	if c.current == nil || ev.id != c.current.result.ID {
		c.logger.Debug("stale event dropped", "session", ev.id)
		return
	}
	switch ev.kind {
	case eventCaptured:
		c.onCaptured(ev)
	case eventProcessed:
		c.onProcessed(ev)
	case eventAnnounced:
		c.onAnnounced(ev)
	}
}

func (c *Controller) onCaptured(ev event) {
	it := c.current
	if !c.advance(fsm.EventCaptured) {
		return
	}
	c.indicator.ShowProcessing()

	it.result.StopReason = ev.capture.Reason
	it.result.Captured = ev.capture.Duration
	it.result.AudioBytes = len(ev.capture.Audio)

	if c.draining {
		c.finish(OutcomeInterrupted, context.Canceled)
		return
	}
	if ev.err != nil {
		c.logger.Error("capture failed", "session", it.result.ID, "error", ev.err.Error())
		c.fail(ev.err)
		return
	}
	if len(ev.capture.Audio) == 0 || (c.opts.SkipUnvoiced && !ev.capture.Voiced) {
		c.noSpeech()
		return
	}

	c.logger.Debug("recording captured",
		"session", it.result.ID,
		"reason", string(ev.capture.Reason),
		"duration_ms", ev.capture.Duration.Milliseconds(),
		"voiced", ev.capture.Voiced,
	)

	req := pipeline.Request{
		Audio:    ev.capture.Audio,
		Language: c.opts.Language,
		History:  c.history.Messages(),
		Provider: it.provider,
		Voice:    it.voice,
	}
	id := it.result.ID
	c.goWork(func() {
		res, err := c.runPipeline(req)
		c.post(event{kind: eventProcessed, id: id, answer: res, err: err})
	})
}

func (c *Controller) runPipeline(req pipeline.Request) (pipeline.Result, error) {
	if c.responder == nil {
		return pipeline.Result{}, errors.New("no response pipeline configured")
	}
	return c.responder.Run(c.workCtx, req)
}

func (c *Controller) onProcessed(ev event) {
	it := c.current
	it.result.Transcript = ev.answer.Transcript
	it.result.Reply = ev.answer.Reply
	it.result.Timings = ev.answer.Timings

	if c.draining {
		c.finish(OutcomeInterrupted, context.Canceled)
		return
	}
	if ev.err != nil {
		c.logger.Error("pipeline failed", "session", it.result.ID, "error", ev.err.Error())
		c.fail(ev.err)
		return
	}
	if ev.answer.Outcome == pipeline.OutcomeNoSpeech {
		c.noSpeech()
		return
	}

	c.history.Append(ev.answer.Transcript, ev.answer.Reply)
	if !c.advance(fsm.EventAnswered) {
		return
	}
	it.outcome = OutcomeAnswered

	clip := playback.Clip{Data: ev.answer.Speech}
	id := it.result.ID
	c.goWork(func() {
		err := c.play(clip)
		c.post(event{kind: eventAnnounced, id: id, err: err})
	})
}

// fail moves a Processing interaction into Announcing with the apology.
func (c *Controller) fail(cause error) {
	it := c.current
	it.result.Err = cause
	if !c.advance(fsm.EventFailed) {
		return
	}
	it.outcome = OutcomeFailed

	voice, id := it.voice, it.result.ID
	c.goWork(func() {
		c.post(event{kind: eventAnnounced, id: id, err: c.apologize(voice)})
	})
}

func (c *Controller) apologize(voice string) error {
	if c.responder == nil {
		c.indicator.PlayError(c.workCtx)
		return errors.New("no response pipeline configured")
	}
	speech, err := c.responder.Synthesize(c.workCtx, c.opts.Apology, voice, c.opts.Language)
	if err == nil {
		err = c.play(playback.Clip{Data: speech})
	}
	if err != nil {
		c.indicator.PlayError(c.workCtx)
	}
	return err
}

// noSpeech announces an empty interaction with the error cue.
func (c *Controller) noSpeech() {
	it := c.current
	if !c.advance(fsm.EventAnswered) {
		return
	}
	it.outcome = OutcomeNoSpeech
	c.logger.Info("no speech detected", "session", it.result.ID)

	id := it.result.ID
	c.goWork(func() {
		c.indicator.PlayError(c.workCtx)
		c.post(event{kind: eventAnnounced, id: id})
	})
}

func (c *Controller) play(clip playback.Clip) error {
	if c.speaker == nil {
		return errors.New("no speaker configured")
	}
	return c.speaker.Play(c.workCtx, clip)
}

func (c *Controller) onAnnounced(ev event) {
	it := c.current
	if ev.err != nil {
		c.logger.Warn("announcement failed", "session", it.result.ID, "error", ev.err.Error())
	}
	if !c.advance(fsm.EventAnnounced) {
		return
	}
	if it.outcome == OutcomeAnswered {
		c.indicator.ShowComplete()
	}
	c.finish(it.outcome, it.result.Err)
}

// advance applies event to the lifecycle; a rejected transition abandons the
// interaction.
func (c *Controller) advance(e fsm.Event) bool {
	next, err := fsm.Transition(c.state, e)
	if err != nil {
		c.logger.Error("unexpected lifecycle event", "error", err.Error())
		c.finish(OutcomeFailed, err)
		return false
	}
	c.state = next
	return true
}

// finish reports the interaction and returns the controller to Idle.
func (c *Controller) finish(outcome Outcome, err error) {
	it := c.current
	if it == nil {
		return
	}
	c.current = nil
	c.state = fsm.StateIdle

	it.result.Outcome = outcome
	if it.result.Err == nil {
		it.result.Err = err
	}
	it.result.FinishedAt = time.Now()
	if c.opts.OnResult != nil {
		c.opts.OnResult(it.result)
	}
}
