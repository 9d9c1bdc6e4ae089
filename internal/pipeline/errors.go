package pipeline

import (
	"errors"
	"fmt"
)

// Stage names one step of the response pipeline.
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageInference     Stage = "inference"
	StageSynthesis     Stage = "synthesis"
)

var (
	ErrTranscription = errors.New("transcription failed")
	ErrInference     = errors.New("inference failed")
	ErrSynthesis     = errors.New("synthesis failed")
)

// StageError is a failure in one stage. Provider is set for inference failures.
type StageError struct {
	Stage    Stage
	Provider string
	Err      error
}

func (e *StageError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Stage, e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches the stage sentinel so callers can test with errors.Is.
func (e *StageError) Is(target error) bool {
	return target == e.Stage.sentinel()
}

func (s Stage) sentinel() error {
	switch s {
	case StageTranscription:
		return ErrTranscription
	case StageInference:
		return ErrInference
	case StageSynthesis:
		return ErrSynthesis
	default:
		return nil
	}
}

// FailedStage extracts the stage and provider from err when it carries a StageError.
func FailedStage(err error) (Stage, string, bool) {
	var se *StageError
	if !errors.As(err, &se) {
		return "", "", false
	}
	return se.Stage, se.Provider, true
}
