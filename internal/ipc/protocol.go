package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Control commands understood by the daemon.
const (
	CommandStatus         = "status"
	CommandPress          = "press"
	CommandStop           = "stop"
	CommandSwitchProvider = "switch-provider"
	CommandSwitchVoice    = "switch-voice"
)

// Commands lists every control command in help order.
var Commands = []string{
	CommandStatus,
	CommandPress,
	CommandStop,
	CommandSwitchProvider,
	CommandSwitchVoice,
}

// Known reports whether command is a control command.
func Known(command string) bool {
	for _, c := range Commands {
		if c == command {
			return true
		}
	}
	return false
}

// Request is one control command sent by a CLI invocation.
type Request struct {
	Command string `json:"command"`
}

// Response mirrors the controller status after the command ran.
type Response struct {
	OK       bool   `json:"ok"`
	State    string `json:"state,omitempty"`
	Provider string `json:"provider,omitempty"`
	Voice    string `json:"voice,omitempty"`
	History  int    `json:"history,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

var statusRequest = Request{Command: CommandStatus}

func rejected(format string, args ...any) Response {
	return Response{OK: false, Error: fmt.Sprintf(format, args...)}
}

// Messages travel as one JSON document per line in each direction.
func writeMessage(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(payload, '\n'))
	return err
}

// readMessage accepts a final line without its newline when the peer closed
// right after writing it.
func readMessage(r *bufio.Reader, kind string, v any) error {
	line, err := r.ReadBytes('\n')
	if err != nil && (len(line) == 0 || !errors.Is(err, io.EOF)) {
		return fmt.Errorf("read %s: %w", kind, err)
	}
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}
