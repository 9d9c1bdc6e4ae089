package session

import (
	"context"
	"fmt"

	"github.com/rbright/murmur/internal/ipc"
)

// Handle serves control-socket commands through the controller goroutine.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	var (
		status  Status
		err     error
		message string
	)
	switch req.Command {
	case ipc.CommandStatus:
		status, err = c.Status(ctx)
		message = "status"
	case ipc.CommandPress:
		status, err = c.Press(ctx)
		message = "recording started"
	case ipc.CommandStop:
		status, err = c.StopRecording(ctx)
		message = "stop requested"
	case ipc.CommandSwitchProvider:
		status, err = c.SwitchProvider(ctx)
		message = "provider switched"
	case ipc.CommandSwitchVoice:
		status, err = c.SwitchVoice(ctx)
		message = "voice switched"
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}

	resp := ipc.Response{
		OK:       err == nil,
		State:    string(status.State),
		Provider: status.Provider,
		Voice:    status.Voice,
		History:  status.History,
	}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Message = message
	return resp
}
