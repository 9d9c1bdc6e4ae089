package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// ErrUnavailable means nothing is listening on the control socket.
var ErrUnavailable = errors.New("no murmur daemon listening")

// Send performs one request/response exchange bounded by timeout.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	conn, err := dial(ctx, path, timeout)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if err := writeMessage(conn, req); err != nil {
		return Response{}, fmt.Errorf("write request: %w", err)
	}

	var resp Response
	if err := readMessage(bufio.NewReader(conn), "response", &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// dial tags a missing socket file or a refused connection with ErrUnavailable.
func dial(ctx context.Context, path string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	switch {
	case err == nil:
		return conn, nil
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ECONNREFUSED):
		return nil, fmt.Errorf("%w at %s: %w", ErrUnavailable, path, err)
	default:
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
}

// IsUnavailable reports whether err means no daemon is listening.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Probe reports whether a daemon answers a status request on path. Errors
// other than ErrUnavailable mean something holds the socket but did not
// answer in time.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, statusRequest, timeout)
	switch {
	case err == nil:
		return true, nil
	case IsUnavailable(err):
		return false, nil
	default:
		return false, fmt.Errorf("probe socket: %w", err)
	}
}
