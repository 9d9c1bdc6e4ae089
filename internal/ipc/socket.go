package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning means another daemon owns the socket.
var ErrAlreadyRunning = errors.New("murmur daemon already running")

const socketName = "murmur.sock"

// RuntimeSocketPath returns the control socket location under XDG_RUNTIME_DIR.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, socketName), nil
}

// AcquireOptions controls how Acquire treats a socket file that is already there.
type AcquireOptions struct {
	ProbeTimeout time.Duration
	Retries      int
	Logger       *slog.Logger
}

// Acquire listens on path so that at most one daemon runs per runtime dir.
// A socket nobody answers on is treated as left over from a crashed daemon
// and replaced.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		listener, err := listen(path)
		if err == nil {
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, err
		}

		if err := reclaim(ctx, path, opts.ProbeTimeout); err != nil {
			return nil, err
		}
		logger.Warn("removed stale control socket", "path", path, "attempt", attempt+1)

		if attempt == opts.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		}
	}

	return nil, fmt.Errorf("acquire control socket %s: still in use after %d retries", path, opts.Retries)
}

func listen(path string) (net.Listener, error) {
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen unix %s: %w", path, err)
	}
	_ = os.Chmod(path, 0o600)
	return listener, nil
}

// reclaim removes path only when a probe proves nobody answers on it.
func reclaim(ctx context.Context, path string, timeout time.Duration) error {
	alive, err := Probe(ctx, path, timeout)
	switch {
	case alive:
		return ErrAlreadyRunning
	case err != nil:
		return fmt.Errorf("probe existing socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}
