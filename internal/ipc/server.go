package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	requestReadTimeout   = 2 * time.Second
	responseWriteTimeout = 2 * time.Second
)

// Handler answers one control request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers one request per connection until ctx is cancelled or the
// listener is closed. Connections already accepted are answered before Serve
// returns.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}
		inflight.Go(func() { serveConn(ctx, conn, handler) })
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()

	resp := answer(ctx, conn, handler)
	_ = conn.SetWriteDeadline(time.Now().Add(responseWriteTimeout))
	_ = writeMessage(conn, resp)
}

// answer never passes unknown commands to handler.
func answer(ctx context.Context, conn net.Conn, handler Handler) Response {
	_ = conn.SetReadDeadline(time.Now().Add(requestReadTimeout))

	var req Request
	if err := readMessage(bufio.NewReader(conn), "request", &req); err != nil {
		return rejected("%v", err)
	}
	if !Known(req.Command) {
		return rejected("unknown command: %s", req.Command)
	}
	return handler.Handle(ctx, req)
}
