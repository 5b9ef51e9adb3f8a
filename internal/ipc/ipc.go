// Package ipc carries control commands over a unix socket: one JSON request
// and one JSON reply per connection.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"time"

	"rivoo/internal/control"
)

const SocketPath = "/tmp/rivoo.sock"

type Handler func(context.Context, control.Message) control.Reply

// StartServer listens on path and answers each connection in its own
// goroutine until ctx is done or the returned listener is closed.
func StartServer(ctx context.Context, path string, handler Handler) (net.Listener, error) {
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Warn("Failed to accept control connection", "err", err)
				continue
			}
			go handleConn(ctx, conn, handler)
		}
	}()

	log.Info("Control socket ready", "path", path)
	return ln, nil
}

func handleConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()

	var msg control.Message
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Warn("Bad control message", "err", err)
		return
	}

	reply := handler(ctx, msg)
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Warn("Failed to write control reply", "cmd", msg.Cmd, "err", err)
	}
}

// SendCommand delivers one command and waits for its reply. timeout <= 0
// waits indefinitely.
func SendCommand(path, cmd, arg string, timeout time.Duration) (control.Reply, error) {
	var reply control.Reply

	conn, err := net.Dial("unix", path)
	if err != nil {
		return reply, err
	}
	defer conn.Close()

	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	if err := json.NewEncoder(conn).Encode(control.Message{Cmd: cmd, Arg: arg}); err != nil {
		return reply, fmt.Errorf("send: %w", err)
	}
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return reply, fmt.Errorf("read reply: %w", err)
	}

	return reply, nil
}
