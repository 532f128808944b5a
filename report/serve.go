package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

// DefaultAddr is where Serve listens when no address is given.
const DefaultAddr = "127.0.0.1:8701"

// Listener wraps net.Listener to be resilient, recoverable errors are handled
// gracefully instead of killing the server. A closed listener still surfaces
// net.ErrClosed so the server can shut down.
type Listener struct {
	net.Listener
}

func NewListener(listenerToWrap net.Listener) *Listener {
	return &Listener{Listener: listenerToWrap}
}

// Accept will gracefully handle recoverable errors and continue without
// crashing the server, backing off so a persistent fault does not spin.
func (l *Listener) Accept() (net.Conn, error) {
	delay := 5 * time.Millisecond
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			// If the listener was closed, this is a fatal error. Propagate it.
			if errors.Is(err, net.ErrClosed) {
				return nil, err
			}

			log.Printf("Recoverable listener error, connection rejected: %v", err)
			time.Sleep(delay)
			if delay < time.Second {
				delay *= 2
			}
			continue
		}
		return conn, nil
	}
}

// Serve exposes the report directory, including the figure files written next
// to it, on addr until the context is canceled. An empty addr falls back to
// DefaultAddr.
func Serve(ctx context.Context, addr string, dir string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	inner, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s : %w", addr, err)
	}

	server := &http.Server{Handler: http.FileServer(http.Dir(dir))}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(NewListener(inner)); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving report : %w", err)
	}

	return nil
}
