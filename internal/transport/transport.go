// Package transport moves tasks from the orchestrator to worker devices over
// ZeroMQ: a REQ/REP liveness handshake and a PUB/SUB text channel where each
// message is a single line of topic, space, payload.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-zeromq/zmq4"
)

// ErrDeviceUnreachable is returned when a device misses its handshake.
var ErrDeviceUnreachable = errors.New("device unreachable")

// Publisher modes.
const (
	// ModeBind has the orchestrator bind its sender port; devices dial in.
	ModeBind = "bind"
	// ModeConnect has the orchestrator dial every device's data port.
	ModeConnect = "connect"
)

// Defaults for socket timing.
const (
	DefaultHandshakeTimeout  = 2 * time.Second
	DefaultPollInterval      = time.Second
	DefaultInactivityTimeout = 10 * time.Second
	DefaultSettleDelay       = 500 * time.Millisecond
)

// MessageSource yields raw wire lines.
type MessageSource interface {
	Recv() (string, error)
	Close() error
}

// MessageSink accepts raw wire lines.
type MessageSink interface {
	Send(line string) error
	Close() error
}

// TCPEndpoint formats a ZeroMQ tcp endpoint. The wildcard host "*" and the
// empty host become 0.0.0.0.
func TCPEndpoint(host string, port int) string {
	if host == "" || host == "*" {
		host = "0.0.0.0"
	}
	return "tcp://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// ParseMode validates a publisher mode name. Empty means ModeBind.
func ParseMode(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", ModeBind:
		return ModeBind, nil
	case ModeConnect:
		return ModeConnect, nil
	default:
		return "", fmt.Errorf("unknown transport mode %q", s)
	}
}

// socket adapts a zmq4 socket to MessageSource and MessageSink.
type socket struct {
	sock zmq4.Socket
}

func (s *socket) Send(line string) error {
	return s.sock.Send(zmq4.NewMsgString(line))
}

// Recv joins multi-frame messages with a space so that publishers sending
// topic and payload as separate frames read the same as single-frame ones.
func (s *socket) Recv() (string, error) {
	msg, err := s.sock.Recv()
	if err != nil {
		return "", err
	}
	parts := make([]string, len(msg.Frames))
	for i, f := range msg.Frames {
		parts[i] = string(f)
	}
	return strings.Join(parts, " "), nil
}

func (s *socket) Close() error {
	return s.sock.Close()
}

// OpenSubscriber opens a SUB socket filtered on topics. In bind mode the
// publisher owns the endpoint so the subscriber dials it; in connect mode the
// subscriber listens on its own data endpoint.
func OpenSubscriber(ctx context.Context, mode, endpoint string, topics []string) (MessageSource, error) {
	sock := zmq4.NewSub(ctx)

	var err error
	if mode == ModeConnect {
		err = sock.Listen(endpoint)
	} else {
		err = sock.Dial(endpoint)
	}
	if err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("open subscriber on %s: %w", endpoint, err)
	}

	for _, topic := range topics {
		if err := sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			_ = sock.Close()
			return nil, fmt.Errorf("subscribe %q: %w", topic, err)
		}
	}
	return &socket{sock: sock}, nil
}

// openPublisher opens a PUB socket bound to bindEndpoint or dialed to every
// entry in peers.
func openPublisher(ctx context.Context, mode, bindEndpoint string, peers []string) (MessageSink, error) {
	sock := zmq4.NewPub(ctx)

	if mode == ModeConnect {
		var dialed int
		var errs []error
		for _, ep := range peers {
			if err := sock.Dial(ep); err != nil {
				errs = append(errs, fmt.Errorf("dial %s: %w", ep, err))
				continue
			}
			dialed++
		}
		if dialed == 0 && len(peers) > 0 {
			_ = sock.Close()
			return nil, errors.Join(errs...)
		}
		return &socket{sock: sock}, nil
	}

	if err := sock.Listen(bindEndpoint); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("bind publisher on %s: %w", bindEndpoint, err)
	}
	return &socket{sock: sock}, nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
