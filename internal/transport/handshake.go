package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/ShayCichocki/hydra/internal/logging"
	"github.com/ShayCichocki/hydra/pkg/models"
)

// Handshake payloads.
const (
	HandshakeRequest = "handshake"
	HandshakeReply   = "ack"
	handshakeNack    = "nack"
)

// Handshaker checks that a device is alive before it is sent work.
type Handshaker interface {
	Handshake(ctx context.Context, device models.Device) error
}

// ZMQHandshaker probes a device's handshake port with a REQ socket.
type ZMQHandshaker struct {
	Timeout time.Duration
}

// Handshake implements Handshaker. Devices without a handshake port pass.
func (h ZMQHandshaker) Handshake(ctx context.Context, device models.Device) error {
	endpoint := device.HandshakeEndpoint()
	if endpoint == "" {
		return nil
	}
	if err := Handshake(ctx, endpoint, h.Timeout); err != nil {
		return fmt.Errorf("device %s: %w", device.ID, err)
	}
	return nil
}

// Handshake sends "handshake" to endpoint and waits up to timeout for "ack".
// A missing or different reply is ErrDeviceUnreachable.
func Handshake(ctx context.Context, endpoint string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sock := zmq4.NewReq(probeCtx)
	defer sock.Close()

	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		if err := sock.Dial(endpoint); err != nil {
			done <- result{err: err}
			return
		}
		if err := sock.Send(zmq4.NewMsgString(HandshakeRequest)); err != nil {
			done <- result{err: err}
			return
		}
		msg, err := sock.Recv()
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{reply: frameText(msg)}
	}()

	select {
	case <-probeCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s: no reply within %s", ErrDeviceUnreachable, endpoint, timeout)
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("%w: %s: %v", ErrDeviceUnreachable, endpoint, r.err)
		}
		if r.reply != HandshakeReply {
			return fmt.Errorf("%w: %s: unexpected reply %q", ErrDeviceUnreachable, endpoint, r.reply)
		}
		return nil
	}
}

// ServeHandshake binds a REP socket on endpoint and answers every "handshake"
// with "ack" until ctx is done. Other requests get "nack".
func ServeHandshake(ctx context.Context, endpoint string, logger *slog.Logger) error {
	logger = logging.Component(logger, "handshake")

	sock := zmq4.NewRep(ctx)
	if err := sock.Listen(endpoint); err != nil {
		_ = sock.Close()
		return fmt.Errorf("bind handshake server on %s: %w", endpoint, err)
	}
	logger.Info("handshake server listening", "endpoint", endpoint)

	stop := context.AfterFunc(ctx, func() { _ = sock.Close() })
	defer func() {
		if stop() {
			_ = sock.Close()
		}
	}()

	for {
		msg, err := sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("handshake recv: %w", err)
		}

		reply := handshakeNack
		if frameText(msg) == HandshakeRequest {
			reply = HandshakeReply
			logger.Debug("handshake received")
		} else {
			logger.Warn("unexpected handshake request", "payload", frameText(msg))
		}

		if err := sock.Send(zmq4.NewMsgString(reply)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("handshake reply: %w", err)
		}
	}
}

func frameText(msg zmq4.Msg) string {
	if len(msg.Frames) == 0 {
		return ""
	}
	return string(msg.Frames[0])
}
