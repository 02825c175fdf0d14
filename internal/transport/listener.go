package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/ShayCichocki/hydra/internal/logging"
	"github.com/ShayCichocki/hydra/pkg/models"
)

// ListenerConfig controls a receiving loop.
type ListenerConfig struct {
	// Topics accepted by the listener. ZeroMQ filters by prefix, so lines
	// whose topic is not an exact match are dropped here.
	Topics []string
	// PollInterval is how often inactivity is checked.
	PollInterval time.Duration
	// InactivityTimeout ends the loop when no message arrived for this long.
	InactivityTimeout time.Duration
	// OnMessage, when set, sees each accepted message as it arrives.
	OnMessage func(models.WireMessage)
}

// Listener accumulates messages from a source until it goes quiet.
type Listener struct {
	source MessageSource
	cfg    ListenerConfig
	topics map[string]bool
	logger *slog.Logger
}

// NewListener creates a listener reading from source.
func NewListener(source MessageSource, cfg ListenerConfig, logger *slog.Logger) *Listener {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	topics := make(map[string]bool, len(cfg.Topics))
	for _, t := range cfg.Topics {
		topics[t] = true
	}
	return &Listener{
		source: source,
		cfg:    cfg,
		topics: topics,
		logger: logging.Component(logger, "listener"),
	}
}

// Run receives until InactivityTimeout passes without a message or ctx is
// done, and returns exactly the messages accepted so far. The source is
// closed on return. A receive error ends the loop and is returned along with
// the accumulated messages.
func (l *Listener) Run(ctx context.Context) ([]models.WireMessage, error) {
	lines := make(chan string)
	errs := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	defer l.source.Close()

	go func() {
		for {
			line, err := l.source.Recv()
			if err != nil {
				select {
				case errs <- err:
				case <-done:
				}
				return
			}
			select {
			case lines <- line:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	var received []models.WireMessage
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("listener stopped", "received", len(received))
			return received, nil

		case line := <-lines:
			msg, err := models.ParseWireMessage(line)
			if err != nil {
				l.logger.Warn("dropping malformed line", "error", err)
				continue
			}
			if len(l.topics) > 0 && !l.topics[msg.Topic] {
				continue
			}
			last = time.Now()
			received = append(received, msg)
			l.logger.Debug("received", "topic", msg.Topic, "bytes", len(msg.Payload))
			if l.cfg.OnMessage != nil {
				l.cfg.OnMessage(msg)
			}

		case err := <-errs:
			if ctx.Err() != nil {
				return received, nil
			}
			return received, err

		case <-ticker.C:
			if time.Since(last) >= l.cfg.InactivityTimeout {
				l.logger.Info("listener idle; stopping", "received", len(received), "idle", l.cfg.InactivityTimeout)
				return received, nil
			}
		}
	}
}
