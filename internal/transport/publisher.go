package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ShayCichocki/hydra/internal/logging"
	"github.com/ShayCichocki/hydra/pkg/models"
)

// PublisherConfig controls how messages are put on the wire.
type PublisherConfig struct {
	// Mode is ModeBind or ModeConnect.
	Mode string
	// BindEndpoint is the sender endpoint used in bind mode.
	BindEndpoint string
	// Peers are the device data endpoints dialed in connect mode.
	Peers []string
	// SettleDelay is waited once before the first send so subscribers can
	// finish joining.
	SettleDelay time.Duration
	// Repeat is how many bursts each message is sent in. Zero means one.
	Repeat int
	// RepeatInterval separates bursts.
	RepeatInterval time.Duration
}

// Publisher sends wire messages over a single long-lived sink.
type Publisher struct {
	mu      sync.Mutex
	sink    MessageSink
	cfg     PublisherConfig
	settled bool
	sent    int
	logger  *slog.Logger
}

// NewPublisher opens a ZeroMQ PUB socket according to cfg.
func NewPublisher(ctx context.Context, cfg PublisherConfig, logger *slog.Logger) (*Publisher, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if mode == ModeBind && cfg.BindEndpoint == "" {
		return nil, fmt.Errorf("bind mode requires a sender endpoint")
	}

	sink, err := openPublisher(ctx, mode, cfg.BindEndpoint, cfg.Peers)
	if err != nil {
		return nil, err
	}

	p := NewPublisherWithSink(sink, cfg, logger)
	p.logger.Info("publisher open", "mode", mode, "endpoint", cfg.BindEndpoint, "peers", len(cfg.Peers))
	return p, nil
}

// NewPublisherWithSink wraps an existing sink.
func NewPublisherWithSink(sink MessageSink, cfg PublisherConfig, logger *slog.Logger) *Publisher {
	if cfg.Repeat <= 0 {
		cfg.Repeat = 1
	}
	return &Publisher{
		sink:   sink,
		cfg:    cfg,
		logger: logging.Component(logger, "publisher"),
	}
}

// Publish sends msg Repeat times, waiting RepeatInterval between bursts.
func (p *Publisher) Publish(ctx context.Context, msg models.WireMessage) error {
	return p.PublishBatch(ctx, []models.WireMessage{msg})
}

// PublishBatch sends every message once per burst. Order within a burst
// follows msgs, so per-topic order is preserved.
func (p *Publisher) PublishBatch(ctx context.Context, msgs []models.WireMessage) error {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		if err := m.Validate(); err != nil {
			return err
		}
		lines[i] = m.Encode()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.settled {
		if err := sleepCtx(ctx, p.cfg.SettleDelay); err != nil {
			return err
		}
		p.settled = true
	}

	for burst := 0; burst < p.cfg.Repeat; burst++ {
		if burst > 0 {
			if err := sleepCtx(ctx, p.cfg.RepeatInterval); err != nil {
				return err
			}
		}
		for i, line := range lines {
			if err := p.sink.Send(line); err != nil {
				return fmt.Errorf("publish to %s: %w", msgs[i].Topic, err)
			}
			p.sent++
			p.logger.Debug("sent", "topic", msgs[i].Topic, "burst", burst+1, "bytes", len(line))
		}
	}
	return nil
}

// Sent returns the number of lines written to the sink.
func (p *Publisher) Sent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// Close closes the underlying socket.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink.Close()
}
