package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hydra/pkg/models"
)

// chanSource is a MessageSource fed from a channel.
type chanSource struct {
	lines  chan string
	closed chan struct{}
	once   sync.Once
}

func newChanSource(buffer int) *chanSource {
	return &chanSource{lines: make(chan string, buffer), closed: make(chan struct{})}
}

func (s *chanSource) Recv() (string, error) {
	select {
	case line := <-s.lines:
		return line, nil
	case <-s.closed:
		return "", errors.New("source closed")
	}
}

func (s *chanSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// recordingSink is a MessageSink that keeps every line.
type recordingSink struct {
	mu     sync.Mutex
	lines  []string
	times  []time.Time
	err    error
	closed bool
}

func (s *recordingSink) Send(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.lines = append(s.lines, line)
	s.times = append(s.times, time.Now())
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func fastListener(src MessageSource, topics ...string) *Listener {
	return NewListener(src, ListenerConfig{
		Topics:            topics,
		PollInterval:      10 * time.Millisecond,
		InactivityTimeout: 80 * time.Millisecond,
	}, nil)
}

func TestTCPEndpoint(t *testing.T) {
	assert.Equal(t, "tcp://0.0.0.0:5555", TCPEndpoint("*", 5555))
	assert.Equal(t, "tcp://0.0.0.0:5555", TCPEndpoint("", 5555))
	assert.Equal(t, "tcp://10.0.0.2:5001", TCPEndpoint("10.0.0.2", 5001))
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeBind, mode)

	mode, err = ParseMode("CONNECT")
	require.NoError(t, err)
	assert.Equal(t, ModeConnect, mode)

	_, err = ParseMode("multicast")
	assert.Error(t, err)
}

func TestListener_InactivityReturnsExactlyReceived(t *testing.T) {
	src := newChanSource(4)
	src.lines <- "10.0.0.2 first"
	src.lines <- "default second"

	start := time.Now()
	got, err := fastListener(src, "10.0.0.2", models.DefaultTopic).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.WireMessage{
		{Topic: "10.0.0.2", Payload: "first"},
		{Topic: "default", Payload: "second"},
	}, got)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestListener_NoMessages(t *testing.T) {
	src := newChanSource(0)
	got, err := fastListener(src, "10.0.0.2").Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	select {
	case <-src.closed:
	default:
		t.Error("source should be closed when the listener returns")
	}
}

func TestListener_DropsPrefixCollisionsAndMalformed(t *testing.T) {
	src := newChanSource(4)
	src.lines <- "10.0.0.25 not mine"
	src.lines <- " no topic"
	src.lines <- "10.0.0.2 mine"

	got, err := fastListener(src, "10.0.0.2").Run(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].Payload)
}

func TestListener_ContextCancel(t *testing.T) {
	src := newChanSource(1)
	src.lines <- "default hello"

	ctx, cancel := context.WithCancel(context.Background())
	l := NewListener(src, ListenerConfig{
		Topics:            []string{"default"},
		PollInterval:      10 * time.Millisecond,
		InactivityTimeout: time.Hour,
		OnMessage:         func(models.WireMessage) { cancel() },
	}, nil)

	got, err := l.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestListener_RecvError(t *testing.T) {
	src := newChanSource(0)
	_ = src.Close()

	l := NewListener(src, ListenerConfig{InactivityTimeout: time.Hour}, nil)
	_, err := l.Run(context.Background())
	assert.Error(t, err)
}

func TestPublisher_RepeatsAndSettles(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisherWithSink(sink, PublisherConfig{
		SettleDelay:    20 * time.Millisecond,
		Repeat:         2,
		RepeatInterval: 30 * time.Millisecond,
	}, nil)

	start := time.Now()
	err := p.PublishBatch(context.Background(), []models.WireMessage{
		{Topic: "10.0.0.2", Payload: `{"id":"1"}`},
		{Topic: "10.0.0.3", Payload: `{"id":"2"}`},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		`10.0.0.2 {"id":"1"}`,
		`10.0.0.3 {"id":"2"}`,
		`10.0.0.2 {"id":"1"}`,
		`10.0.0.3 {"id":"2"}`,
	}, sink.lines)
	assert.Equal(t, 4, p.Sent())
	assert.GreaterOrEqual(t, sink.times[0].Sub(start), 20*time.Millisecond)
	assert.GreaterOrEqual(t, sink.times[2].Sub(sink.times[1]), 30*time.Millisecond)

	require.NoError(t, p.Close())
	assert.True(t, sink.closed)
}

func TestPublisher_RejectsInvalidTopic(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisherWithSink(sink, PublisherConfig{}, nil)

	err := p.Publish(context.Background(), models.WireMessage{Topic: "has space", Payload: "x"})
	assert.ErrorIs(t, err, models.ErrInvalidTopic)
	assert.Empty(t, sink.lines)
}

func TestPublisher_SendError(t *testing.T) {
	sink := &recordingSink{err: errors.New("socket closed")}
	p := NewPublisherWithSink(sink, PublisherConfig{}, nil)

	err := p.Publish(context.Background(), models.WireMessage{Topic: "a", Payload: "b"})
	assert.Error(t, err)
}

func TestPublisher_CanceledDuringSettle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPublisherWithSink(&recordingSink{}, PublisherConfig{SettleDelay: time.Second}, nil)
	err := p.Publish(ctx, models.WireMessage{Topic: "a", Payload: "b"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublisherListener_RoundTrip(t *testing.T) {
	src := newChanSource(8)
	sink := sinkFunc(func(line string) error {
		src.lines <- line
		return nil
	})
	p := NewPublisherWithSink(sink, PublisherConfig{}, nil)

	task := models.Task{ID: "1", Description: "fix login bug"}
	payload, err := task.Payload()
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), models.WireMessage{Topic: "10.0.0.2", Payload: payload}))

	got, err := fastListener(src, "10.0.0.2", models.DefaultTopic).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, task.Description, models.ParseTaskPayload(got[0].Payload).Description)
}

type sinkFunc func(string) error

func (f sinkFunc) Send(line string) error { return f(line) }
func (f sinkFunc) Close() error           { return nil }

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestHandshake_RoundTrip(t *testing.T) {
	endpoint := fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t))

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ServeHandshake(ctx, endpoint, nil) }()

	require.NoError(t, Handshake(context.Background(), endpoint, 5*time.Second))
	require.NoError(t, Handshake(context.Background(), endpoint, 5*time.Second), "server answers repeatedly")

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("handshake server did not stop")
	}
}

func TestHandshake_Unreachable(t *testing.T) {
	endpoint := fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t))

	start := time.Now()
	err := Handshake(context.Background(), endpoint, 300*time.Millisecond)
	assert.ErrorIs(t, err, ErrDeviceUnreachable)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestZMQHandshaker_SkipsDevicesWithoutPort(t *testing.T) {
	h := ZMQHandshaker{Timeout: 100 * time.Millisecond}
	err := h.Handshake(context.Background(), models.Device{ID: "w", Address: "10.255.255.1", Port: 5001})
	assert.NoError(t, err)
}
