package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3"

	"github.com/signalshift-data/internal/common/config"
	"github.com/signalshift-data/internal/common/logger"
	"github.com/signalshift-data/internal/common/metrics"
	"github.com/signalshift-data/pkg/incidents/models"
)

var ErrSubscriptionClosed = errors.New("feed subscription closed")

// Session is a live subscription to the incidents topic
type Session interface {
	Messages() <-chan *stomp.Message
	Close() error
}

// DialFunc opens a Session against the broker described by cfg
type DialFunc func(cfg config.FeedConfig) (Session, error)

type Listener struct {
	config  config.FeedConfig
	logger  logger.Logger
	dial    DialFunc
	archive *Archive

	queue chan *Message
	errCh chan error

	mu        sync.RWMutex
	session   Session
	isRunning bool
	stopChan  chan struct{}
	failOnce  sync.Once

	connected     atomic.Bool
	lastProcessed atomic.Int64
}

func NewListener(cfg config.FeedConfig, log logger.Logger) *Listener {
	return NewListenerWithDialer(cfg, log, DialSTOMP)
}

func NewListenerWithDialer(cfg config.FeedConfig, log logger.Logger, dial DialFunc) *Listener {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1000
	}
	return &Listener{
		config:   cfg,
		logger:   log,
		dial:     dial,
		queue:    make(chan *Message, size),
		errCh:    make(chan error, 1),
		stopChan: make(chan struct{}),
	}
}

func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isRunning {
		return fmt.Errorf("listener is already running")
	}

	if l.config.ArchiveDir != "" {
		archive, err := NewArchive(l.config.ArchiveDir)
		if err != nil {
			return err
		}
		l.archive = archive
	}

	session, err := l.connect(ctx)
	if err != nil {
		return err
	}

	l.session = session
	l.isRunning = true
	l.connected.Store(true)
	metrics.FeedConnected.Set(1)

	l.logger.Info("Subscribed to incidents feed",
		"address", l.config.Address(),
		"destination", l.config.Destination(),
		"client_id", l.config.ClientID)

	go l.receive(ctx, session.Messages())

	return nil
}

func (l *Listener) connect(ctx context.Context) (Session, error) {
	retries := l.config.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		session, err := l.dial(l.config)
		if err == nil {
			return session, nil
		}
		lastErr = err

		if attempt == retries {
			break
		}

		wait := l.config.ConnectBackoff << (attempt - 1)
		l.logger.Warn("Feed connection failed, retrying",
			"attempt", attempt,
			"retry_in", wait,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, fmt.Errorf("connecting to feed after %d attempts: %w", retries, lastErr)
}

// Stop unsubscribes and disconnects. Safe to call more than once.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isRunning {
		return
	}

	l.logger.Info("Stopping feed listener")
	l.isRunning = false
	close(l.stopChan)
	l.connected.Store(false)
	metrics.FeedConnected.Set(0)

	if err := l.session.Close(); err != nil {
		l.logger.Warn("Error closing feed session", "error", err)
	}
}

// Pop returns the next queued message without blocking
func (l *Listener) Pop() (*Message, bool) {
	select {
	case msg := <-l.queue:
		metrics.FeedQueueDepth.Set(float64(len(l.queue)))
		return msg, true
	default:
		return nil, false
	}
}

// Err delivers a single error once the subscription is lost
func (l *Listener) Err() <-chan error {
	return l.errCh
}

// Connected reports whether the subscription is live
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

// MarkProcessed records the time the pipeline last took a message
func (l *Listener) MarkProcessed(t time.Time) {
	l.lastProcessed.Store(t.Unix())
	metrics.LastProcessedTimestamp.Set(float64(t.Unix()))
}

// LastProcessed returns the zero time when nothing has been processed yet
func (l *Listener) LastProcessed() time.Time {
	ts := l.lastProcessed.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

func (l *Listener) receive(ctx context.Context, frames <-chan *stomp.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case frame, ok := <-frames:
			if !ok {
				l.fail(ErrSubscriptionClosed)
				return
			}
			if frame.Err != nil {
				metrics.FeedMessagesDropped.WithLabelValues("frame_error").Inc()
				l.fail(fmt.Errorf("feed subscription: %w", frame.Err))
				return
			}
			l.handle(rawFromFrame(frame))
		}
	}
}

func (l *Listener) fail(err error) {
	select {
	case <-l.stopChan:
		// closing the session on Stop ends the subscription too
		return
	default:
	}

	l.failOnce.Do(func() {
		l.connected.Store(false)
		metrics.FeedConnected.Set(0)
		l.logger.Error("Feed connection lost", "error", err)
		l.errCh <- err
	})
}

func (l *Listener) handle(raw models.RawFeedMessage) {
	metrics.FeedMessagesReceived.Inc()

	incident, err := Decode(raw.Body)
	if err != nil {
		reason := "decode"
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			reason = decodeErr.Stage
		}
		metrics.FeedMessagesDropped.WithLabelValues(reason).Inc()
		l.logger.Warn("Dropping malformed feed message",
			"sequence", raw.Sequence,
			"bytes", len(raw.Body),
			"error", err)
		return
	}

	msg := &Message{
		Sequence:    raw.Sequence,
		MessageType: raw.MessageType,
		ReceivedAt:  raw.ReceivedAt,
		Incident:    incident,
	}

	if l.archive != nil {
		if path, err := l.archive.Write(msg); err != nil {
			l.logger.Warn("Failed to archive feed message", "sequence", msg.Sequence, "error", err)
		} else {
			l.logger.Debug("Archived feed message", "path", path)
		}
	}

	select {
	case l.queue <- msg:
		metrics.FeedQueueDepth.Set(float64(len(l.queue)))
	default:
		metrics.FeedMessagesDropped.WithLabelValues("queue_full").Inc()
		l.logger.Warn("Feed queue is full, dropping message",
			"sequence", msg.Sequence,
			"capacity", cap(l.queue))
	}
}

func rawFromFrame(frame *stomp.Message) models.RawFeedMessage {
	raw := models.RawFeedMessage{
		Body:       frame.Body,
		ReceivedAt: time.Now().UTC(),
	}
	if frame.Header != nil {
		for _, key := range []string{"SequenceNumber", "PushPortSequence", "message-id"} {
			if v := frame.Header.Get(key); v != "" {
				raw.Sequence = v
				break
			}
		}
		raw.MessageType = frame.Header.Get("MessageType")
	}
	return raw
}
