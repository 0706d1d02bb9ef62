package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/EcommerceGo/webclient/pkg/kafka"
	"github.com/utafrali/EcommerceGo/webclient/pkg/logger"
)

const (
	eventTypeUnauthorized = "session.unauthorized"
	aggregateTypeSession  = "session"
	eventSource           = "webclient"
	anonymousSubject      = "anonymous"

	defaultPublishTimeout = 5 * time.Second

	// DefaultDedupWindow is how long repeated signals for one subject are
	// folded into the event already published.
	DefaultDedupWindow = 30 * time.Second
)

// Publisher publishes an event to a topic. Implemented by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// UnauthorizedTopic is the topic session-loss audit events are published to.
var UnauthorizedTopic = kafka.Topic("session", "unauthorized")

type unauthorizedData struct {
	Subject string    `json:"subject,omitempty"`
	At      time.Time `json:"at"`
}

// KafkaNotifier publishes an audit event for every lost session. Requests
// racing to the same 401 publish one event per subject within the dedup
// window. Publishing happens in the background so a slow broker never
// delays the request that fired the signal.
type KafkaNotifier struct {
	publisher Publisher
	topic     string
	timeout   time.Duration
	window    time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu   sync.Mutex
	sent map[string]time.Time

	wg sync.WaitGroup
}

// NewKafkaNotifier creates a notifier publishing to UnauthorizedTopic.
func NewKafkaNotifier(publisher Publisher, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		publisher: publisher,
		topic:     UnauthorizedTopic,
		timeout:   defaultPublishTimeout,
		window:    DefaultDedupWindow,
		now:       time.Now,
		logger:    logger,
		sent:      make(map[string]time.Time),
	}
}

// Notify publishes a session.unauthorized event.
func (n *KafkaNotifier) Notify(ctx context.Context) {
	sub := logger.SubjectFromContext(ctx)
	aggregateID := sub
	if aggregateID == "" {
		aggregateID = anonymousSubject
	}
	if !n.claim(aggregateID) {
		return
	}

	event, err := kafka.NewEvent(eventTypeUnauthorized, aggregateID, aggregateTypeSession, eventSource,
		unauthorizedData{Subject: sub, At: time.Now().UTC()})
	if err != nil {
		n.logger.ErrorContext(ctx, "build session event", slog.String("error", err.Error()))
		n.release(aggregateID)
		return
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()
		if err := n.publisher.Publish(pctx, n.topic, event); err != nil {
			n.release(aggregateID)
			n.logger.WarnContext(pctx, "publish session event failed",
				slog.String("topic", n.topic),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// claim reports whether an event for subject should be published now and
// records it as sent.
func (n *KafkaNotifier) claim(subject string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if at, ok := n.sent[subject]; ok && now.Sub(at) < n.window {
		return false
	}
	for s, at := range n.sent {
		if now.Sub(at) >= n.window {
			delete(n.sent, s)
		}
	}
	n.sent[subject] = now
	return true
}

// release forgets a failed publish so the next signal retries it.
func (n *KafkaNotifier) release(subject string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.sent, subject)
}

// Wait blocks until every in-flight publish has finished.
func (n *KafkaNotifier) Wait() {
	n.wg.Wait()
}
