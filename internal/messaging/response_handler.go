package messaging

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/AutoSherpa/internal/models"
	"github.com/BTreeMap/AutoSherpa/internal/session"
	"github.com/BTreeMap/AutoSherpa/internal/store"
)

// Handler defaults.
const (
	DefaultWorkers     = 8
	DefaultQueueSize   = 64
	DefaultTurnTimeout = 30 * time.Second

	// apologyMessage is sent when a turn cannot be processed at all.
	apologyMessage = "Sorry, something went wrong on our side. Please try again in a moment."
)

// Router computes the reply to one message for a session.
type Router interface {
	Route(ctx context.Context, sess *models.Session, message string) *models.Reply
}

// Metrics observes inbound processing. A nil Metrics is valid.
type Metrics interface {
	ObserveTurn(flow models.FlowKind, intent models.Intent, d time.Duration)
	ObserveSend(channel string, err error)
	ObserveDuplicate(channel string)
}

// HandlerOpts configures a ResponseHandler.
type HandlerOpts struct {
	Workers     int
	QueueSize   int
	TurnTimeout time.Duration
	Logs        store.MessageLogRepo
	Dedup       store.DedupRepo
	Metrics     Metrics
}

// HandlerOption configures a ResponseHandler.
type HandlerOption func(*HandlerOpts)

// WithWorkers sets the number of shard workers.
func WithWorkers(n int) HandlerOption {
	return func(o *HandlerOpts) { o.Workers = n }
}

// WithQueueSize sets the per-shard queue length.
func WithQueueSize(n int) HandlerOption {
	return func(o *HandlerOpts) { o.QueueSize = n }
}

// WithTurnTimeout bounds the processing of one message.
func WithTurnTimeout(d time.Duration) HandlerOption {
	return func(o *HandlerOpts) { o.TurnTimeout = d }
}

// WithMessageLog records every turn.
func WithMessageLog(logs store.MessageLogRepo) HandlerOption {
	return func(o *HandlerOpts) { o.Logs = logs }
}

// WithDedup drops redelivered messages by ID.
func WithDedup(dedup store.DedupRepo) HandlerOption {
	return func(o *HandlerOpts) { o.Dedup = dedup }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) HandlerOption {
	return func(o *HandlerOpts) { o.Metrics = m }
}

// ResponseHandler routes inbound messages through the dialogue engine and
// sends the replies. Messages from one phone are handled in arrival order by
// a single shard worker; different phones are handled in parallel.
type ResponseHandler struct {
	svc      Service
	sessions *session.Manager
	router   Router
	opts     HandlerOpts
}

// Turn is the outcome of one processed message.
type Turn struct {
	Phone      string
	Reply      *models.Reply
	SessionID  string
	Flow       models.FlowKind
	Intent     models.Intent
	Entities   map[string]string
	Confidence float64
	Duplicate  bool
}

// NewResponseHandler creates a ResponseHandler.
func NewResponseHandler(svc Service, sessions *session.Manager, router Router, opts ...HandlerOption) *ResponseHandler {
	h := &ResponseHandler{svc: svc, sessions: sessions, router: router}
	for _, opt := range opts {
		opt(&h.opts)
	}
	if h.opts.Workers <= 0 {
		h.opts.Workers = DefaultWorkers
	}
	if h.opts.QueueSize <= 0 {
		h.opts.QueueSize = DefaultQueueSize
	}
	if h.opts.TurnTimeout <= 0 {
		h.opts.TurnTimeout = DefaultTurnTimeout
	}
	return h
}

// Process runs one message through de-duplication, the session and the
// router. It neither sends nor logs.
func (h *ResponseHandler) Process(ctx context.Context, msg models.InboundMessage) (Turn, error) {
	phone, err := CanonicalizePhone(msg.From)
	if err != nil {
		return Turn{}, fmt.Errorf("invalid sender: %w", err)
	}
	turn := Turn{Phone: phone}

	if msg.ID != "" && h.opts.Dedup != nil {
		inserted, err := h.opts.Dedup.RecordInbound(ctx, msg.ID, phone)
		if err != nil {
			slog.Warn("ResponseHandler.Process: dedup check failed, processing anyway", "id", msg.ID, "error", err)
		} else if !inserted {
			slog.Info("ResponseHandler.Process: duplicate message dropped", "id", msg.ID, "from", phone)
			turn.Duplicate = true
			return turn, nil
		}
	}

	start := time.Now()
	routed := false
	err = h.sessions.Do(ctx, phone, func(sess *models.Session) error {
		turn.Reply = h.router.Route(ctx, sess, msg.Body)
		turn.SessionID = sess.ID
		turn.Flow = sess.Step.Flow()
		turn.Intent = sess.LastIntent
		turn.Entities = sess.LastEntities
		turn.Confidence = sess.LastConfidence
		routed = true
		return nil
	})
	if err != nil {
		if !routed {
			h.forget(ctx, msg.ID)
			return turn, fmt.Errorf("process message from %s: %w", phone, err)
		}
		slog.Error("ResponseHandler.Process: session not saved", "from", phone, "error", err)
	}
	if h.opts.Metrics != nil {
		h.opts.Metrics.ObserveTurn(turn.Flow, turn.Intent, time.Since(start))
	}
	if msg.ID != "" && h.opts.Dedup != nil {
		if err := h.opts.Dedup.MarkProcessed(ctx, msg.ID); err != nil {
			slog.Warn("ResponseHandler.Process: mark processed failed", "id", msg.ID, "error", err)
		}
	}
	return turn, nil
}

// forget releases the dedup record of a message that was never routed so the
// provider's redelivery is processed.
func (h *ResponseHandler) forget(ctx context.Context, id string) {
	if id == "" || h.opts.Dedup == nil {
		return
	}
	if err := h.opts.Dedup.ForgetInbound(context.WithoutCancel(ctx), id); err != nil {
		slog.Warn("ResponseHandler.Process: forget inbound failed", "id", id, "error", err)
	}
}

// Respond processes a message and logs the turn without sending anything.
// The caller delivers the reply itself.
func (h *ResponseHandler) Respond(ctx context.Context, msg models.InboundMessage) (Turn, error) {
	turn, err := h.Process(ctx, msg)
	if err != nil || turn.Duplicate {
		return turn, err
	}
	h.record(ctx, msg, turn, turn.Reply != nil)
	return turn, nil
}

// Handle processes a message and sends the reply through the service.
func (h *ResponseHandler) Handle(ctx context.Context, msg models.InboundMessage) error {
	ctx, cancel := context.WithTimeout(ctx, h.opts.TurnTimeout)
	defer cancel()

	turn, err := h.Process(ctx, msg)
	if err != nil {
		slog.Error("ResponseHandler.Handle: processing failed", "from", msg.From, "error", err)
		if turn.Phone != "" {
			if sendErr := h.svc.SendReply(ctx, turn.Phone, models.Reply{Message: apologyMessage}); sendErr != nil {
				slog.Error("ResponseHandler.Handle: apology failed", "from", turn.Phone, "error", sendErr)
			}
		}
		return err
	}
	if turn.Duplicate {
		if h.opts.Metrics != nil {
			h.opts.Metrics.ObserveDuplicate(h.svc.Name())
		}
		return nil
	}

	sent := false
	if turn.Reply != nil {
		err = h.svc.SendReply(ctx, turn.Phone, *turn.Reply)
		if h.opts.Metrics != nil {
			h.opts.Metrics.ObserveSend(h.svc.Name(), err)
		}
		if err != nil {
			slog.Error("ResponseHandler.Handle: send failed", "to", turn.Phone, "error", err)
		} else {
			sent = true
		}
	}
	h.record(ctx, msg, turn, sent)
	return err
}

func (h *ResponseHandler) record(ctx context.Context, msg models.InboundMessage, turn Turn, sent bool) {
	if h.opts.Logs == nil {
		return
	}
	entry := models.MessageLog{
		PhoneNumber:    turn.Phone,
		MessageType:    msg.Kind,
		MessageContent: msg.Body,
		ResponseSent:   sent,
		SessionID:      turn.SessionID,
		Intent:         turn.Intent,
		Entities:       turn.Entities,
		Confidence:     turn.Confidence,
		CreatedAt:      time.Now(),
	}
	if entry.MessageType == "" {
		entry.MessageType = models.MessageKindText
	}
	if turn.Reply != nil {
		entry.ResponseContent = turn.Reply.Message
	}
	if err := h.opts.Logs.LogMessage(ctx, entry); err != nil {
		slog.Warn("ResponseHandler: message log failed", "from", turn.Phone, "error", err)
	}
}

// Run consumes the service's responses until ctx is done or the channel is
// closed, then drains the shard queues.
func (h *ResponseHandler) Run(ctx context.Context) error {
	slog.Info("ResponseHandler starting response processing", "channel", h.svc.Name(), "workers", h.opts.Workers)
	work := context.WithoutCancel(ctx)

	shards := make([]chan models.InboundMessage, h.opts.Workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan models.InboundMessage, h.opts.QueueSize)
		wg.Add(1)
		go func(queue <-chan models.InboundMessage) {
			defer wg.Done()
			for msg := range queue {
				if err := h.Handle(work, msg); err != nil && !errors.Is(err, context.Canceled) {
					slog.Debug("ResponseHandler worker: turn failed", "from", msg.From, "error", err)
				}
			}
		}(shards[i])
	}
	defer func() {
		for _, queue := range shards {
			close(queue)
		}
		wg.Wait()
		slog.Info("ResponseHandler stopped response processing")
	}()

	responses := h.svc.Responses()
	for {
		select {
		case msg, ok := <-responses:
			if !ok {
				slog.Debug("ResponseHandler responses channel closed")
				return nil
			}
			queue := shards[shardFor(msg.From, len(shards))]
			select {
			case queue <- msg:
			case <-ctx.Done():
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// shardFor maps a sender to a worker so one phone always lands on the same queue.
func shardFor(from string, n int) int {
	key := from
	if phone, err := CanonicalizePhone(from); err == nil {
		key = phone
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
