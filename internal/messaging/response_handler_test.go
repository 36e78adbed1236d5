package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/BTreeMap/AutoSherpa/internal/models"
	"github.com/BTreeMap/AutoSherpa/internal/session"
	"github.com/BTreeMap/AutoSherpa/internal/store"
	"github.com/BTreeMap/AutoSherpa/internal/whatsapp"
)

type routerFunc func(ctx context.Context, sess *models.Session, message string) *models.Reply

func (f routerFunc) Route(ctx context.Context, sess *models.Session, message string) *models.Reply {
	return f(ctx, sess, message)
}

// echoRouter replies with the message and the number of turns seen so far.
var echoRouter = routerFunc(func(ctx context.Context, sess *models.Session, message string) *models.Reply {
	sess.AppendHistory(models.RoleUser, message, 100)
	sess.LastIntent = models.IntentBrowseCars
	sess.LastEntities = map[string]string{models.SlotBrand: "Hyundai"}
	sess.LastConfidence = 0.9
	return &models.Reply{Message: fmt.Sprintf("%s #%d", message, len(sess.History))}
})

type fakeMetrics struct {
	mu         sync.Mutex
	turns      int
	sends      int
	sendErrors int
	duplicates int
}

func (m *fakeMetrics) ObserveTurn(models.FlowKind, models.Intent, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns++
}

func (m *fakeMetrics) ObserveSend(_ string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends++
	if err != nil {
		m.sendErrors++
	}
}

func (m *fakeMetrics) ObserveDuplicate(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duplicates++
}

type handlerFixture struct {
	client  *whatsapp.MockClient
	svc     *WhatsAppService
	db      *store.InMemoryStore
	metrics *fakeMetrics
	h       *ResponseHandler
}

func newHandlerFixture(router Router, opts ...HandlerOption) *handlerFixture {
	f := &handlerFixture{
		client:  whatsapp.NewMockClient(),
		db:      store.NewInMemoryStore(),
		metrics: &fakeMetrics{},
	}
	f.svc = NewWhatsAppService(f.client)
	base := []HandlerOption{WithMessageLog(f.db), WithDedup(f.db), WithMetrics(f.metrics)}
	f.h = NewResponseHandler(f.svc, session.NewManager(session.NewMemoryStore(time.Minute)), router, append(base, opts...)...)
	return f
}

func TestResponseHandler_HandleSendsAndLogs(t *testing.T) {
	f := newHandlerFixture(echoRouter)
	ctx := context.Background()

	if err := f.h.Handle(ctx, models.InboundMessage{ID: "m1", From: "+91 98765 43210", Body: "hello", Kind: models.MessageKindText}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := f.h.Handle(ctx, models.InboundMessage{ID: "m2", From: "919876543210", Body: "again", Kind: models.MessageKindText}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	sent := f.client.Messages()
	if len(sent) != 2 || sent[0].Body != "hello #1" || sent[1].Body != "again #2" {
		t.Fatalf("expected session to persist across turns, got %+v", sent)
	}

	logs := f.db.MessageLogs()
	if len(logs) != 2 {
		t.Fatalf("expected 2 log rows, got %d", len(logs))
	}
	first := logs[0]
	if first.PhoneNumber != "919876543210" || !first.ResponseSent || first.ResponseContent != "hello #1" {
		t.Errorf("unexpected log row %+v", first)
	}
	if first.Intent != models.IntentBrowseCars || first.Entities[models.SlotBrand] != "Hyundai" || first.SessionID == "" {
		t.Errorf("log row missing classification %+v", first)
	}
	if logs[1].SessionID != first.SessionID {
		t.Error("expected the same session for both turns")
	}
	if f.metrics.turns != 2 || f.metrics.sends != 2 {
		t.Errorf("unexpected metrics %+v", f.metrics)
	}
}

func TestResponseHandler_DropsDuplicates(t *testing.T) {
	f := newHandlerFixture(echoRouter)
	ctx := context.Background()
	msg := models.InboundMessage{ID: "wamid.1", From: "919876543210", Body: "hi"}

	for i := 0; i < 3; i++ {
		if err := f.h.Handle(ctx, msg); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	if n := len(f.client.Messages()); n != 1 {
		t.Errorf("expected one reply, got %d", n)
	}
	if f.metrics.duplicates != 2 {
		t.Errorf("expected 2 duplicates, got %d", f.metrics.duplicates)
	}
}

func TestResponseHandler_NilReplySendsNothing(t *testing.T) {
	f := newHandlerFixture(routerFunc(func(context.Context, *models.Session, string) *models.Reply { return nil }))
	if err := f.h.Handle(context.Background(), models.InboundMessage{From: "919876543210", Body: "bye"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if n := len(f.client.Messages()); n != 0 {
		t.Errorf("expected no messages, got %d", n)
	}
	logs := f.db.MessageLogs()
	if len(logs) != 1 || logs[0].ResponseSent {
		t.Errorf("expected an unsent log row, got %+v", logs)
	}
}

func TestResponseHandler_SendFailure(t *testing.T) {
	f := newHandlerFixture(echoRouter)
	f.client.Err = errors.New("offline")
	if err := f.h.Handle(context.Background(), models.InboundMessage{From: "919876543210", Body: "hi"}); err == nil {
		t.Fatal("expected send error")
	}
	if f.metrics.sendErrors != 1 {
		t.Errorf("expected a send error metric, got %+v", f.metrics)
	}
	if logs := f.db.MessageLogs(); len(logs) != 1 || logs[0].ResponseSent {
		t.Errorf("expected unsent log row, got %+v", logs)
	}
}

// brokenSessions fails every Load, as an unreachable Redis would.
type brokenSessions struct{ err error }

func (b brokenSessions) Load(context.Context, string) (*models.Session, error) { return nil, b.err }
func (b brokenSessions) Save(context.Context, *models.Session) error { return nil }
func (b brokenSessions) Delete(context.Context, string) error { return nil }
func (b brokenSessions) Close() error { return nil }

func TestResponseHandler_SessionFailureAllowsRedelivery(t *testing.T) {
	f := newHandlerFixture(echoRouter)
	f.h.sessions = session.NewManager(brokenSessions{err: errors.New("redis down")})
	ctx := context.Background()
	msg := models.InboundMessage{ID: "wamid.R", From: "919876543210", Body: "hi"}

	if err := f.h.Handle(ctx, msg); err == nil {
		t.Fatal("expected an error when the session cannot be loaded")
	}
	if dup, _ := f.db.IsDuplicate(ctx, "wamid.R"); dup {
		t.Fatal("a message that never ran must not be kept as seen")
	}

	f.h.sessions = session.NewManager(session.NewMemoryStore(time.Minute))
	if err := f.h.Handle(ctx, msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if f.metrics.duplicates != 0 {
		t.Errorf("redelivery was dropped as a duplicate")
	}
	sent := f.client.Messages()
	if len(sent) != 2 || sent[1].Body != "hi #1" {
		t.Errorf("expected an apology then the real reply, got %+v", sent)
	}
}

func TestResponseHandler_InvalidSender(t *testing.T) {
	f := newHandlerFixture(echoRouter)
	if _, err := f.h.Respond(context.Background(), models.InboundMessage{From: "abc", Body: "hi"}); err == nil {
		t.Fatal("expected error for invalid sender")
	}
}

func TestResponseHandler_RespondDoesNotSend(t *testing.T) {
	f := newHandlerFixture(echoRouter)
	turn, err := f.h.Respond(context.Background(), models.InboundMessage{From: "919876543210", Body: "hello"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if turn.Reply == nil || turn.Reply.Message != "hello #1" || turn.Intent != models.IntentBrowseCars {
		t.Errorf("unexpected turn %+v", turn)
	}
	if n := len(f.client.Messages()); n != 0 {
		t.Errorf("Respond should not send, got %d messages", n)
	}
	if n := len(f.db.MessageLogs()); n != 1 {
		t.Errorf("expected one log row, got %d", n)
	}
}

func TestResponseHandler_RunKeepsPerPhoneOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	var (
		mu   sync.Mutex
		seen = map[string][]string{}
	)
	router := routerFunc(func(ctx context.Context, sess *models.Session, message string) *models.Reply {
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen[sess.Phone] = append(seen[sess.Phone], message)
		mu.Unlock()
		return &models.Reply{Message: "ok"}
	})
	f := newHandlerFixture(router, WithWorkers(4))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.h.Run(ctx) }()

	phones := []string{"919800000001", "919800000002", "919800000003"}
	const perPhone = 10
	for i := 0; i < perPhone; i++ {
		for _, p := range phones {
			f.svc.Deliver(models.InboundMessage{ID: fmt.Sprintf("%s-%d", p, i), From: p, Body: fmt.Sprintf("m%d", i)})
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(f.client.Messages()) < perPhone*len(phones) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out with %d replies", len(f.client.Messages()))
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	_ = f.svc.Stop()

	mu.Lock()
	defer mu.Unlock()
	for _, p := range phones {
		got := seen[p]
		if len(got) != perPhone {
			t.Fatalf("%s: expected %d messages, got %d", p, perPhone, len(got))
		}
		for i, body := range got {
			if body != fmt.Sprintf("m%d", i) {
				t.Errorf("%s: message %d out of order: %v", p, i, got)
				break
			}
		}
	}
}

func TestResponseHandler_RunStopsWhenChannelCloses(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newHandlerFixture(echoRouter, WithWorkers(2))
	done := make(chan error, 1)
	go func() { done <- f.h.Run(context.Background()) }()
	_ = f.svc.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
}

func TestShardForIsStable(t *testing.T) {
	if shardFor("+91 98765 43210", 8) != shardFor("919876543210", 8) {
		t.Error("formatting should not change the shard")
	}
	for i := 0; i < 50; i++ {
		if s := shardFor(fmt.Sprintf("9198%08d", i), 5); s < 0 || s >= 5 {
			t.Fatalf("shard %d out of range", s)
		}
	}
}
