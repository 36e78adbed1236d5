package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/BTreeMap/AutoSherpa/internal/classifier"
	"github.com/BTreeMap/AutoSherpa/internal/dialogue"
	"github.com/BTreeMap/AutoSherpa/internal/messaging"
	"github.com/BTreeMap/AutoSherpa/internal/metrics"
	"github.com/BTreeMap/AutoSherpa/internal/models"
	"github.com/BTreeMap/AutoSherpa/internal/session"
	"github.com/BTreeMap/AutoSherpa/internal/store"
	"github.com/BTreeMap/AutoSherpa/internal/testutil"
	"github.com/BTreeMap/AutoSherpa/internal/whatsapp"
)

type unhealthyStore struct {
	*store.InMemoryStore
}

func (unhealthyStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, st store.Store, opts ...Option) (*Server, *whatsapp.MockClient) {
	t.Helper()
	if st == nil {
		st = store.NewInMemoryStore(store.DemoInventory()...)
	}
	mock := whatsapp.NewMockClient()
	router := dialogue.NewRouter(classifier.Rules{}, st, st)
	s, err := NewServer(Deps{
		Channel:  messaging.NewWhatsAppService(mock),
		Sessions: session.NewManager(session.NewMemoryStore(time.Minute)),
		Router:   router,
		Store:    st,
		Metrics:  metrics.NewRecorder(),
	}, opts...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s, mock
}

type chatEnvelope struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Result  chatResult `json:"result"`
}

func postChat(t *testing.T, s *Server, body string) (*httptest.ResponseRecorder, chatEnvelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var env chatEnvelope
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rec, env
}

func TestNewServerRequiresDeps(t *testing.T) {
	if _, err := NewServer(Deps{}); err == nil {
		t.Fatal("expected error for missing deps")
	}
}

func TestNewServerRejectsBadSweepSchedule(t *testing.T) {
	st := store.NewInMemoryStore()
	_, err := NewServer(Deps{
		Channel:  messaging.NewWhatsAppService(whatsapp.NewMockClient()),
		Sessions: session.NewManager(session.NewMemoryStore(time.Minute)),
		Router:   dialogue.NewRouter(classifier.Rules{}, st, st),
		Store:    st,
	}, WithSweepSchedule("every so often"))
	if err == nil {
		t.Fatal("expected invalid schedule error")
	}
}

func TestChatHandlerRunsConversation(t *testing.T) {
	s, mock := newTestServer(t, nil)

	rec, env := postChat(t, s, `{"from":"+91 98765 43210","message":"Hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.Status != "ok" || env.Result.Phone != "919876543210" || env.Result.Reply == nil {
		t.Fatalf("unexpected response %+v", env)
	}
	testutil.AssertReplyOptions(t, env.Result.Reply, dialogue.MainMenuOptions, "greeting")

	_, env = postChat(t, s, `{"from":"919876543210","message":"I want to sell my car"}`)
	if env.Result.Flow != string(models.FlowValuation) || env.Result.Intent != string(models.IntentCarValuation) {
		t.Errorf("expected valuation flow, got %+v", env.Result)
	}

	if n := len(mock.Messages()); n != 0 {
		t.Errorf("/chat should not send through the channel, sent %d", n)
	}
}

func TestChatHandlerReset(t *testing.T) {
	s, _ := newTestServer(t, nil)
	postChat(t, s, `{"from":"919876543210","message":"sell my car"}`)
	_, env := postChat(t, s, `{"from":"919876543210","message":"Hello","reset":true}`)
	if env.Result.Flow != "" {
		t.Errorf("expected a fresh session, got flow %q", env.Result.Flow)
	}
}

func TestChatHandlerDuplicateID(t *testing.T) {
	s, _ := newTestServer(t, nil)
	postChat(t, s, `{"from":"919876543210","message":"Hello","id":"abc"}`)
	_, env := postChat(t, s, `{"from":"919876543210","message":"Hello","id":"abc"}`)
	if !env.Result.Duplicate || env.Result.Reply != nil {
		t.Errorf("expected duplicate without reply, got %+v", env.Result)
	}
}

func TestChatHandlerRejects(t *testing.T) {
	s, _ := newTestServer(t, nil)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing message", `{"from":"919876543210"}`, http.StatusBadRequest},
		{"bad sender", `{"from":"abc","message":"hi"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec, _ := postChat(t, s, tc.body)
		testutil.AssertHTTPStatus(t, tc.want, rec.Code, tc.name)
		testutil.AssertJSONResponse(t, rec, "error")
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("GET /chat: expected 405 with Allow header, got %d", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, testutil.CreateHTTPRequest(t, http.MethodGet, "/health", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rec.Code, "healthy store")
	result, _ := testutil.AssertJSONResponse(t, rec, "ok")["result"].(map[string]any)
	if result["database"] != "ok" || result["sessions"] != nil {
		t.Errorf("unexpected checks %v", result)
	}

	bad, _ := newTestServer(t, unhealthyStore{store.NewInMemoryStore()})
	rec = httptest.NewRecorder()
	bad.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Status != "error" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestRoutesDependOnChannel(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("whatsmeow channel should not expose /webhook, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected /metrics 200, got %d", rec.Code)
	}
}

func TestCloudWebhookRouted(t *testing.T) {
	st := store.NewInMemoryStore()
	cloud, err := messaging.NewCloudAPIService(
		messaging.WithAccessToken("token"),
		messaging.WithPhoneNumberID("12345"),
		messaging.WithVerifyToken("auto"),
	)
	if err != nil {
		t.Fatalf("NewCloudAPIService: %v", err)
	}
	s, err := NewServer(Deps{
		Channel:  cloud,
		Sessions: session.NewManager(session.NewMemoryStore(time.Minute)),
		Router:   dialogue.NewRouter(classifier.Rules{}, st, st),
		Store:    st,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=auto&hub.challenge=7", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "7" {
		t.Errorf("expected challenge echo, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestSweepSessionsCountsExpired(t *testing.T) {
	st := store.NewInMemoryStore()
	mem := session.NewMemoryStore(time.Nanosecond)
	sessions := session.NewManager(mem)
	s, err := NewServer(Deps{
		Channel:  messaging.NewWhatsAppService(whatsapp.NewMockClient()),
		Sessions: sessions,
		Router:   dialogue.NewRouter(classifier.Rules{}, st, st),
		Store:    st,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := sessions.Do(context.Background(), "919876543210", func(*models.Session) error { return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if mem.Len() != 1 {
		t.Fatalf("expected one stored session, got %d", mem.Len())
	}
	time.Sleep(time.Millisecond)
	s.sweepSessions()
	if n := mem.Len(); n != 0 {
		t.Errorf("expected the sweep job to expire the session, %d left", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, _ := newTestServer(t, nil, WithAddr("127.0.0.1:0"), WithShutdownTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
