package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/AutoSherpa/internal/models"
	"github.com/BTreeMap/AutoSherpa/internal/twiliowhatsapp"
)

func postForm(h http.HandlerFunc, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestTwilioService_Canonicalize(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	got, err := svc.ValidateAndCanonicalizeRecipient("whatsapp:+919876543210")
	if err != nil || got != "919876543210" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestTwilioService_SendReplyWithMedia(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	reply := models.Reply{
		Message:  "Here it is",
		Messages: []models.Attachment{{Type: models.AttachmentImage, URL: "https://example.com/a.jpg", Caption: "Tata Nexon"}},
	}
	if err := svc.SendReply(context.Background(), "919876543210", reply); err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	sent := mock.Messages()
	if len(sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sent))
	}
	if sent[0].MediaURL != "https://example.com/a.jpg" || sent[0].Body != "Tata Nexon" {
		t.Errorf("unexpected media message %+v", sent[0])
	}
	if sent[1].Body != "Here it is" {
		t.Errorf("unexpected text %q", sent[1].Body)
	}
}

func TestTwilioWebhookHandler(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := svc.SendReply(context.Background(), "919876543210", models.Reply{Message: "Pick", Options: []string{"Call Us", "Visit Showroom"}}); err != nil {
		t.Fatalf("SendReply: %v", err)
	}

	rec := postForm(svc.TwilioWebhookHandler, url.Values{"From": {"whatsapp:+919876543210"}, "Body": {"1"}, "MessageSid": {"SM1"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	msg := <-svc.Responses()
	if msg.From != "919876543210" || msg.Body != "Call Us" || msg.ID != "SM1" {
		t.Errorf("unexpected inbound message %+v", msg)
	}
}

func TestTwilioWebhookHandlerRejects(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	if rec := postForm(svc.TwilioWebhookHandler, url.Values{"From": {"whatsapp:+919876543210"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing body: expected 400, got %d", rec.Code)
	}
	if rec := postForm(svc.TwilioWebhookHandler, url.Values{"From": {"abc"}, "Body": {"hi"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid sender: expected 400, got %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/twilio/webhook", nil)
	rec := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: expected 405, got %d", rec.Code)
	}
}
