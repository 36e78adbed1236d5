package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/AutoSherpa/internal/models"
	"github.com/BTreeMap/AutoSherpa/internal/whatsapp"
)

func TestCanonicalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+91 98765-43210", "919876543210", false},
		{"919876543210", "919876543210", false},
		{"", "", true},
		{"abc", "", true},
		{"+123", "", true},
	}
	for _, tc := range cases {
		got, err := CanonicalizePhone(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("CanonicalizePhone(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("CanonicalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderTextNumbersOptions(t *testing.T) {
	got := RenderText(models.Reply{Message: "What would you like to do?", Options: []string{"Browse Used Cars", "Get Car Valuation"}})
	want := "What would you like to do?\n\n1. Browse Used Cars\n2. Get Car Valuation\n\nReply with a number or type your answer."
	if got != want {
		t.Errorf("RenderText mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestRenderTextBulletsNumberedLabels(t *testing.T) {
	got := RenderText(models.Reply{Message: "Cars:", Options: []string{"1. Hyundai Creta 2021", "Browse More"}})
	if !strings.Contains(got, "• 1. Hyundai Creta 2021") || strings.Contains(got, "Reply with a number") {
		t.Errorf("expected bulleted options, got %q", got)
	}
}

func TestOptionMemoryResolve(t *testing.T) {
	m := newOptionMemory()
	m.remember("919876543210", []string{"Yes", "No"})

	if got := m.resolve("919876543210", " 2 "); got != "No" {
		t.Errorf("expected No, got %q", got)
	}
	if got := m.resolve("919876543210", "3"); got != "3" {
		t.Errorf("out of range should pass through, got %q", got)
	}
	if got := m.resolve("910000000000", "1"); got != "1" {
		t.Errorf("unknown phone should pass through, got %q", got)
	}

	m.remember("919876543210", []string{"1. Hyundai Creta", "Browse More"})
	if got := m.resolve("919876543210", "1"); got != "1" {
		t.Errorf("numbered labels should not be remembered, got %q", got)
	}
}

func TestWhatsAppService_SendReply(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	reply := models.Reply{
		Message:  "Great choice!",
		Options:  []string{"Book Test Drive", "Change criteria"},
		Messages: []models.Attachment{{Type: models.AttachmentImage, URL: "https://example.com/creta.jpg", Caption: "Hyundai Creta"}},
	}
	if err := svc.SendReply(context.Background(), "+91 98765 43210", reply); err != nil {
		t.Fatalf("SendReply returned error: %v", err)
	}
	sent := mockClient.Messages()
	if len(sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sent))
	}
	if sent[0].To != "919876543210" || sent[0].Body != "Hyundai Creta\nhttps://example.com/creta.jpg" {
		t.Errorf("unexpected attachment message %+v", sent[0])
	}
	if !strings.Contains(sent[1].Body, "1. Book Test Drive") {
		t.Errorf("unexpected text message %q", sent[1].Body)
	}
}

func TestWhatsAppService_SendReplyError(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	mockClient.Err = errors.New("offline")
	svc := NewWhatsAppService(mockClient)
	if err := svc.SendReply(context.Background(), "919876543210", models.Reply{Message: "hi"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestWhatsAppService_DeliverResolvesNumbers(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	ctx := context.Background()
	if err := svc.SendReply(ctx, "919876543210", models.Reply{Message: "Pick one", Options: []string{"Call Us", "Visit Showroom"}}); err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	if !svc.Deliver(models.InboundMessage{ID: "w1", From: "919876543210", Body: "2", Kind: models.MessageKindText}) {
		t.Fatal("Deliver returned false")
	}
	msg := <-svc.Responses()
	if msg.Body != "Visit Showroom" || msg.Kind != models.MessageKindInteractive {
		t.Errorf("expected resolved label, got %+v", msg)
	}
}

func TestWhatsAppService_StartStop(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	if _, ok := <-svc.Responses(); ok {
		t.Error("expected responses channel closed")
	}
	if err := svc.SendReply(context.Background(), "919876543210", models.Reply{Message: "hi"}); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
	if svc.Deliver(models.InboundMessage{From: "919876543210", Body: "hi"}) {
		t.Error("Deliver after Stop should drop the message")
	}
}
