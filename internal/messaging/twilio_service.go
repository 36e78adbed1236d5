package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/AutoSherpa/internal/models"
	"github.com/BTreeMap/AutoSherpa/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using the Twilio API.
// Inbound messages arrive through TwilioWebhookHandler.
type TwilioService struct {
	client  twiliowhatsapp.Sender
	inbox   *inbox
	options *optionMemory
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a new TwilioService.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:  client,
		inbox:   newInbox("TwilioService"),
		options: newOptionMemory(),
	}
}

// Name implements Service.
func (s *TwilioService) Name() string { return "twilio" }

// ValidateAndCanonicalizeRecipient accepts "whatsapp:+91..." as well as bare numbers.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(strings.TrimPrefix(recipient, "whatsapp:"))
}

// Start is a no-op for Twilio; inbound traffic is pushed by the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop implements Service.
func (s *TwilioService) Stop() error {
	s.inbox.stop()
	slog.Info("TwilioService stopped")
	return nil
}

// Responses implements Service.
func (s *TwilioService) Responses() <-chan models.InboundMessage {
	return s.inbox.responses
}

// SendReply sends attachments as media messages, then the rendered text.
func (s *TwilioService) SendReply(ctx context.Context, to string, reply models.Reply) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	recipient, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendReply: invalid recipient", "error", err, "to", to)
		return err
	}
	for _, a := range reply.Messages {
		if err := s.client.SendMedia(ctx, recipient, a.Caption, a.URL); err != nil {
			slog.Error("TwilioService.SendReply: attachment failed", "to", recipient, "error", err)
		}
	}
	text := RenderText(reply)
	if text == "" {
		return nil
	}
	if err := s.client.SendMessage(ctx, recipient, text); err != nil {
		return fmt.Errorf("twilio send failed: %w", err)
	}
	s.options.remember(recipient, reply.Options)
	return nil
}

// TwilioWebhookHandler handles inbound Twilio webhook requests and emits
// them on Responses.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService webhook form parse failed", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := strings.TrimSpace(r.FormValue("Body"))
	if from == "" || body == "" {
		slog.Warn("TwilioService webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	phone, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}

	msg := models.InboundMessage{
		ID:   r.FormValue("MessageSid"),
		From: phone,
		Body: body,
		Kind: models.MessageKindText,
		Time: time.Now().Unix(),
	}
	if resolved := s.options.resolve(phone, body); resolved != body {
		msg.Body = resolved
		msg.Kind = models.MessageKindInteractive
	}
	slog.Info("TwilioService inbound message", "from", phone, "sid", msg.ID)
	s.inbox.emit(msg)

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "<Response></Response>")
}
