package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/AutoSherpa/internal/models"
	"github.com/BTreeMap/AutoSherpa/internal/whatsapp"
)

// WhatsAppService implements Service on a whatsmeow linked device. Replies
// are flattened to text and numbered answers are mapped back to option labels.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client // set when client is a live whatsmeow client
	inbox    *inbox
	options  *optionMemory
	handler  uint32
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a new WhatsAppService wrapping the given Sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	s := &WhatsAppService{
		client:  client,
		inbox:   newInbox("WhatsAppService"),
		options: newOptionMemory(),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		s.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return s
}

// Name implements Service.
func (s *WhatsAppService) Name() string { return "whatsmeow" }

// ValidateAndCanonicalizeRecipient implements Service.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start registers the whatsmeow event handler when a live client is present.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling")
		return nil
	}
	s.handler = s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		case *events.Connected:
			slog.Info("WhatsAppService connected")
		case *events.Disconnected:
			slog.Warn("WhatsAppService disconnected")
		}
	})
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop implements Service.
func (s *WhatsAppService) Stop() error {
	if s.waClient != nil && s.waClient.GetClient() != nil && s.handler != 0 {
		s.waClient.GetClient().RemoveEventHandler(s.handler)
	}
	s.inbox.stop()
	slog.Info("WhatsAppService stopped")
	return nil
}

// Responses implements Service.
func (s *WhatsAppService) Responses() <-chan models.InboundMessage {
	return s.inbox.responses
}

// SendReply sends attachments as caption plus link, then the rendered text.
func (s *WhatsAppService) SendReply(ctx context.Context, to string, reply models.Reply) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	recipient, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService.SendReply: invalid recipient", "error", err, "to", to)
		return err
	}
	for _, a := range reply.Messages {
		if err := s.client.SendMessage(ctx, recipient, RenderAttachment(a)); err != nil {
			slog.Error("WhatsAppService.SendReply: attachment failed", "to", recipient, "error", err)
		}
	}
	text := RenderText(reply)
	if text == "" {
		return nil
	}
	if err := s.client.SendMessage(ctx, recipient, text); err != nil {
		return fmt.Errorf("whatsmeow send failed: %w", err)
	}
	s.options.remember(recipient, reply.Options)
	return nil
}

// Deliver maps a numbered answer back to its option label and forwards the
// message to Responses.
func (s *WhatsAppService) Deliver(msg models.InboundMessage) bool {
	from, err := s.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		slog.Warn("WhatsAppService dropping message from invalid sender", "from", msg.From, "error", err)
		return false
	}
	msg.From = from
	if resolved := s.options.resolve(from, msg.Body); resolved != msg.Body {
		msg.Body = resolved
		msg.Kind = models.MessageKindInteractive
	}
	return s.inbox.emit(msg)
}

// handleIncomingMessage processes incoming text messages.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.Deliver(models.InboundMessage{
		ID:   string(evt.Info.ID),
		From: evt.Info.Sender.User,
		Body: text,
		Kind: models.MessageKindText,
		Time: timestamp(evt.Info.Timestamp),
	})
}

func timestamp(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}
