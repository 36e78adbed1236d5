package messaging

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// Cloud API limits and defaults.
const (
	DefaultGraphBaseURL = "https://graph.facebook.com/v17.0"
	DefaultVerifyToken  = "auto"
	DefaultSendRate     = 20
	DefaultSendBurst    = 5
	DefaultHTTPTimeout  = 15 * time.Second

	MaxButtons         = 3
	MaxButtonTitle     = 20
	MaxRowTitle        = 24
	MaxRowDescription  = 72
	MaxOptionID        = 200
	MaxInteractiveBody = 1024
	MaxWebhookBody     = 1 << 20

	SignatureHeader = "X-Hub-Signature-256"

	emptyTextFallback        = "I apologize, but I encountered an error. Please try again."
	emptyInteractiveFallback = "Please select an option:"
	listButtonLabel          = "Choose"
	listSectionTitle         = "Available Options"
	listFooter               = "Tap to choose from list"
)

// ErrInvalidSignature is returned when a webhook body does not match its X-Hub-Signature-256 header.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api returned %d: %s", e.StatusCode, e.Body)
}

// CloudAPIOpts configures CloudAPIService.
type CloudAPIOpts struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	VerifyToken   string
	AppSecret     string
	HTTPClient    *http.Client
	SendRate      rate.Limit
	SendBurst     int
}

// CloudOption configures CloudAPIService.
type CloudOption func(*CloudAPIOpts)

// WithAccessToken sets the Graph API bearer token.
func WithAccessToken(token string) CloudOption {
	return func(o *CloudAPIOpts) { o.AccessToken = token }
}

// WithPhoneNumberID sets the sending phone number ID.
func WithPhoneNumberID(id string) CloudOption {
	return func(o *CloudAPIOpts) { o.PhoneNumberID = id }
}

// WithGraphBaseURL overrides the Graph API base URL.
func WithGraphBaseURL(url string) CloudOption {
	return func(o *CloudAPIOpts) { o.BaseURL = strings.TrimRight(url, "/") }
}

// WithVerifyToken sets the token expected by the webhook subscription handshake.
func WithVerifyToken(token string) CloudOption {
	return func(o *CloudAPIOpts) { o.VerifyToken = token }
}

// WithAppSecret enables X-Hub-Signature-256 verification of webhook bodies.
func WithAppSecret(secret string) CloudOption {
	return func(o *CloudAPIOpts) { o.AppSecret = secret }
}

// WithHTTPClient sets the HTTP client used for Graph API calls.
func WithHTTPClient(c *http.Client) CloudOption {
	return func(o *CloudAPIOpts) { o.HTTPClient = c }
}

// WithSendRate throttles outbound Graph API calls.
func WithSendRate(limit rate.Limit, burst int) CloudOption {
	return func(o *CloudAPIOpts) {
		o.SendRate = limit
		o.SendBurst = burst
	}
}

// CloudAPIService implements Service on the WhatsApp Business Cloud API.
// Inbound messages arrive through WebhookHandler.
type CloudAPIService struct {
	opts     CloudAPIOpts
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	inbox    *inbox
}

var _ Service = (*CloudAPIService)(nil)

// NewCloudAPIService creates the service. Unset options fall back to
// WHATSAPP_TOKEN, WHATSAPP_PHONE_NUMBER_ID, VERIFY_TOKEN and WHATSAPP_APP_SECRET.
func NewCloudAPIService(opts ...CloudOption) (*CloudAPIService, error) {
	var cfg CloudAPIOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("WHATSAPP_TOKEN")
	}
	if cfg.PhoneNumberID == "" {
		cfg.PhoneNumberID = os.Getenv("WHATSAPP_PHONE_NUMBER_ID")
	}
	if cfg.VerifyToken == "" {
		cfg.VerifyToken = os.Getenv("VERIFY_TOKEN")
	}
	if cfg.VerifyToken == "" {
		cfg.VerifyToken = DefaultVerifyToken
	}
	if cfg.AppSecret == "" {
		cfg.AppSecret = os.Getenv("WHATSAPP_APP_SECRET")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if cfg.SendRate <= 0 {
		cfg.SendRate = DefaultSendRate
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = DefaultSendBurst
	}
	slog.Debug("CloudAPIService config loaded",
		"token_set", cfg.AccessToken != "",
		"phone_number_id_set", cfg.PhoneNumberID != "",
		"app_secret_set", cfg.AppSecret != "",
		"base_url", cfg.BaseURL)

	if cfg.AccessToken == "" || cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp access token and phone number ID must be provided")
	}
	return &CloudAPIService{
		opts:     cfg,
		endpoint: cfg.BaseURL + "/" + cfg.PhoneNumberID + "/messages",
		http:     cfg.HTTPClient,
		limiter:  rate.NewLimiter(cfg.SendRate, cfg.SendBurst),
		inbox:    newInbox("CloudAPIService"),
	}, nil
}

// Name implements Service.
func (s *CloudAPIService) Name() string { return "cloud" }

// ValidateAndCanonicalizeRecipient implements Service.
func (s *CloudAPIService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start implements Service. Inbound traffic is pushed by the webhook.
func (s *CloudAPIService) Start(ctx context.Context) error {
	slog.Debug("CloudAPIService Start invoked", "endpoint", s.endpoint)
	return nil
}

// Stop implements Service.
func (s *CloudAPIService) Stop() error {
	s.inbox.stop()
	slog.Info("CloudAPIService stopped")
	return nil
}

// Responses implements Service.
func (s *CloudAPIService) Responses() <-chan models.InboundMessage {
	return s.inbox.responses
}

// SendReply sends the reply's attachments, then its text as a plain,
// button or list message depending on how many options it carries.
// A failed attachment is logged and skipped.
func (s *CloudAPIService) SendReply(ctx context.Context, to string, reply models.Reply) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	recipient, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("CloudAPIService.SendReply: invalid recipient", "error", err, "to", to)
		return err
	}
	for i, a := range reply.Messages {
		if err := s.post(ctx, imageMessage(recipient, a)); err != nil {
			slog.Error("CloudAPIService.SendReply: attachment failed", "index", i, "to", recipient, "error", err)
			if ctx.Err() != nil {
				return err
			}
		}
	}
	if strings.TrimSpace(reply.Message) == "" && len(reply.Options) == 0 && len(reply.Messages) > 0 {
		return nil
	}
	if err := s.post(ctx, BuildCloudMessage(recipient, reply)); err != nil {
		slog.Error("CloudAPIService.SendReply failed", "to", recipient, "error", err)
		return err
	}
	slog.Debug("CloudAPIService.SendReply succeeded", "to", recipient, "options", len(reply.Options))
	return nil
}

func (s *CloudAPIService) post(ctx context.Context, msg CloudMessage) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send throttled: %w", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", msg.Type, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.opts.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s message to %s: %w", msg.Type, msg.To, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// CloudMessage is an outbound Cloud API message.
type CloudMessage struct {
	MessagingProduct string            `json:"messaging_product"`
	RecipientType    string            `json:"recipient_type,omitempty"`
	To               string            `json:"to"`
	Type             string            `json:"type"`
	Text             *CloudText        `json:"text,omitempty"`
	Image            *CloudImage       `json:"image,omitempty"`
	Interactive      *CloudInteractive `json:"interactive,omitempty"`
}

type CloudText struct {
	Body string `json:"body"`
}

type CloudImage struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type CloudInteractive struct {
	Type   string      `json:"type"`
	Body   CloudBody   `json:"body"`
	Footer *CloudBody  `json:"footer,omitempty"`
	Action CloudAction `json:"action"`
}

type CloudBody struct {
	Text string `json:"text"`
}

type CloudAction struct {
	Button   string         `json:"button,omitempty"`
	Buttons  []CloudButton  `json:"buttons,omitempty"`
	Sections []CloudSection `json:"sections,omitempty"`
}

type CloudButton struct {
	Type  string     `json:"type"`
	Reply CloudReply `json:"reply"`
}

type CloudReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type CloudSection struct {
	Title string     `json:"title,omitempty"`
	Rows  []CloudRow `json:"rows"`
}

type CloudRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// BuildCloudMessage renders a reply as a text, button or list message.
// Option labels travel in the reply IDs so truncated titles still resolve
// to the full label on the way back.
func BuildCloudMessage(to string, reply models.Reply) CloudMessage {
	msg := CloudMessage{MessagingProduct: "whatsapp", RecipientType: "individual", To: to}
	options := reply.Options
	if len(options) > models.MaxReplyOptions {
		options = options[:models.MaxReplyOptions]
	}
	text := strings.TrimSpace(reply.Message)

	if len(options) == 0 {
		if text == "" {
			text = emptyTextFallback
		}
		msg.Type = "text"
		msg.Text = &CloudText{Body: text}
		return msg
	}

	if text == "" {
		text = emptyInteractiveFallback
	}
	msg.Type = "interactive"
	interactive := &CloudInteractive{Body: CloudBody{Text: truncate(text, MaxInteractiveBody)}}
	if len(options) <= MaxButtons {
		interactive.Type = "button"
		for _, opt := range options {
			interactive.Action.Buttons = append(interactive.Action.Buttons, CloudButton{
				Type:  "reply",
				Reply: CloudReply{ID: truncate(opt, MaxOptionID), Title: truncate(opt, MaxButtonTitle)},
			})
		}
	} else {
		interactive.Type = "list"
		interactive.Footer = &CloudBody{Text: listFooter}
		section := CloudSection{Title: listSectionTitle}
		for _, opt := range options {
			row := CloudRow{ID: truncate(opt, MaxOptionID), Title: truncate(opt, MaxRowTitle)}
			if row.Title != opt {
				row.Description = truncate(opt, MaxRowDescription)
			}
			section.Rows = append(section.Rows, row)
		}
		interactive.Action.Button = listButtonLabel
		interactive.Action.Sections = []CloudSection{section}
	}
	msg.Interactive = interactive
	return msg
}

func imageMessage(to string, a models.Attachment) CloudMessage {
	return CloudMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "image",
		Image:            &CloudImage{Link: a.URL, Caption: truncate(a.Caption, MaxInteractiveBody)},
	}
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

// webhookPayload is the subset of a Cloud API webhook notification we read.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string      `json:"type"`
		ListReply   *CloudReply `json:"list_reply"`
		ButtonReply *CloudReply `json:"button_reply"`
	} `json:"interactive"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button"`
}

// ParseWebhook extracts the user messages of a webhook notification.
// Status updates and unsupported message types are skipped.
func ParseWebhook(body []byte) ([]models.InboundMessage, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	var out []models.InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				msg, ok := inboundFromWebhook(m)
				if !ok {
					slog.Debug("ParseWebhook: skipping message", "type", m.Type, "id", m.ID)
					continue
				}
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

func inboundFromWebhook(m webhookMessage) (models.InboundMessage, bool) {
	msg := models.InboundMessage{ID: m.ID, From: m.From, Kind: models.MessageKindText}
	if ts, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
		msg.Time = ts
	} else {
		msg.Time = time.Now().Unix()
	}
	switch {
	case m.Text != nil:
		msg.Body = m.Text.Body
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		msg.Body = replyLabel(*m.Interactive.ListReply)
		msg.Kind = models.MessageKindInteractive
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		msg.Body = replyLabel(*m.Interactive.ButtonReply)
		msg.Kind = models.MessageKindInteractive
	case m.Button != nil:
		msg.Body = m.Button.Text
		msg.Kind = models.MessageKindInteractive
	}
	msg.Body = strings.TrimSpace(msg.Body)
	if msg.From == "" || msg.Body == "" {
		return msg, false
	}
	return msg, true
}

func replyLabel(r CloudReply) string {
	if r.ID != "" {
		return r.ID
	}
	return r.Title
}

// VerifySignature checks body against a "sha256=<hex>" signature made with secret.
func VerifySignature(secret string, body []byte, signature string) error {
	hexSum, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(hexSum)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// WebhookHandler serves the subscription handshake on GET and message
// notifications on POST.
func (s *CloudAPIService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verify(w, r)
	case http.MethodPost:
		s.receive(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *CloudAPIService) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.opts.VerifyToken {
		slog.Info("CloudAPIService webhook verified")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, q.Get("hub.challenge"))
		return
	}
	slog.Warn("CloudAPIService webhook verification failed", "mode", q.Get("hub.mode"))
	w.WriteHeader(http.StatusForbidden)
}

func (s *CloudAPIService) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxWebhookBody))
	if err != nil {
		slog.Error("CloudAPIService webhook read failed", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if s.opts.AppSecret != "" {
		if err := VerifySignature(s.opts.AppSecret, body, r.Header.Get(SignatureHeader)); err != nil {
			slog.Warn("CloudAPIService webhook rejected", "error", err)
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}
	}
	messages, err := ParseWebhook(body)
	if err != nil {
		slog.Error("CloudAPIService webhook parse failed", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	for _, msg := range messages {
		slog.Info("CloudAPIService inbound message", "from", msg.From, "kind", msg.Kind, "id", msg.ID)
		s.inbox.emit(msg)
	}
	w.WriteHeader(http.StatusOK)
}
