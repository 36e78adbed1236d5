package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeAPI struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeAPI) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestSendMessageParams(t *testing.T) {
	api := &fakeAPI{}
	c := newClient(api, "+14155238886")

	if err := c.SendMessage(context.Background(), "919876543210", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.params) != 1 {
		t.Fatalf("expected 1 request, got %d", len(api.params))
	}
	p := api.params[0]
	if *p.To != "whatsapp:+919876543210" {
		t.Errorf("unexpected To %q", *p.To)
	}
	if *p.From != "whatsapp:+14155238886" {
		t.Errorf("unexpected From %q", *p.From)
	}
	if *p.Body != "Hello Test" {
		t.Errorf("unexpected Body %q", *p.Body)
	}
}

func TestSendMediaParams(t *testing.T) {
	api := &fakeAPI{}
	c := newClient(api, "whatsapp:+14155238886")

	if err := c.SendMedia(context.Background(), "+919876543210", "Hyundai Creta", "https://example.com/creta.jpg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := api.params[0]
	if p.MediaUrl == nil || len(*p.MediaUrl) != 1 || (*p.MediaUrl)[0] != "https://example.com/creta.jpg" {
		t.Errorf("unexpected MediaUrl %v", p.MediaUrl)
	}
	if *p.Body != "Hyundai Creta" {
		t.Errorf("unexpected caption %q", *p.Body)
	}
	if *p.From != "whatsapp:+14155238886" {
		t.Errorf("prefix should not be doubled, got %q", *p.From)
	}
}

func TestSendMessageError(t *testing.T) {
	api := &fakeAPI{err: errors.New("21211 invalid To")}
	c := newClient(api, "+14155238886")
	if err := c.SendMessage(context.Background(), "1", "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Fatal("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("+14155238886"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("unexpected from %q", c.fromWhats)
	}
}

func TestMockClientRecords(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.SendMedia(ctx, "12345", "cap", "https://example.com/a.jpg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := mock.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Body != "Hello Test" || msgs[1].MediaURL != "https://example.com/a.jpg" {
		t.Errorf("unexpected messages %+v", msgs)
	}
}
