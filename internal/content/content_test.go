package content

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultContent(t *testing.T) {
	c := Default()
	if c.ShowroomAddress != "Sherpa Hyundai Showroom, 123 MG Road, Bangalore" {
		t.Errorf("unexpected showroom address %q", c.ShowroomAddress)
	}
	if got := len(c.About.Topics); got != 5 {
		t.Fatalf("expected 5 about topics, got %d", got)
	}
	if !strings.Contains(c.Contact.Call, "+91-9876543210") {
		t.Error("call block should list the sales number")
	}
	if !strings.Contains(c.Contact.Visit, "123 MG Road") {
		t.Error("visit block should list the main showroom")
	}
}

func TestFindTopic(t *testing.T) {
	c := Default()
	cases := []struct{ in, want string }{
		{"🏢 Company Story", "🏢 Company Story"},
		{"company story", "🏢 Company Story"},
		{"Awards & Achievements", "🏆 Awards & Achievements"},
		{"why should I trust you?", "🌟 Why Choose Us"},
		{"which services do you offer", "🎯 Our Services"},
	}
	for _, tc := range cases {
		topic, ok := c.FindTopic(tc.in)
		if !ok || topic.Title != tc.want {
			t.Errorf("FindTopic(%q) = %q,%v want %q", tc.in, topic.Title, ok, tc.want)
		}
	}
	if _, ok := c.FindTopic("book a test drive"); ok {
		t.Error("unrelated text should not match a topic")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.yaml")
	doc := "dealership: Test Motors\nshowroom_address: \"Test Motors, 1 Main St\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Dealership != "Test Motors" || c.ShowroomAddress != "Test Motors, 1 Main St" {
		t.Errorf("override not applied: %+v", c)
	}
	if len(c.About.Topics) != 5 {
		t.Errorf("defaults should survive an overlay, got %d topics", len(c.About.Topics))
	}
}

func TestParseRejectsEmptyTopics(t *testing.T) {
	_, err := Parse([]byte("about:\n  intro: hi\n"), nil)
	if !errors.Is(err, ErrNoTopics) {
		t.Fatalf("expected ErrNoTopics, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
