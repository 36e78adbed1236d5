// Package content holds the dealership copy shown by the static parts of the
// conversation: greetings, contact blocks and the about-us topics.
//
// A default document is embedded in the binary; deployments can override it
// with their own YAML file.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDocument []byte

// MaxTopics keeps the about menu plus its "Main Menu" entry within the reply option limit.
const MaxTopics = 9

var (
	ErrNoTopics      = errors.New("content: about section has no topics")
	ErrTooManyTopics = fmt.Errorf("content: about section has more than %d topics", MaxTopics)
)

// Topic is one entry of the about-us menu.
type Topic struct {
	Title    string   `yaml:"title"`
	Keywords []string `yaml:"keywords"`
	Body     string   `yaml:"body"`
}

// Contact holds the static contact blocks.
type Contact struct {
	Intro string `yaml:"intro"`
	Call  string `yaml:"call"`
	Visit string `yaml:"visit"`
}

// About holds the about-us menu.
type About struct {
	Intro  string  `yaml:"intro"`
	Topics []Topic `yaml:"topics"`
}

// Content is the full copy document.
type Content struct {
	Dealership      string  `yaml:"dealership"`
	Greeting        string  `yaml:"greeting"`
	Farewell        string  `yaml:"farewell"`
	ShowroomAddress string  `yaml:"showroom_address"`
	Contact         Contact `yaml:"contact"`
	About           About   `yaml:"about"`
}

// Default returns the embedded document. It panics if the embedded YAML is broken,
// which can only happen at build time.
func Default() *Content {
	c, err := Parse(defaultDocument, nil)
	if err != nil {
		panic(fmt.Sprintf("embedded content document is invalid: %v", err))
	}
	return c
}

// Load reads a YAML document from path. Fields it leaves out keep their default value.
func Load(path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content file: %w", err)
	}
	c, err := Parse(data, Default())
	if err != nil {
		return nil, err
	}
	slog.Debug("content.Load: loaded content file", "path", path, "topics", len(c.About.Topics))
	return c, nil
}

// Parse decodes data on top of base (nil means empty) and validates the result.
func Parse(data []byte, base *Content) (*Content, error) {
	var c Content
	if base != nil {
		c = *base
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse content: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the about menu fits in a reply.
func (c *Content) Validate() error {
	if len(c.About.Topics) == 0 {
		return ErrNoTopics
	}
	if len(c.About.Topics) > MaxTopics {
		return ErrTooManyTopics
	}
	for i, t := range c.About.Topics {
		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("content: topic %d has no title", i)
		}
	}
	return nil
}

// TopicTitles returns the about menu labels.
func (c *Content) TopicTitles() []string {
	titles := make([]string, len(c.About.Topics))
	for i, t := range c.About.Topics {
		titles[i] = t.Title
	}
	return titles
}

// FindTopic matches text against topic titles first, then keywords.
// Emoji and punctuation are ignored.
func (c *Content) FindTopic(text string) (Topic, bool) {
	norm := normalize(text)
	if norm == "" {
		return Topic{}, false
	}
	for _, t := range c.About.Topics {
		if normalize(t.Title) == norm {
			return t, true
		}
	}
	words := strings.Fields(norm)
	for _, t := range c.About.Topics {
		for _, k := range t.Keywords {
			for _, w := range words {
				if w == strings.ToLower(k) {
					return t, true
				}
			}
		}
	}
	return Topic{}, false
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
