package messaging

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// RenderText flattens a reply for channels without interactive messages.
// Options are numbered so the user can answer with a digit, unless a label
// already starts with a digit, in which case they are bulleted and the user
// types the label's own number.
func RenderText(reply models.Reply) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(reply.Message))
	if len(reply.Options) == 0 {
		return b.String()
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	numbered := numberable(reply.Options)
	for i, opt := range reply.Options {
		if i > 0 {
			b.WriteByte('\n')
		}
		if numbered {
			fmt.Fprintf(&b, "%d. %s", i+1, opt)
		} else {
			fmt.Fprintf(&b, "• %s", opt)
		}
	}
	if numbered {
		b.WriteString("\n\nReply with a number or type your answer.")
	}
	return b.String()
}

// RenderAttachment renders an image as caption plus link.
func RenderAttachment(a models.Attachment) string {
	if a.Caption == "" {
		return a.URL
	}
	return a.Caption + "\n" + a.URL
}

func numberable(options []string) bool {
	for _, opt := range options {
		if r, _ := firstRune(opt); unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}

// optionMemory remembers the numbered options last sent to each recipient so
// a bare digit reply can be turned back into its label.
type optionMemory struct {
	mu   sync.Mutex
	last map[string][]string
}

func newOptionMemory() *optionMemory {
	return &optionMemory{last: make(map[string][]string)}
}

// remember stores the options of a reply sent to phone.
func (m *optionMemory) remember(phone string, options []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(options) == 0 || !numberable(options) {
		delete(m.last, phone)
		return
	}
	m.last[phone] = append([]string(nil), options...)
}

// resolve maps "2" to the second option last sent to phone. Anything else is returned unchanged.
func (m *optionMemory) resolve(phone, body string) string {
	n, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return body
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	options := m.last[phone]
	if n < 1 || n > len(options) {
		return body
	}
	return options[n-1]
}
