package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/liquidmail/liquid-mail/internal/honcho"
)

// ExcerptLen bounds message excerpts in text output and notifications.
const ExcerptLen = 160

// Sink receives emitted messages.
type Sink interface {
	Emit(msg honcho.Message) error
}

// Printer writes messages as text lines or JSON envelopes.
type Printer struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, asJSON bool) *Printer {
	return &Printer{w: w, json: asJSON}
}

type messageEvent struct {
	OK   bool `json:"ok"`
	Data struct {
		Event   string         `json:"event"`
		Message honcho.Message `json:"message"`
	} `json:"data"`
}

// Emit prints one message.
func (p *Printer) Emit(msg honcho.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		ev := messageEvent{OK: true}
		ev.Data.Event = "message"
		ev.Data.Message = msg
		data, err := json.MarshalIndent(ev, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(p.w, "%s\n", data)
		return err
	}
	_, err := io.WriteString(p.w, FormatLine(msg)+"\n")
	return err
}

// FormatLine renders "[topic] created peer: excerpt".
func FormatLine(msg honcho.Message) string {
	created := ""
	if msg.CreatedAt != "" {
		created = " " + msg.CreatedAt
	}
	return fmt.Sprintf("[%s]%s %s: %s", msg.SessionID, created, msg.PeerID, Excerpt(msg.Content, ExcerptLen))
}

// Excerpt flattens newlines and keeps at most n runes.
func Excerpt(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
