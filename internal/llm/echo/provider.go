// Package echo is an offline provider that streams the prompt back word by
// word. It needs no credentials and is the development default.
package echo

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/Rrens/streamchat/internal/llm"
)

// Provider implements llm.Provider without a model behind it
type Provider struct {
	delay time.Duration
}

// NewProvider creates an echo provider that pauses delay between pieces
func NewProvider(delay time.Duration) *Provider {
	return &Provider{delay: delay}
}

func (p *Provider) Name() string {
	return "echo"
}

func (p *Provider) AvailableModels() []string {
	return []string{"echo"}
}

func (p *Provider) DefaultModel() string {
	return "echo"
}

func (p *Provider) IsConfigured() bool {
	return true
}

// Stream replies with the prompt, one word (with its trailing space) at a time
func (p *Provider) Stream(ctx context.Context, req llm.Request, model string, emit llm.EmitFunc) error {
	for _, piece := range split("You said: " + req.Prompt) {
		if p.delay > 0 {
			timer := time.NewTimer(p.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := emit(piece); err != nil {
			return err
		}
	}
	return nil
}

// split cuts s after every run of spaces; CJK text is cut per character
func split(s string) []string {
	var (
		pieces []string
		cur    strings.Builder
	)
	runes := []rune(s)
	for i, r := range runes {
		cur.WriteRune(r)
		next := i+1 < len(runes)
		switch {
		case unicode.Is(unicode.Han, r):
			pieces = append(pieces, cur.String())
			cur.Reset()
		case unicode.IsSpace(r) && next && !unicode.IsSpace(runes[i+1]):
			pieces = append(pieces, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		pieces = append(pieces, cur.String())
	}
	return pieces
}
