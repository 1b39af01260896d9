package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/Rrens/streamchat/internal/domain"
	"github.com/Rrens/streamchat/internal/service"
	"github.com/Rrens/streamchat/internal/store"
)

// renderer prints the in-flight reply of the active conversation as it grows
// and shows notices. It watches the store, so anything that changes the
// reply shows up without the chat service knowing about the terminal.
type renderer struct {
	out   io.Writer
	store *store.Store

	user   *color.Color
	ai     *color.Color
	warn   *color.Color
	failed *color.Color
	dim    *color.Color

	mu      sync.Mutex
	active  domain.ID
	replyID domain.ID
	shown   string
}

func newRenderer(out io.Writer, st *store.Store) *renderer {
	r := &renderer{
		out:    out,
		store:  st,
		user:   color.New(color.FgGreen),
		ai:     color.New(color.FgCyan),
		warn:   color.New(color.FgYellow),
		failed: color.New(color.FgRed),
		dim:    color.New(color.Faint),
	}
	st.Subscribe(r.onChange)
	return r
}

// SetActive selects the conversation whose replies are printed
func (r *renderer) SetActive(id domain.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = id
	r.replyID = ""
	r.shown = ""
}

func (r *renderer) onChange(c store.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Removed || c.ConversationID != r.active {
		return
	}

	msgs := r.store.ListMessages(c.ConversationID)
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Sender != domain.SenderAssistant || !last.Streaming {
		return
	}

	if last.ID != r.replyID {
		r.replyID = last.ID
		r.shown = ""
		r.ai.Fprint(r.out, "AI: ")
	}
	if !strings.HasPrefix(last.Text, r.shown) {
		fmt.Fprint(r.out, "\n    ")
		r.shown = ""
	}
	fmt.Fprint(r.out, last.Text[len(r.shown):])
	r.shown = last.Text
}

// Settled ends the printed reply. A failed reply is shown in full since its
// text was replaced by the error message.
func (r *renderer) Settled(reply *domain.Message, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	streamed := r.replyID != ""
	r.replyID = ""
	r.shown = ""

	switch {
	case err != nil && reply != nil:
		if streamed {
			fmt.Fprintln(r.out)
		}
		r.failed.Fprintln(r.out, "AI: "+reply.Text)
	case err != nil:
		r.failed.Fprintln(r.out, err.Error())
	case !streamed && reply != nil:
		// an empty or instant reply produced no chunk
		r.ai.Fprint(r.out, "AI: ")
		fmt.Fprintln(r.out, reply.Text)
	default:
		fmt.Fprintln(r.out)
	}
}

// Notify implements service.Notifier
func (r *renderer) Notify(n service.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch n.Level {
	case service.NoticeError:
		r.failed.Fprintf(r.out, "\n[!] %s\n", n.Text)
	case service.NoticeWarning:
		r.warn.Fprintf(r.out, "\n[!] %s\n", n.Text)
	default:
		r.dim.Fprintf(r.out, "\n[i] %s\n", n.Text)
	}
}

// Messages prints a conversation's history
func (r *renderer) Messages(msgs []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range msgs {
		if m.Sender == domain.SenderUser {
			r.user.Fprint(r.out, "You: ")
		} else {
			r.ai.Fprint(r.out, "AI: ")
		}
		fmt.Fprintln(r.out, m.Text)
	}
}

// Conversations prints the conversation list, marking the active one
func (r *renderer) Conversations(list []domain.Conversation, active domain.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, c := range list {
		marker := " "
		if c.ID == active {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %2d. %s ", marker, i+1, c.Title)
		r.dim.Fprintf(r.out, "(%s)\n", c.ID)
	}
}

// Info prints a dim status line
func (r *renderer) Info(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dim.Fprintf(r.out, format+"\n", args...)
}

// Error prints an error line
func (r *renderer) Error(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed.Fprintf(r.out, format+"\n", args...)
}
