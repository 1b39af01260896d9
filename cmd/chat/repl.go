package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/Rrens/streamchat/internal/domain"
	"github.com/Rrens/streamchat/internal/service"
)

const replHelp = `Commands:
  /list                 list conversations
  /new <title>          create and switch to a conversation
  /switch <n>           switch to conversation n
  /delete <n>           delete conversation n
  /rename <n> <title>   rename conversation n (this session only)
  /history              show the active conversation
  /clear                clear the active conversation's view
  /reload               reload the active conversation from the server
  /logout               forget the logged-in user and quit
  /quit                 quit (Ctrl+D works too)
Anything else is sent as a message. Ctrl+C stops a reply in progress.`

var errQuit = errors.New("quit")

// repl runs an interactive read-eval-print loop
func (a *app) repl(ctx context.Context, user *domain.User, in io.Reader) error {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	cyan.Fprintf(a.render.out, "Logged in as %s. Type /help for commands (Ctrl+D to exit)\n\n", user.Username)
	a.showActive()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), 1024*1024) // 1MB max input
	for {
		green.Fprint(a.render.out, "> ")
		if !scanner.Scan() {
			// EOF (Ctrl+D) or error
			fmt.Fprintln(a.render.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			err := a.command(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				a.render.Error("%s", a.tr.Describe(err))
			}
			continue
		}

		a.send(ctx, user, line)
	}
}

// send runs one turn. Ctrl+C cancels the turn instead of the program.
func (a *app) send(ctx context.Context, user *domain.User, text string) {
	active, ok := a.conversations.Active()
	if !ok {
		a.render.Error("no active conversation")
		return
	}

	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	reply, err := a.chat.Send(turnCtx, user, active.ID, text)
	if service.IsRejected(err) {
		a.render.Error("%s", a.tr.Describe(err))
		return
	}
	a.render.Settled(reply, err)
}

func (a *app) command(ctx context.Context, line string) error {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/help":
		a.render.Info("%s", replHelp)
	case "/quit", "/exit":
		return errQuit
	case "/logout":
		if err := a.auth.Logout(ctx); err != nil {
			return err
		}
		a.render.Info("logged out")
		return errQuit
	case "/list":
		active, _ := a.conversations.Active()
		a.render.Conversations(a.conversations.Conversations(), active.ID)
	case "/new":
		if _, err := a.conversations.Create(ctx, rest); err != nil {
			return err
		}
		a.showActive()
	case "/switch":
		conv, err := a.pick(rest)
		if err != nil {
			return err
		}
		if err := a.conversations.Select(ctx, conv.ID); err != nil {
			return err
		}
		a.showActive()
	case "/delete":
		conv, err := a.pick(rest)
		if err != nil {
			return err
		}
		if err := a.conversations.Delete(ctx, conv.ID); err != nil {
			return err
		}
		a.render.Info("deleted %q", conv.Title)
		a.showActive()
	case "/rename":
		n, title, _ := strings.Cut(rest, " ")
		conv, err := a.pick(n)
		if err != nil {
			return err
		}
		return a.conversations.Rename(conv.ID, title)
	case "/history":
		a.showActive()
	case "/clear":
		active, ok := a.conversations.Active()
		if !ok {
			return domain.ErrConversationNotFound
		}
		return a.conversations.Clear(active.ID)
	case "/reload":
		active, ok := a.conversations.Active()
		if !ok {
			return domain.ErrConversationNotFound
		}
		if err := a.conversations.Reload(ctx, active.ID); err != nil {
			return err
		}
		a.showActive()
	default:
		return fmt.Errorf("unknown command %s, try /help", name)
	}
	return nil
}

// pick resolves a 1-based position in the conversation list
func (a *app) pick(arg string) (domain.Conversation, error) {
	list := a.conversations.Conversations()
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 || n > len(list) {
		return domain.Conversation{}, fmt.Errorf("%w: pick a number from /list", domain.ErrInvalidInput)
	}
	return list[n-1], nil
}

func (a *app) showActive() {
	active, ok := a.conversations.Active()
	if !ok {
		return
	}
	a.render.SetActive(active.ID)
	a.render.Info("── %s ──", active.Title)
	a.render.Messages(a.store.ListMessages(active.ID))
}
