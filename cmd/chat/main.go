package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/manishgpt/chat-client/internal/api"
	"github.com/manishgpt/chat-client/internal/config"
	model "github.com/manishgpt/chat-client/internal/model/chat"
	"github.com/manishgpt/chat-client/internal/model/persona"
	"github.com/manishgpt/chat-client/internal/notify"
	"github.com/manishgpt/chat-client/internal/route"
	"github.com/manishgpt/chat-client/internal/service/attachment"
	"github.com/manishgpt/chat-client/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	client := api.NewClient(cfg.API.BaseURL, api.StaticToken(cfg.API.Token), cfg.API.RequestTimeout)

	notifier := notify.NewBroadcaster()
	defer notifier.Close()
	events, _ := notifier.Subscribe(ctx)
	go func() {
		for ev := range events {
			if ev.Type == notify.ConversationCreated {
				fmt.Printf("\n(conversation %s created; resume it later with /open %s)\n", ev.ConversationID, ev.ConversationID)
			}
		}
	}()

	app := &app{
		cfg:         cfg,
		client:      client,
		store:       chat.NewStore(),
		session:     chat.NewSession(client, notifier),
		attachments: attachment.NewManager(client, cfg.Upload.MaxBytes),
	}
	defer app.session.Close()
	app.pipeline = chat.NewPipeline(app.store, app.session, client, app.attachments)
	app.pipeline.OnDelta = func(text string) {
		fmt.Print(text)
		app.echoed += text
	}

	fmt.Println("manishgpt chat client")
	fmt.Println("commands: /personas, /persona <id>, /open <conversation-id>, /attach <path>, /attachments, /detach <id>, /history, /quit")

	app.run(ctx)
}

type app struct {
	cfg         *config.Config
	client      *api.Client
	store       *chat.Store
	session     *chat.Session
	pipeline    *chat.Pipeline
	attachments *attachment.Manager

	// echoed is the reply text already printed by OnDelta for the
	// in-flight send.
	echoed string
}

func (a *app) run(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/personas":
			a.listPersonas(ctx)
		case strings.HasPrefix(line, "/persona "):
			a.openPersona(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/persona ")))
		case strings.HasPrefix(line, "/open "):
			a.openConversation(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
		case strings.HasPrefix(line, "/attach "):
			a.attach(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/attach ")))
		case line == "/attachments":
			a.listAttachments()
		case strings.HasPrefix(line, "/detach "):
			a.detach(strings.TrimSpace(strings.TrimPrefix(line, "/detach ")))
		case line == "/history":
			a.printHistory()
		case strings.HasPrefix(line, "/"):
			fmt.Printf("unknown command %q\n", line)
		default:
			a.send(line)
		}
	}
}

func (a *app) listPersonas(ctx context.Context) {
	personas, err := a.client.Personas(ctx)
	if err != nil {
		a.printError(err)
		return
	}
	if len(personas) == 0 {
		fmt.Println("no personas available")
		return
	}
	for _, p := range personas {
		fmt.Println(formatPersona(p))
	}
}

func (a *app) openPersona(ctx context.Context, id string) {
	if id == "" {
		fmt.Println("usage: /persona <id>")
		return
	}
	target := route.Resolve("persona/" + id)
	a.session.Activate(ctx, target)
	a.store.Reset()
	fmt.Printf("chatting with %s; the conversation is created on your first message\n", id)
}

func (a *app) openConversation(ctx context.Context, id string) {
	if id == "" {
		fmt.Println("usage: /open <conversation-id>")
		return
	}
	target := route.Resolve(id)
	activated := a.session.Activate(ctx, target)

	history, err := a.client.Messages(activated, target.ConversationID)
	if err != nil {
		a.printError(err)
		a.store.Reset()
		return
	}
	a.store.Load(history)
	fmt.Printf("resumed conversation %s (%d messages)\n", id, len(history))
	a.printHistory()
}

func (a *app) attach(ctx context.Context, path string) {
	if path == "" {
		fmt.Println("usage: /attach <path>")
		return
	}
	file, err := os.Open(path)
	if err != nil {
		a.printError(err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		a.printError(err)
		return
	}

	entry, err := a.attachments.Add(ctx, filepath.Base(path), file, info.Size())
	if err != nil {
		a.printError(err)
		return
	}
	fmt.Printf("attached %s (file %s); it will be sent with your next message\n", entry.Ref.Filename, entry.Ref.FileID)
}

func (a *app) listAttachments() {
	pending := a.attachments.Pending()
	if len(pending) == 0 {
		fmt.Println("no pending attachments")
		return
	}
	for _, entry := range pending {
		fmt.Printf("  %s  %s\n", entry.ID, entry.Ref.Filename)
	}
}

func (a *app) detach(id string) {
	if !a.attachments.Remove(id) {
		fmt.Printf("no pending attachment %q\n", id)
		return
	}
	fmt.Println("attachment removed")
}

func (a *app) printHistory() {
	for _, msg := range a.store.Messages() {
		printMessage(msg)
	}
}

func (a *app) send(text string) {
	ctx := a.session.Context()
	if a.cfg.API.StreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.API.StreamTimeout)
		defer cancel()
	}

	a.echoed = ""
	err := a.pipeline.Send(ctx, text)
	if err != nil {
		if a.echoed != "" {
			fmt.Println()
		}
		a.printError(err)
		return
	}

	// The stream may have ended with a correction or an error notice the
	// deltas did not cover.
	messages := a.store.Messages()
	if len(messages) == 0 {
		return
	}
	tail := messages[len(messages)-1]
	if tail.Role != model.RoleAssistant {
		return
	}
	if a.echoed == "" {
		printMessage(tail)
		return
	}

	remainder, reprint := echoRemainder(tail.Content, a.echoed)
	if reprint {
		fmt.Println()
		printMessage(tail)
		return
	}
	fmt.Print(remainder)
	fmt.Println()
}

// echoRemainder reports what still needs printing once the stream has
// resolved: the suffix when the final content extends what was already
// echoed, or the full content with reprint set when it diverged.
func echoRemainder(final, echoed string) (string, bool) {
	if rest, ok := strings.CutPrefix(final, echoed); ok {
		return rest, false
	}
	return final, true
}

func formatPersona(p persona.Persona) string {
	if p.Description != "" {
		return fmt.Sprintf("  %s  %s: %s", p.ID, p.Name, p.Description)
	}
	return fmt.Sprintf("  %s  %s", p.ID, p.Name)
}

func (a *app) printError(err error) {
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		fmt.Println("authentication failed: check CHAT_API_TOKEN")
	case errors.Is(err, chat.ErrNoTarget):
		fmt.Println("pick a persona first: /personas then /persona <id>")
	case errors.Is(err, chat.ErrBusy):
		fmt.Println("still waiting for the previous reply")
	case errors.Is(err, chat.ErrEmptyMessage):
		fmt.Println("type a message or attach a file first")
	case errors.Is(err, attachment.ErrFileTooLarge):
		fmt.Printf("%v\n", err)
	case errors.Is(err, context.DeadlineExceeded):
		fmt.Println("the reply timed out")
	default:
		fmt.Printf("error: %v\n", err)
	}
}

func printMessage(msg model.Message) {
	label := "you"
	if msg.Role == model.RoleAssistant {
		label = "assistant"
	}
	if !msg.CreatedAt.IsZero() {
		fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format(time.Kitchen), label, msg.Content)
	} else {
		fmt.Printf("%s: %s\n", label, msg.Content)
	}
	for _, ref := range msg.Attachments {
		fmt.Printf("  (attachment: %s)\n", ref.Filename)
	}
}
