package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	"alumni-messenger/internal/compose"
	"alumni-messenger/internal/config"
	"alumni-messenger/internal/models"
	"alumni-messenger/internal/session"
)

func main() {
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: messenger -email you@alumni.edu -password secret")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	ctx := context.Background()
	sess, err := session.Open(ctx, *cfg.Client, *email, *password, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign-in failed: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	fmt.Printf("signed in as %s\n", sess.Self().Username)
	repl(ctx, sess)
}

// repl is a minimal terminal front end over the session: enough to exercise
// the full stack by hand against the dev server.
func repl(ctx context.Context, sess *session.Session) {
	var (
		openConv *models.Conversation
		nextPage = 2
	)

	printHelp()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if openConv != nil {
			fmt.Printf("[%s] > ", openConv.OtherParticipant.Username)
		} else {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "/quit":
			return

		case line == "/help":
			printHelp()

		case line == "/ls":
			listConversations(sess)

		case strings.HasPrefix(line, "/open "):
			conv := conversationByIndex(sess, strings.TrimPrefix(line, "/open "))
			if conv == nil {
				continue
			}
			if err := sess.OpenConversation(ctx, conv.ID); err != nil {
				fmt.Printf("open failed: %v\n", err)
				continue
			}
			openConv = conv
			nextPage = 2
			showMessages(sess, conv.ID)

		case line == "/close":
			if err := sess.CloseConversation(); err != nil {
				fmt.Printf("close failed: %v\n", err)
			}
			openConv = nil

		case line == "/show":
			if openConv == nil {
				fmt.Println("no open conversation")
				continue
			}
			showMessages(sess, openConv.ID)

		case line == "/older":
			if openConv == nil {
				fmt.Println("no open conversation")
				continue
			}
			hasMore, err := sess.LoadOlderHistory(ctx, openConv.ID, nextPage)
			if err != nil {
				fmt.Printf("backfill failed: %v\n", err)
				continue
			}
			nextPage++
			if !hasMore {
				fmt.Println("(beginning of conversation)")
			}
			showMessages(sess, openConv.ID)

		case line == "":
			// Nothing typed.

		default:
			if openConv == nil {
				fmt.Println("open a conversation first (/ls, /open N)")
				continue
			}
			sendText(ctx, sess, openConv, line)
		}
	}
}

func sendText(ctx context.Context, sess *session.Session, conv *models.Conversation, text string) {
	composer := compose.NewSession(conv.ID, conv.OtherParticipant.ID)
	composer.SetDraft(text)
	command, err := composer.Submit()
	if err != nil {
		fmt.Printf("compose failed: %v\n", err)
		return
	}
	if err := sess.Submit(ctx, command); err != nil {
		fmt.Printf("send failed: %v\n", err)
	}
}

func listConversations(sess *session.Session) {
	conversations, err := sess.Conversations()
	if err != nil {
		fmt.Printf("listing failed: %v\n", err)
		return
	}
	if len(conversations) == 0 {
		fmt.Println("no conversations yet")
		return
	}
	for i, conv := range conversations {
		preview := ""
		if conv.LastMessage != nil {
			preview = conv.LastMessage.Content
		}
		badge := ""
		if conv.UnreadCount > 0 {
			badge = fmt.Sprintf(" (%d unread)", conv.UnreadCount)
		}
		fmt.Printf("%d. %s%s - %s\n", i+1, conv.OtherParticipant.Username, badge, preview)
	}
}

func conversationByIndex(sess *session.Session, raw string) *models.Conversation {
	index, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		fmt.Println("usage: /open N")
		return nil
	}
	conversations, err := sess.Conversations()
	if err != nil {
		fmt.Printf("listing failed: %v\n", err)
		return nil
	}
	if index < 1 || index > len(conversations) {
		fmt.Printf("no conversation %d\n", index)
		return nil
	}
	return conversations[index-1]
}

func showMessages(sess *session.Session, conversationID uuid.UUID) {
	messages, err := sess.Messages(conversationID)
	if err != nil {
		fmt.Printf("loading messages failed: %v\n", err)
		return
	}
	for _, msg := range messages {
		stamp := msg.CreatedAt.Local().Format("15:04")
		suffix := ""
		if msg.EditedAt != nil {
			suffix = " (edited)"
		}
		if msg.Failed {
			suffix = " (failed to send)"
		}
		if msg.Provisional() {
			suffix = " (sending...)"
		}
		fmt.Printf("%s %s: %s%s\n", stamp, msg.Sender.Username, msg.Content, suffix)
	}
}

func printHelp() {
	fmt.Println(`commands:
  /ls        list conversations
  /open N    open conversation N
  /show      reprint the open conversation
  /older     load an older history page
  /close     leave the open conversation
  /quit      sign out
anything else is sent as a message to the open conversation`)
}
