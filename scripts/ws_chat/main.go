// Command ws_chat is a manual smoke client for the chat socket: it joins a
// channel, prints the frames it receives and sends stdin lines as chat
// messages.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080", "server base address")
	channel := flag.String("channel", "42", "channel key to join")
	userID := flag.String("user", "", "userId to identify as (optional)")
	token := flag.String("token", "", "JWT to identify with (wins over -user)")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	target := *addr + "/ws/chat/" + url.PathEscape(*channel)
	query := url.Values{}
	if *token != "" {
		query.Set("token", *token)
	} else if *userID != "" {
		query.Set("userId", *userID)
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to channel %s at %s\n", *channel, *addr)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *userID)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame map[string]any
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch frame["type"] {
		case "presence_update":
			fmt.Printf("[presence] online: %v\n", frame["online_users"])
		case "chat":
			fmt.Printf("[%v] %v\n", frame["userId"], frame["text"])
		default:
			raw, err := json.Marshal(frame)
			if err != nil {
				log.Printf("marshal frame: %v", err)
				continue
			}
			fmt.Printf("frame: %s\n", raw)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, userID string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			frame := map[string]any{
				"type":      "chat",
				"text":      text,
				"timestamp": time.Now().UnixMilli(),
			}
			if userID != "" {
				frame["userId"] = userID
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
