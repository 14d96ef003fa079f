package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	chatlink "github.com/chatlink-io/chatlink-go"
	"github.com/spf13/cobra"
)

var (
	chatThread  string
	chatHistory bool
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatThread, "thread", "", "thread ID to send messages to")
	chatCmd.Flags().BoolVar(&chatHistory, "history", false, "backfill thread history before chatting")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Connect and chat from the terminal",
	Long: "Open the chat connection, print inbound messages as they arrive, and send\n" +
		"each stdin line as an outbound message. Lines typed while the connection is\n" +
		"down are queued and delivered in order on reconnect.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Default.BaseURL == "" {
			return fmt.Errorf("no base URL configured; run 'chatlink config set default.base_url <url>' first")
		}

		opts := []chatlink.Option{chatlink.WithToken(cfg.Auth.Token)}
		if cfg.Default.MaxReconnectAttempts > 0 {
			opts = append(opts, chatlink.WithMaxReconnectAttempts(cfg.Default.MaxReconnectAttempts))
		}
		client := chatlink.NewClient(cfg.Default.BaseURL, opts...)
		defer client.Close()

		client.OnStateChange(func(state chatlink.ConnState) {
			fmt.Fprintf(os.Stderr, "[%s]\n", state)
		})
		client.OnReconnecting(func(attempt int, delay time.Duration) {
			fmt.Fprintf(os.Stderr, "[retry %d in %s]\n", attempt, delay)
		})
		client.OnMessage(func(threadID string, msg chatlink.Message) {
			fmt.Printf("%s %s: %s\n", threadID, msg.Role, renderContent(msg.Content))
		})
		client.OnThreadSwitch(func(threadID string) {
			fmt.Fprintf(os.Stderr, "[switched to thread %s]\n", threadID)
		})

		client.Connect()

		if chatHistory && chatThread != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			state, err := client.FetchThreadHistory(ctx, chatThread)
			cancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "history backfill failed: %v\n", err)
			} else {
				for _, msg := range state.Messages {
					fmt.Printf("%s %s: %s\n", chatThread, msg.Role, renderContent(msg.Content))
				}
			}
		}

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" {
				break
			}
			payload := map[string]any{"type": "message", "content": line}
			if chatThread != "" {
				payload["threadId"] = chatThread
			}
			if err := client.Send(payload); err != nil {
				fmt.Fprintf(os.Stderr, "send: %v\n", err)
			}
			if queued := len(client.Snapshot().MessageQueue); queued > 0 {
				fmt.Fprintf(os.Stderr, "[%d message(s) queued for delivery]\n", queued)
			}
		}
		return scanner.Err()
	},
}

func renderContent(content json.RawMessage) string {
	var s string
	if json.Unmarshal(content, &s) == nil {
		return s
	}
	return string(content)
}
