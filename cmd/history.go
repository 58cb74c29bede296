package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
)

// HistoryMessage is one prior message as returned by the history endpoint.
type HistoryMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type historyResponse struct {
	Success  bool             `json:"success"`
	Messages []HistoryMessage `json:"messages"`
	Error    string           `json:"error"`
}

// fetchHistory returns the server's ordered message list for the current
// session. Display only.
func fetchHistory(sess *ChatSessionContext) ([]HistoryMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildHistoryURL(sess), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if sess.SessionID != "" {
		req.Header.Set("X-Session-ID", sess.SessionID)
	}
	resp, err := sess.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request failed: %s", prettyServerError(resp, body))
	}
	var parsed historyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("history request failed: %s", parsed.Error)
	}
	return parsed.Messages, nil
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the conversation history for the current session",
	Run: func(cmd *cobra.Command, args []string) {
		sess := newDefaultSessionContext()
		messages, err := fetchHistory(sess)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(messages) == 0 {
			fmt.Println("No history for this session.")
			return
		}
		width, _, _ := term.GetSize(uintptr(os.Stdout.Fd()))
		if width <= 0 {
			width = 80
		}
		userStyle := lipgloss.NewStyle().Bold(true)
		for _, msg := range messages {
			switch msg.Role {
			case "user":
				fmt.Println(userStyle.Render("> ") + msg.Content)
			case "assistant":
				// Assistant entries go through the same structured-markup
				// pass as live completed answers.
				fmt.Print(renderFinalAnswer(msg.Content, width).Text)
			default:
				fmt.Println(msg.Content)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
