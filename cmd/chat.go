package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
)

var (
	chatInputFile  string
	chatUploadFile string
)

// chatCmd represents the `medchat chat` command
var chatCmd = &cobra.Command{
	Use:   "chat [\"question\"]",
	Short: "Chat with the medical assistant",
	Long: `Chat with the medical assistant. With no arguments an interactive
session starts; with a question (inline or via --file) the answer is printed
once and the command exits.

Examples:
  # Interactive session
  medchat chat

  # One-time question
  medchat chat "What are common symptoms of diabetes?"

  # Question from a file
  medchat chat -f ./question.txt

  # Ask about an uploaded document
  medchat chat --upload ./report.pdf "Summarize the key findings"`,

	Args: func(cmd *cobra.Command, args []string) error {
		if chatInputFile != "" && len(args) > 0 {
			return fmt.Errorf("specify either --file or an inline question, not both")
		}
		if chatUploadFile != "" && chatInputFile == "" && len(args) == 0 {
			return fmt.Errorf("--upload requires a question")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		var input string
		if chatInputFile != "" {
			data, err := os.ReadFile(chatInputFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading file '%s': %v\n", chatInputFile, err)
				os.Exit(1)
			}
			input = string(data)
		} else if len(args) > 0 {
			input = args[0]
		}

		if chatUploadFile != "" {
			if err := runFileQuestion(chatUploadFile, input); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}

		if input == "" {
			runChatSessionTUI()
			return
		}

		if err := runOneShot(input); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// runOneShot drives the full pipeline once without the TUI: streaming first,
// fallback with retry/backoff on transport failure, final structured render
// to stdout.
func runOneShot(question string) error {
	sess := newDefaultSessionContext()

	session := NewStreamSession(question, func(ctx context.Context, q string) (io.ReadCloser, error) {
		return openAnswerStream(ctx, q, sess)
	})
	go session.Run(context.Background())

	var final string
	var transportErr error
	var streamErrMsg string
	for ev := range session.Events() {
		switch ev := ev.(type) {
		case EventCompleted:
			final = ev.Final
		case EventStreamError:
			streamErrMsg = ev.Message
		case EventTransportFailure:
			transportErr = ev.Err
		}
	}

	// A server-reported error frame is terminal; no fallback.
	if streamErrMsg != "" {
		return fmt.Errorf("%s", streamErrMsg)
	}

	if transportErr != nil {
		logDebug(fmt.Sprintf("streaming failed, using fallback: %v", transportErr))
		answer, err := NewFallbackClient(sess).Ask(context.Background(), question)
		if err != nil {
			if fbErr, ok := err.(*FallbackError); ok {
				return fmt.Errorf("%s", fbErr.Class.UserMessage())
			}
			return err
		}
		final = answer
	}

	if final == "" {
		fmt.Println("No response received")
		return nil
	}
	width, _, _ := term.GetSize(uintptr(os.Stdout.Fd()))
	fmt.Print(renderFinalAnswer(final, width).Text)
	return nil
}

// runFileQuestion asks a question about a local document in one request and
// prints the rendered answer.
func runFileQuestion(path, question string) error {
	sess := newDefaultSessionContext()
	answer, err := askAboutFile(sess, path, question)
	if err != nil {
		return err
	}
	if answer == "" {
		fmt.Println("No response received")
		return nil
	}
	width, _, _ := term.GetSize(uintptr(os.Stdout.Fd()))
	fmt.Print(renderFinalAnswer(answer, width).Text)
	return nil
}

func init() {
	chatCmd.Flags().StringVarP(&chatInputFile, "file", "f", "", "path to file containing the question")
	chatCmd.Flags().StringVarP(&chatUploadFile, "upload", "u", "", "path to a document to upload and ask about")
	rootCmd.AddCommand(chatCmd)
}
