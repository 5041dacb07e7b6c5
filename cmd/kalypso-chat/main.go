package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dskvich/kalypso-relay/pkg/chatclient"
	"github.com/dskvich/kalypso-relay/pkg/domain"
	"github.com/dskvich/kalypso-relay/pkg/version"
)

type chatOptions struct {
	context     string
	threadID    string
	assistantID string
	tutorName   string
	audio       bool
	audioDir    string
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var relayURL string

	rootCmd := &cobra.Command{
		Use:          "kalypso-chat",
		Short:        "Talk to a Kalypso relay from the terminal",
		Version:      version.Get("kalypso-chat").String(),
		SilenceUsage: true,
	}

	defaultURL := os.Getenv("KALYPSO_RELAY_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&relayURL, "url", defaultURL, "relay base URL (env KALYPSO_RELAY_URL)")

	newClient := func() *chatclient.Client { return chatclient.New(relayURL, nil) }

	rootCmd.AddCommand(newChatCmd(newClient), newUnlockCmd(newClient))
	return rootCmd
}

func newChatCmd(newClient func() *chatclient.Client) *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a message, or start an interactive session when none is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			out := cmd.OutOrStdout()

			if len(args) > 0 {
				_, err := runTurn(cmd.Context(), client, out, opts, strings.Join(args, " "))
				return err
			}

			fmt.Fprintln(out, "Type a message and press Enter. Ctrl+D to quit.")
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "you> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				message := strings.TrimSpace(scanner.Text())
				if message == "" {
					continue
				}
				threadID, err := runTurn(cmd.Context(), client, out, opts, message)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					continue
				}
				opts.threadID = threadID
			}
		},
	}

	cmd.Flags().StringVar(&opts.context, "context", "", "page context sent with the message")
	cmd.Flags().StringVar(&opts.threadID, "thread", "", "continue an existing thread")
	cmd.Flags().StringVar(&opts.assistantID, "assistant", "", "override the relay's default assistant")
	cmd.Flags().StringVar(&opts.tutorName, "tutor", "", "tutor name used in the assistant persona")
	cmd.Flags().BoolVar(&opts.audio, "audio", false, "request a spoken version of the reply")
	cmd.Flags().StringVar(&opts.audioDir, "audio-dir", ".", "where to save audio clips")

	return cmd
}

// runTurn prints one reply as it streams and returns the thread id.
func runTurn(ctx context.Context, client *chatclient.Client, out io.Writer, opts *chatOptions, message string) (string, error) {
	var threadID string

	last, err := client.Chat(ctx, domain.ChatRequest{
		Message:       message,
		Context:       opts.context,
		ThreadID:      opts.threadID,
		GenerateAudio: opts.audio,
		AssistantID:   opts.assistantID,
		TutorName:     opts.tutorName,
	}, func(e domain.StreamEvent) {
		switch e.Type {
		case domain.EventThreadID:
			threadID = e.Value
			fmt.Fprint(out, "kalypso> ")
		case domain.EventTextDelta:
			fmt.Fprint(out, e.Value)
		case domain.EventAudioData:
			path, err := saveAudio(opts.audioDir, threadID, e.Value)
			if err != nil {
				fmt.Fprintf(out, "\n[audio not saved: %v]", err)
				return
			}
			fmt.Fprintf(out, "\n[audio saved to %s]", path)
		case domain.EventAudioStatus:
			fmt.Fprintf(out, "\n[voice unavailable: %s]", e.Message)
		}
	})
	fmt.Fprintln(out)
	if err != nil {
		return threadID, err
	}

	if last.Type == domain.EventError {
		return threadID, errors.New(last.Message)
	}
	return threadID, nil
}

func saveAudio(dir, threadID, b64 string) (string, error) {
	audio, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decoding audio: %w", err)
	}

	f, err := os.CreateTemp(dir, "kalypso-"+threadID+"-*.mp3")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.Write(audio); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func newUnlockCmd(newClient func() *chatclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <code>",
		Short: "Check an access code against the relay's gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().Unlock(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("access denied: %s", resp.Error)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Access granted.")
			return nil
		},
	}
}
