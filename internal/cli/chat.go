package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/harun/aura/pkg/agent"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var chatMessage string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with Aura in the terminal",
	Long: `Send a single message with --message, or start an interactive session.
In interactive mode type "exit" or "quit" to leave.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "send one message and exit")
	rootCmd.AddCommand(chatCmd)
}

// Terminal renderings of exchange failures. Details go to the log file.
const (
	replyMessageRequired = "Message is required"
	replyNoResponse      = "No response from AI"
	replyChatFailed      = "Failed to get response from AI"
)

func runChat(cmd *cobra.Command, args []string) error {
	d, cleanup, err := openDaemon(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	runner := d.GetRunner()
	log := d.GetLogger().Component("chat")
	out := cmd.OutOrStdout()

	if strings.TrimSpace(chatMessage) != "" {
		reply, ok := chatOnce(cmd.Context(), runner, log, chatMessage)
		if !ok {
			return errors.New(reply)
		}
		fmt.Fprintln(out, reply)
		return nil
	}

	return chatLoop(cmd.Context(), runner, log, cmd.InOrStdin(), out)
}

// chatOnce runs one exchange and returns the text to show the user. ok is
// false when the exchange failed; the reply is then a generic message and
// the cause is logged.
func chatOnce(ctx context.Context, runner *agent.Runner, log zerolog.Logger, text string) (reply string, ok bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := runner.HandleUserMessage(ctx, text)
	switch {
	case err == nil:
		return result.Reply, true
	case errors.Is(err, agent.ErrNoResponse):
		return replyNoResponse, true
	case errors.Is(err, agent.ErrInvalidMessage):
		return replyMessageRequired, false
	default:
		log.Error().Err(err).Msg("Chat exchange failed")
		return replyChatFailed, false
	}
}

func chatLoop(ctx context.Context, runner *agent.Runner, log zerolog.Logger, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, `Aura chat. Type "exit" to quit.`)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply, ok := chatOnce(ctx, runner, log, text)
		if !ok {
			fmt.Fprintf(out, "Error: %s\n", reply)
			continue
		}
		fmt.Fprintf(out, "Aura: %s\n", reply)
	}
}
