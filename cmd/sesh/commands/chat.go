package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/opensesh/sesh/core/middleware"
	"github.com/opensesh/sesh/providers/ai"
)

var (
	chatProvider    string
	chatModel       string
	chatSystem      string
	chatStream      bool
	chatMaxTokens   int
	chatTemperature float64
	chatTimeout     time.Duration
)

var errNoPrompt = errors.New("no prompt given: pass it as arguments or pipe it on stdin")

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send one prompt and print the answer",
	Long: `Send one prompt to a provider and print the answer.

Examples:
  sesh chat "What is a goroutine?"
  sesh chat --provider openai --model gpt-4o-mini "Summarize RFC 9110"
  git diff | sesh chat --system "You review Go code." --no-stream`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	flags := chatCmd.Flags()
	flags.StringVarP(&chatProvider, "provider", "p", "", "Provider name (default: the active provider)")
	flags.StringVarP(&chatModel, "model", "m", "", "Model identifier (default: the provider's model)")
	flags.StringVarP(&chatSystem, "system", "s", "", "System prompt")
	flags.BoolVar(&chatStream, "stream", true, "Stream the answer as it is generated")
	flags.IntVar(&chatMaxTokens, "max-tokens", ai.DefaultMaxTokens, "Maximum tokens to generate")
	flags.Float64Var(&chatTemperature, "temperature", ai.DefaultTemperature, "Sampling temperature, clamped to the vendor's range")
	flags.DurationVar(&chatTimeout, "timeout", 0, "Abort the call after this long (0 disables)")
	flags.Bool("no-stream", false, "Wait for the complete answer")
}

func runChat(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(args, cmd.InOrStdin(), term.IsTerminal(int(os.Stdin.Fd())))
	if err != nil {
		return err
	}

	providers, err := loadRegistry()
	if err != nil {
		return err
	}
	provider, err := resolveProvider(providers, chatProvider)
	if err != nil {
		return err
	}
	applyChatFlags(cmd, provider)

	configs := callMiddleware()
	if chatTimeout > 0 {
		configs = append(configs, middleware.NewTimeoutMiddleware(chatTimeout))
	}
	wrapped, err := middleware.Wrap(provider, configs...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	messages := []ai.ChatMessage{ai.User(prompt)}
	if noStream, _ := cmd.Flags().GetBool("no-stream"); noStream || !chatStream {
		return runOneShot(ctx, wrapped, messages, cmd.OutOrStdout(), cmd.ErrOrStderr())
	}
	return runStream(ctx, wrapped, messages, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// readPrompt joins args, or reads stdin when there are none and stdin is not
// a terminal.
func readPrompt(args []string, stdin io.Reader, interactive bool) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if interactive {
		return "", errNoPrompt
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errNoPrompt
	}
	return prompt, nil
}

// applyChatFlags copies the explicitly set flags onto the provider.
func applyChatFlags(cmd *cobra.Command, provider ai.Provider) {
	if chatModel != "" {
		provider.SetModel(chatModel)
	}
	if chatSystem != "" {
		provider.SetSystemPrompt(&chatSystem)
	}
	if cmd.Flags().Changed("max-tokens") {
		provider.SetMaxTokens(chatMaxTokens)
	}
	if cmd.Flags().Changed("temperature") {
		provider.SetTemperature(chatTemperature)
	}
}

func runOneShot(ctx context.Context, provider ai.Provider, messages []ai.ChatMessage, stdout, stderr io.Writer) error {
	response, err := provider.Chat(ctx, messages, nil)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, response.Text())
	for _, call := range response.ToolCalls() {
		fmt.Fprintf(stderr, "tool call %s(%s)\n", call.Name, call.Arguments)
	}
	printUsage(stderr, response.Model, response.Usage)
	return nil
}

func runStream(ctx context.Context, provider ai.Provider, messages []ai.ChatMessage, stdout, stderr io.Writer) error {
	stream, err := provider.ChatStream(ctx, messages, nil)
	if err != nil {
		return err
	}
	summary, err := writeStream(stream, stdout)
	if err != nil {
		return err
	}
	for _, call := range summary.toolCalls() {
		fmt.Fprintf(stderr, "tool call %s(%s)\n", call.name, call.arguments)
	}
	printUsage(stderr, summary.model, summary.usage)
	return nil
}

type streamedTool struct {
	name      string
	arguments strings.Builder
}

type streamedCall struct {
	name      string
	arguments string
}

type streamResult struct {
	model string
	usage ai.Usage
	tools map[int]*streamedTool
}

func (r *streamResult) toolCalls() []streamedCall {
	indices := make([]int, 0, len(r.tools))
	for index := range r.tools {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	calls := make([]streamedCall, 0, len(indices))
	for _, index := range indices {
		tool := r.tools[index]
		calls = append(calls, streamedCall{name: tool.name, arguments: tool.arguments.String()})
	}
	return calls
}

// writeStream prints text deltas as they arrive and ends the output with a
// newline once the stream finished.
func writeStream(stream *ai.ChatStream, stdout io.Writer) (*streamResult, error) {
	result := &streamResult{tools: map[int]*streamedTool{}}
	wroteText := false

	for chunk, err := range stream.Iter() {
		if err != nil {
			if wroteText {
				fmt.Fprintln(stdout)
			}
			return nil, err
		}
		switch chunk.Type {
		case ai.ChunkMessageStart:
			result.model = chunk.Model
		case ai.ChunkContentBlockStart:
			if chunk.Block != nil && chunk.Block.Type == ai.BlockToolUse {
				result.tools[chunk.Index] = &streamedTool{name: chunk.Block.Name}
			}
		case ai.ChunkContentBlockDelta:
			if chunk.Delta == nil {
				continue
			}
			switch chunk.Delta.Type {
			case ai.DeltaText:
				fmt.Fprint(stdout, chunk.Delta.Text)
				wroteText = wroteText || chunk.Delta.Text != ""
			case ai.DeltaInputJSON:
				if tool, ok := result.tools[chunk.Index]; ok {
					tool.arguments.WriteString(chunk.Delta.PartialJSON)
				}
			}
		case ai.ChunkMessageDelta:
			if chunk.Usage != nil {
				result.usage = *chunk.Usage
			}
		}
	}

	if wroteText {
		fmt.Fprintln(stdout)
	}
	return result, nil
}

// printUsage is shown only when stderr is a terminal, so piped output stays
// clean.
func printUsage(stderr io.Writer, model string, usage ai.Usage) {
	file, ok := stderr.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return
	}
	fmt.Fprintf(stderr, "\033[2m%s · %d in / %d out tokens\033[0m\n", model, usage.InputTokens, usage.OutputTokens)
}
