package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alantheprice/sitebuilder/pkg/agent"
	"github.com/alantheprice/sitebuilder/pkg/workspace"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	agentModel  string
	agentQuiet  bool
	agentAPIKey string
)

var agentCmd = &cobra.Command{
	Use:   "agent [prompt]",
	Short: "Apply one prompt to the workspace",
	Long: `Sends the prompt and the builder system prompt to the model, streams the
reply to stdout and applies the returned file patches to the workspace.

The API key comes from --api-key, llm.api_key or OPENROUTER_API_KEY. When
none is set and stdin is a terminal, it is asked for.

Examples:
  sitebuilder agent "add a pricing section to index.html"
  echo "make the header blue" | sitebuilder agent`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := agentPrompt(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		apiKey := agentAPIKey
		if apiKey == "" {
			apiKey = cfg.LLM.APIKey
		}
		if apiKey == "" {
			apiKey, err = promptAPIKey(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
		}

		root, err := workspaceRoot()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		req := agent.RunRequest{
			Root:   root,
			APIKey: apiKey,
			Model:  agentModel,
			Prompt: prompt,
		}
		if !agentQuiet {
			req.OnToken = func(token string) { io.WriteString(out, token) }
		}

		result, err := newAgent(nil, workspace.NewLocker()).Run(cmd.Context(), req)
		if !agentQuiet {
			fmt.Fprintln(out)
		}
		if err != nil {
			return err
		}
		if !result.Success {
			return errors.New(result.Error)
		}

		if len(result.Changes) == 0 {
			fmt.Fprintln(out, "No changes.")
			return nil
		}
		for _, c := range result.Changes {
			fmt.Fprintf(out, "%s %s (+%d -%d)\n", c.Action, c.Path, c.Insertions, c.Deletions)
		}
		return nil
	},
}

func init() {
	agentCmd.Flags().StringVarP(&agentModel, "model", "m", "", "model to use (overrides llm.model)")
	agentCmd.Flags().StringVar(&agentAPIKey, "api-key", "", "API key for the completion endpoint")
	agentCmd.Flags().BoolVarP(&agentQuiet, "quiet", "q", false, "do not echo the streamed reply")
}

// agentPrompt takes the prompt from args, or from stdin when it is piped.
func agentPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		if strings.TrimSpace(args[0]) == "" {
			return "", errors.New("prompt cannot be empty")
		}
		return args[0], nil
	}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", errors.New("a prompt is required: sitebuilder agent \"your request\"")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("prompt cannot be empty")
	}
	return prompt, nil
}

// promptAPIKey reads a key from the terminal without echoing it.
func promptAPIKey(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no API key configured: set OPENROUTER_API_KEY or llm.api_key")
	}
	fmt.Fprint(w, "API key: ")
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	k := strings.TrimSpace(string(key))
	if k == "" {
		return "", errors.New("API key cannot be empty")
	}
	return k, nil
}
