// cmd/dreamctl/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/senushidinara/DreamStruct/internal/config"
	"github.com/senushidinara/DreamStruct/internal/llm"
	_ "github.com/senushidinara/DreamStruct/internal/llm/providers/google"
	"github.com/senushidinara/DreamStruct/internal/services"
	"github.com/senushidinara/DreamStruct/internal/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
	verbose bool
}

// newProvider builds the model backend. Tests swap it for a fake.
var newProvider = func(opts *rootOptions) (llm.Provider, error) {
	key := opts.apiKey
	if key == "" {
		key = config.EnvAPIKey()
	}
	if key == "" {
		return nil, fmt.Errorf("%w: set API_KEY or GEMINI_API_KEY, or pass --api-key", llm.ErrMissingAPIKey)
	}

	providerConfig := map[string]string{
		"api_key":       key,
		"default_model": opts.model,
	}
	if opts.baseURL != "" {
		providerConfig["base_url"] = opts.baseURL
	}
	return llm.GetProvider(config.DefaultProvider, providerConfig)
}

func (o *rootOptions) llmService() (*services.LLMService, error) {
	provider, err := newProvider(o)
	if err != nil {
		return nil, err
	}
	return services.NewLLMServiceWithProvider(config.DefaultProvider, provider, o.timeout, nil), nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "dreamctl",
		Short: "DreamStruct - architectural concepts from a prompt",
		Long: `dreamctl generates architectural designs with Gemini, analyses their
feasibility and prints the 3D scene description the viewer draws.

The API key is read from --api-key, API_KEY or GEMINI_API_KEY (a .env file in
the working directory is loaded first).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			if opts.model == "" {
				opts.model = os.Getenv("LLM_MODEL")
			}
			if opts.model == "" {
				opts.model = config.DefaultModel
			}

			// stdout carries command output; logs go to stderr
			logger := utils.GetLogger()
			logger.Redirect(cmd.ErrOrStderr())
			logger.SetDebug(opts.verbose)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			utils.GetLogger().Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.apiKey, "api-key", "", "Gemini API key")
	flags.StringVar(&opts.model, "model", "", "model name (default $LLM_MODEL or "+config.DefaultModel+")")
	flags.StringVar(&opts.baseURL, "base-url", "", "override the Gemini API endpoint")
	flags.DurationVar(&opts.timeout, "timeout", 0, "timeout per model call (0 = none)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newGenerateCmd(opts),
		newAnalyzeCmd(opts),
		newSceneCmd(),
		newThemesCmd(),
		newServeCmd(),
	)
	return root
}
