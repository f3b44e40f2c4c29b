package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexcodex/aicode/cmd/internal/cliutils"
)

var (
	flagWorkspace string
	flagEndpoint  string
	flagModel     string
	flagConfig    string
	flagSafe      bool
	flagUnsafe    bool
	flagDebug     bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aicode",
		Short:         "Chat with local models that can read, run, and edit code",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// bare aicode opens the shell
			return runChat(cmd, "")
		},
	}
	root.PersistentFlags().StringVar(&flagWorkspace, "workspace", ".", "Workspace root the file tools are confined to")
	root.PersistentFlags().StringVar(&flagEndpoint, "endpoint", envOrDefault("AICODE_ENDPOINT", ""), "Endpoint name from the config, or a chat-completions URL")
	root.PersistentFlags().StringVar(&flagModel, "model", envOrDefault("AICODE_MODEL", ""), "Model to chat with")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default .aicode/config.toml under the workspace)")
	root.PersistentFlags().BoolVar(&flagSafe, "safe", false, "Force safe mode on, overriding the config")
	root.PersistentFlags().BoolVar(&flagUnsafe, "unsafe", false, "Run confirm-required tools without prompting")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Log request and response payloads")

	root.AddCommand(newChatCmd(), newAskCmd(), newModelsCmd(), newToolsCmd(), newSessionsCmd(), newSetupCmd())
	return root
}

// bootstrapOptions folds the persistent flags into bootstrap options.
func bootstrapOptions() (cliutils.Options, error) {
	if flagSafe && flagUnsafe {
		return cliutils.Options{}, errors.New("--safe and --unsafe are mutually exclusive")
	}
	opts := cliutils.Options{
		Workspace:  flagWorkspace,
		ConfigPath: flagConfig,
		Endpoint:   flagEndpoint,
		Model:      flagModel,
		Debug:      flagDebug,
	}
	if flagSafe {
		mode := true
		opts.SafeMode = &mode
	}
	if flagUnsafe {
		mode := false
		opts.SafeMode = &mode
	}
	return opts, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
