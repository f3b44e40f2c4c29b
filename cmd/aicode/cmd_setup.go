package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexcodex/aicode/cmd/internal/cliutils"
	"github.com/lexcodex/aicode/cmd/internal/setup"
	"github.com/lexcodex/aicode/internal/config"
)

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Probe endpoints and language servers, then write the config",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := bootstrapOptions()
			if err != nil {
				return err
			}
			env, err := cliutils.ResolveEnv(opts)
			if err != nil {
				return err
			}
			cfg := env.Config
			report := setup.Detect(cmd.Context(), env.Workspace, &cfg)
			if err := config.Save(env.ConfigPath, cfg); err != nil {
				return err
			}
			cmd.Printf("Config saved to %s\n", env.ConfigPath)
			printSetupReport(cmd, cfg, report)
			return nil
		},
	}
	return cmd
}

func printSetupReport(cmd *cobra.Command, cfg config.Config, report *setup.Report) {
	cmd.Printf("Active endpoint: %s (%s)\n", cfg.ActiveEndpoint, cfg.EndpointURL())
	cmd.Printf("Model: %s\n", cfg.Model)
	if report.OllamaPath != "" {
		cmd.Printf("Ollama binary: %s\n", report.OllamaPath)
	}
	cmd.Println("Endpoints:")
	for _, ep := range report.Endpoints {
		status := "unreachable"
		if ep.Healthy {
			status = "healthy"
		}
		cmd.Printf("  - %s (%s): %s", ep.Name, ep.URL, status)
		if len(ep.Models) > 0 {
			cmd.Printf(", models: %s", strings.Join(ep.Models, ", "))
		}
		if ep.Error != "" {
			cmd.Printf(" [%s]", ep.Error)
		}
		cmd.Println()
	}
	cmd.Println("Language servers:")
	for _, server := range report.Servers {
		status := "missing"
		if server.Available {
			status = "available"
		}
		cmd.Printf("  - %s (%s): %s", server.Language, server.Command, status)
		if server.Files > 0 {
			cmd.Printf(" files=%d", server.Files)
		}
		cmd.Println()
	}
	if !cfg.LSP.Enabled {
		cmd.Println("No language servers wired; analyze_code falls back to text metrics")
	}
}
