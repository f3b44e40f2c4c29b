package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexcodex/aicode/cmd/internal/cliutils"
	"github.com/lexcodex/aicode/llm"
)

func newModelsCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Probe the configured endpoints and list the models they serve",
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

			type namedReport struct {
				Name string `json:"name"`
				llm.ProbeReport
			}
			reports := make([]namedReport, 0, len(cfg.Endpoints))
			for _, name := range cfg.EndpointNames() {
				report := llm.Probe(cmd.Context(), cfg.Endpoints[name])
				reports = append(reports, namedReport{Name: name, ProbeReport: report})
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}
			out := cmd.OutOrStdout()
			for _, report := range reports {
				label := report.Name
				if report.Name == cfg.ActiveEndpoint {
					label += " (active)"
				}
				fmt.Fprintf(out, "%s: %s\n", label, report.Endpoint)
				switch {
				case !report.Healthy:
					fmt.Fprintf(out, "  unreachable: %s\n", report.Error)
				case len(report.Models) == 0:
					fmt.Fprintln(out, "  healthy, no models reported")
				default:
					fmt.Fprintf(out, "  models: %s\n", strings.Join(report.Models, ", "))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit probe reports as JSON")
	return cmd
}
