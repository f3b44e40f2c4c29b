package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexcodex/aicode/cmd/internal/cliutils"
	"github.com/lexcodex/aicode/framework"
	"github.com/lexcodex/aicode/llm"
)

func newAskCmd() *cobra.Command {
	var jsonOut bool
	var approve bool
	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send one prompt, print the reply and any tool output, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				prompt = strings.TrimSpace(string(data))
			}
			if prompt == "" {
				return errors.New("prompt required, as arguments or on stdin")
			}

			opts, err := bootstrapOptions()
			if err != nil {
				return err
			}
			rt, err := cliutils.Bootstrap(opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			// no terminal loop to prompt from, so confirm-required tools
			// run only with an up-front --yes
			rt.Executor.Confirm = framework.StaticConfirmer(approve)

			result, err := rt.Session.RunTurn(cmd.Context(), prompt, nil)
			if err != nil {
				if errors.Is(err, llm.ErrConnection) {
					return fmt.Errorf("%v (aicode models probes the configured endpoints)", err)
				}
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"reply":   result.Reply,
					"results": result.Results,
				})
			}
			out := cmd.OutOrStdout()
			if result.Reply != "" {
				fmt.Fprintln(out, result.Reply)
			}
			for _, res := range result.Results {
				if res.Success {
					fmt.Fprintf(out, "\n[%s] ok in %s\n", res.Call.Name, res.Duration.Round(time.Millisecond))
					if res.Output != "" {
						fmt.Fprintln(out, res.Output)
					}
				} else {
					fmt.Fprintf(out, "\n[%s] failed (%s): %s\n", res.Call.Name, res.Failure, res.Error)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the turn result as JSON")
	cmd.Flags().BoolVar(&approve, "yes", false, "Approve confirm-required tools without prompting")
	return cmd
}
