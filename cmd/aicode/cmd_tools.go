package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexcodex/aicode/cmd/internal/cliutils"
	"github.com/lexcodex/aicode/framework"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the model can call, builtins and custom",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := bootstrapOptions()
			if err != nil {
				return err
			}
			rt, err := cliutils.Bootstrap(opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			for _, tool := range rt.Registry.List() {
				marker := ""
				if tool.Danger() == framework.DangerConfirm {
					marker = " [confirm]"
				}
				fmt.Fprintf(out, "%s%s: %s\n", tool.Name(), marker, tool.Description())
				for _, p := range tool.Parameters() {
					required := ""
					if p.Required {
						required = ", required"
					}
					fmt.Fprintf(out, "    %s (%s%s) %s\n", p.Name, p.Type, required, p.Description)
				}
			}
			for _, name := range rt.CustomSkipped {
				fmt.Fprintf(out, "skipped custom tool %s: name collides with a builtin\n", name)
			}
			return nil
		},
	}
	return cmd
}
