package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexcodex/aicode/cmd/internal/cliutils"
	"github.com/lexcodex/aicode/framework"
	"github.com/lexcodex/aicode/internal/tui"
)

func newChatCmd() *cobra.Command {
	var sessionName string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive shell (what bare aicode does)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, sessionName)
		},
	}
	cmd.Flags().StringVar(&sessionName, "session", "", "Saved session to restore on startup")
	return cmd
}

func runChat(cmd *cobra.Command, sessionName string) error {
	opts, err := bootstrapOptions()
	if err != nil {
		return err
	}
	opts.OpenStore = true
	opts.StartLSP = true
	rt, err := cliutils.Bootstrap(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	broker := framework.NewConfirmBroker(0)
	rt.Executor.Confirm = broker

	if sessionName != "" {
		if rt.Store == nil {
			return fmt.Errorf("cannot restore %q: session store unavailable", sessionName)
		}
		snap, err := rt.Store.Load(cmd.Context(), sessionName)
		if err != nil {
			return err
		}
		if err := rt.RestoreSession(snap); err != nil {
			return err
		}
	}

	return tui.Run(cmd.Context(), tui.Deps{
		Session:     rt.Session,
		Client:      rt.Client,
		Config:      &rt.Config,
		ConfigPath:  rt.ConfigPath,
		Policy:      rt.Policy,
		Broker:      broker,
		Store:       rt.Store,
		Workspace:   rt.Workspace,
		ContextText: rt.ContextText,
		ReloadTools: rt.ReloadTools,
	})
}
