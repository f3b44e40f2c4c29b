package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexcodex/aicode/cmd/internal/cliutils"
	"github.com/lexcodex/aicode/persistence"
)

func newSessionsCmd() *cobra.Command {
	var dbPath string
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage saved sessions",
	}
	sessionsCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Session database (default .aicode/sessions.db under the workspace)")

	openStore := func() (*persistence.SQLiteSessionStore, error) {
		path := dbPath
		if path == "" {
			workspace, err := cliutils.ResolveWorkspace(flagWorkspace)
			if err != nil {
				return nil, err
			}
			path = cliutils.SessionDBPath(workspace)
		}
		return persistence.NewSQLiteSessionStore(path)
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			infos, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d turns\t%d messages\t%s\n",
					info.Name, info.Model, info.Turns, info.Messages, info.SavedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a saved session as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("session name required")
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			snap, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("session name required")
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Delete(cmd.Context(), args[0])
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export <name> [file]",
		Short: "Write a saved session to a JSON transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("session name required")
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			snap, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path := args[0] + ".json"
			if len(args) > 1 {
				path = args[1]
			}
			if err := persistence.WriteTranscript(path, snap); err != nil {
				return err
			}
			cmd.Printf("wrote %s\n", path)
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store a JSON transcript as a saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("transcript file required")
			}
			snap, err := persistence.ReadTranscript(args[0])
			if err != nil {
				return err
			}
			if name, _ := cmd.Flags().GetString("name"); name != "" {
				snap.Name = name
			}
			if snap.Name == "" {
				return errors.New("transcript has no session name, pass --name")
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Save(cmd.Context(), snap); err != nil {
				return err
			}
			cmd.Printf("imported session %s: %d messages\n", snap.Name, len(snap.Messages))
			return nil
		},
	}
	importCmd.Flags().String("name", "", "Store under this name instead of the transcript's")

	sessionsCmd.AddCommand(listCmd, showCmd, deleteCmd, exportCmd, importCmd)
	return sessionsCmd
}
