package main

import (
	"fmt"
	"regexp"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/diegocamara89/meu-venom-bot/internal/apperror"
	"github.com/diegocamara89/meu-venom-bot/internal/config"
	"github.com/diegocamara89/meu-venom-bot/internal/logger"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	loadConfig := func() *config.Config {
		if cfgFile != "" {
			return config.LoadFile(cfgFile)
		}
		return config.Load()
	}

	// loadApp builds the config-backed services for one-shot commands.
	loadApp := func() (*app, *config.Config, error) {
		cfg := loadConfig()
		log := logger.New(cfg.Env, cfg.LogLevel)
		a, err := newApp(cfg, log)
		return a, cfg, err
	}

	root := &cobra.Command{
		Use:   "venom-relay",
		Short: "Whitelist-gated WhatsApp to webhook relay",
		Long: `venom-relay receives messages from a WhatsApp gateway, drops those from
senders that are not whitelisted, and forwards the rest to every registered
webhook.

Start the server:
  venom-relay serve

Manage the whitelist offline:
  venom-relay whitelist add "+55 11 99999-9999"`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_FILE)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), loadConfig())
		},
	}

	root.AddCommand(serveCmd, newWhitelistCmd(loadApp), newBackupCmd(loadApp))
	return root
}

type appLoader func() (*app, *config.Config, error)

func newWhitelistCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage authorized sender numbers",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print every whitelisted number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := load()
			if err != nil {
				return err
			}
			for _, n := range a.whitelist.List() {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <number>",
		Short: "Authorize a number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := load()
			if err != nil {
				return err
			}
			n, err := a.whitelist.Add(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", n)
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <number>",
		Short: "Revoke a number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := load()
			if err != nil {
				return err
			}
			removed, err := a.whitelist.Remove(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%w: number %s", apperror.ErrNotFound, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}

	var pattern string
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove every number that does not match a pattern",
		Long: `Remove every whitelisted number that does not match --pattern
(default $WHITELIST_PATTERN, Brazilian mobile and landline numbers).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cfg, err := load()
			if err != nil {
				return err
			}
			if pattern == "" {
				pattern = cfg.WhitelistPattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
			removed, err := a.whitelist.Prune(re)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, n := range removed {
				fmt.Fprintf(out, "removed %s\n", n)
			}
			fmt.Fprintf(out, "%d removed, %d kept\n", len(removed), a.whitelist.Len())
			return nil
		},
	}
	pruneCmd.Flags().StringVar(&pattern, "pattern", "", "regular expression numbers must match")

	cmd.AddCommand(listCmd, addCmd, removeCmd, pruneCmd)
	return cmd
}

func newBackupCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot and restore the config documents",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Take a snapshot now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := load()
			if err != nil {
				return err
			}
			snap, err := a.backups.Create()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", snap.ID, strings.Join(snap.Files, ", "))
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := load()
			if err != nil {
				return err
			}
			snaps, err := a.backups.List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIMESTAMP\tFILES")
			for _, s := range snaps {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Timestamp.Format("2006-01-02 15:04:05"), strings.Join(s.Files, ","))
			}
			return tw.Flush()
		},
	}

	restoreCmd := &cobra.Command{
		Use:   "restore <backup-id>",
		Short: "Restore a snapshot over the live documents",
		Long: `Restore a snapshot over the live documents. Every file is verified
against its hash first; the previous documents are kept as .bak files.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := load()
			if err != nil {
				return err
			}
			meta, err := a.backups.Restore(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s from %s\n", strings.Join(meta.Files, ", "), meta.Timestamp.Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	cmd.AddCommand(createCmd, listCmd, restoreCmd)
	return cmd
}
