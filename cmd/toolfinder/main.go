// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/geekhive/toolfinder/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configFile string
	viper      *viper.Viper
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{viper: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "toolfinder",
		Short: "Recommend software tools for a described workflow",
		Long: `toolfinder recommends software tools from a free-text description of a workflow.

It retrieves candidates from a vector-indexed catalog, re-ranks them with a
language model and explains why each one fits. Without a database URL the
bundled sample catalog is served from memory.

Settings come from an optional config file, TOOLFINDER_* environment variables
and flags, in increasing order of precedence.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to a config file (yaml, json or toml); watched for changes")
	flags.String("database-url", "", "Postgres connection string; empty serves the sample catalog from memory")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-file", "", "Path to a json log file, in addition to stderr")
	_ = opts.viper.BindPFlag("database_url", flags.Lookup("database-url"))
	_ = opts.viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = opts.viper.BindPFlag("log.file", flags.Lookup("log-file"))

	rootCmd.AddCommand(
		newServeCommand(opts),
		newMCPCommand(opts),
		newMigrateCommand(opts),
		newSeedCommand(opts),
		newReindexCommand(opts),
		newRecommendCommand(opts),
		newSearchCommand(opts),
	)

	return rootCmd
}
