// Package commands implements the holdthis command-line interface. It opens a
// store from a config file, flags and HOLDTHIS_* environment variables, and
// offers key-value operations, an HTTP server and a benchmark.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/holdthis/pkg/holdthis"
)

const (
	Version = "0.1.0"
)

var (
	// store is opened by the key-value commands before they run
	store *holdthis.Store

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "holdthis",
		Short: "embedded key-value store",
		Long: fmt.Sprintf(`holdthis (v%s)

An embedded key-value store layered on SQLite or MySQL, with
composite keys, wildcard reads, TTL and buffered writes.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of holdthis",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "holdthis v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(setCmd)
	RootCmd.AddCommand(getCmd)
	RootCmd.AddCommand(cleanCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(benchCmd)

	key := "config"
	RootCmd.PersistentFlags().String(key, "", wrapString("Path to a YAML or JSON config file"))
	key = "engine"
	RootCmd.PersistentFlags().String(key, "sqlite", wrapString("Engine to use (sqlite, mysql)"))
	key = "location"
	RootCmd.PersistentFlags().String(key, ":memory:", wrapString("SQLite database file, or :memory: for a private in-memory database"))
	key = "wal"
	RootCmd.PersistentFlags().Bool(key, true, wrapString("Enable write-ahead logging for file-backed SQLite databases"))
	key = "turbo"
	RootCmd.PersistentFlags().Bool(key, false, wrapString("Append rows instead of replacing values with the same key"))
	key = "verbose"
	RootCmd.PersistentFlags().BoolP(key, "v", false, wrapString("Log debug output to stderr"))
}

// openCommandStore opens the store for key-value commands.
func openCommandStore(cmd *cobra.Command, _ []string) error {
	var err error
	store, err = openStore(cmd)
	return err
}

// closeCommandStore flushes and closes the store opened by openCommandStore.
func closeCommandStore(_ *cobra.Command, _ []string) error {
	if store == nil {
		return nil
	}
	err := store.Close()
	store = nil
	return err
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
