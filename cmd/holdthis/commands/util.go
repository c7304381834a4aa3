package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slog"

	"github.com/rzpsarthak13/holdthis/pkg/holdthis"
)

const (
	// wrap is the number of characters to wrap the help text at
	wrap int = 50
)

// wrapString wraps a string at wrap characters
func wrapString(text string) string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > wrap {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// initConfig loads .env files and makes every flag settable as HOLDTHIS_<FLAG>.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("holdthis")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig builds the store configuration from --config, then applies the
// engine flags that were set on the command line or in the environment.
func loadConfig() (*holdthis.Config, error) {
	config := holdthis.DefaultConfig()
	if path := viper.GetString("config"); path != "" {
		loaded, err := holdthis.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if viper.IsSet("engine") {
		config.Engine.Type = viper.GetString("engine")
	}
	if viper.IsSet("location") {
		config.Engine.Location = viper.GetString("location")
	}
	if viper.IsSet("wal") {
		config.Engine.EnableWAL = viper.GetBool("wal")
	}
	if viper.IsSet("turbo") {
		config.Turbo = viper.GetBool("turbo")
	}

	config.Logger = newLogger(viper.GetBool("verbose"))
	return config, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore binds the command flags and opens the configured store.
func openStore(cmd *cobra.Command) (*holdthis.Store, error) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := holdthis.OpenContext(cmd.Context(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

// attach makes topics written by earlier runs readable in this process.
func attach(ctx context.Context, s *holdthis.Store, topics ...string) error {
	for _, topic := range topics {
		if _, _, err := s.Attach(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}
