package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/holdthis/pkg/holdthis"
)

var (
	setCmd = &cobra.Command{
		Use:      "set [topic] [key] [value]",
		Short:    "Sets the value for a key",
		Args:     cobra.ExactArgs(3),
		PreRunE:  openCommandStore,
		PostRunE: closeCommandStore,
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, key := args[0], args[1]

			var value interface{} = args[2]
			var opts []holdthis.SetOption
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				if err := json.Unmarshal([]byte(args[2]), &value); err != nil {
					return fmt.Errorf("value is not valid JSON: %w", err)
				}
				opts = append(opts, holdthis.WithJSON())
			}
			if cmd.Flags().Changed("ttl") {
				ttl, _ := cmd.Flags().GetDuration("ttl")
				opts = append(opts, holdthis.WithTTL(ttl))
			}

			if err := attach(cmd.Context(), store, topic); err != nil {
				return err
			}
			result, err := store.Set(cmd.Context(), topic, key, value, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "set successfully (rows affected: %d)\n", result.RowsAffected)
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:      "get [topic] [key]",
		Short:    "Reads the values matching a key; '*' segments match anything",
		Args:     cobra.ExactArgs(2),
		PreRunE:  openCommandStore,
		PostRunE: closeCommandStore,
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, key := args[0], args[1]
			if err := attach(cmd.Context(), store, topic); err != nil {
				return err
			}
			records, err := store.Get(cmd.Context(), topic, key)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), records)
		},
	}
	cleanCmd = &cobra.Command{
		Use:      "clean [topic...]",
		Short:    "Deletes the expired rows of one or more topics",
		Args:     cobra.MinimumNArgs(1),
		PreRunE:  openCommandStore,
		PostRunE: closeCommandStore,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := attach(cmd.Context(), store, args...); err != nil {
				return err
			}
			removed, err := store.Clean(cmd.Context(), args...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired rows\n", removed)
			return nil
		},
	}
)

func init() {
	setCmd.Flags().Duration("ttl", 0, wrapString("Expire the value after this duration (e.g. 30s, 1h)"))
	setCmd.Flags().Bool("json", false, wrapString("Parse the value as JSON and store it as structured data"))
}

func printRecords(w io.Writer, records []holdthis.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "no records found")
		return nil
	}
	for _, record := range records {
		value := formatValue(record.Value)
		if record.ExpiresAt.IsZero() {
			fmt.Fprintf(w, "key=%s, value=%s\n", record.Key, value)
		} else {
			fmt.Fprintf(w, "key=%s, value=%s, expires=%s\n", record.Key, value, record.ExpiresAt.Format(time.RFC3339))
		}
	}
	return nil
}

// formatValue prints strings as stored and everything else as JSON, falling
// back to %v for values JSON cannot express.
func formatValue(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}
