package app

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hemobank/bo-dashboard/internal/preference"
)

var prefCmd = &cobra.Command{
	Use:   "pref",
	Short: "Read or change the shared auto-refresh preference",
	Long: `Read or change the auto-refresh preference stored in the preference file.

Running serve processes watch the file and apply a change to every view.`,
}

var prefGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the auto-refresh preference",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		enabled, err := readPreference(cmd.Context(), prefFile(cmd))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatBool(enabled))
		return nil
	},
}

var prefSetCmd = &cobra.Command{
	Use:   "set <true|false>",
	Short: "Store the auto-refresh preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, err := writePreference(cmd.Context(), prefFile(cmd), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatBool(enabled))
		return nil
	},
}

func init() {
	prefCmd.PersistentFlags().String("file", "", "Path to the preference file (defaults to the user config directory)")
	prefCmd.AddCommand(prefGetCmd)
	prefCmd.AddCommand(prefSetCmd)
}

func prefFile(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("file")
	if err != nil || path == "" {
		return preference.DefaultPath()
	}
	return path
}

// readPreference returns the stored preference, or the default when nothing
// was ever stored
func readPreference(ctx context.Context, path string) (bool, error) {
	enabled, found, err := preference.NewFilePersistence(path).Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read preference: %w", err)
	}
	if !found {
		return true, nil
	}
	return enabled, nil
}

// writePreference parses value and stores it
func writePreference(ctx context.Context, path, value string) (bool, error) {
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid preference value %q: expected true or false", value)
	}
	if err := preference.NewFilePersistence(path).Save(ctx, enabled); err != nil {
		return false, fmt.Errorf("failed to store preference: %w", err)
	}
	return enabled, nil
}
