package app

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hemobank/bo-dashboard/internal/config"
)

var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "List the configured views",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		cfg, err := config.LoadConfig(config.WithConfigPath(path))
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return renderViews(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	viewsCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	_ = viewsCmd.MarkFlagRequired("config")
}

// renderViews prints one row per view with its effective timings
func renderViews(w io.Writer, cfg *config.Config) error {
	table := tablewriter.NewWriter(w)
	table.Header("Name", "Endpoint", "Cadence", "Min Interval", "Timeout", "Params")

	for _, v := range cfg.Views {
		t := cfg.ViewTimings(v)
		timeout := t.FetchTimeout.String()
		if t.FetchTimeout == 0 {
			timeout = "none"
		}
		if err := table.Append(
			v.Name,
			v.Endpoint,
			t.Cadence.String(),
			t.MinInterval.String(),
			timeout,
			formatParams(v.Params),
		); err != nil {
			return fmt.Errorf("failed to add row for view %s: %w", v.Name, err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render views: %w", err)
	}
	return nil
}

func formatParams(params map[string]string) string {
	if len(params) == 0 {
		return "-"
	}
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
