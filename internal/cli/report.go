package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrcode/nightscout-basics/internal/app"
	"github.com/mrcode/nightscout-basics/internal/basics"
)

func (c *cli) newReportCmd() *cobra.Command {
	var (
		req    app.ReportRequest
		end    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Compute the basics summary",
		Long: "Compute the basics summary for the configured Nightscout site, or for a JSON\n" +
			"array of device events given with --input.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			if end != "" {
				t, err := time.Parse(time.RFC3339, end)
				if err != nil {
					return fmt.Errorf("--end must be RFC 3339: %w", err)
				}
				req.End = t
			}

			a, err := c.newApp()
			if err != nil {
				return err
			}
			result, err := a.Report(cmd.Context(), req)
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), format, result)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&req.InputPath, "input", "i", "", "Read device events from a JSON file instead of Nightscout")
	flags.StringVar(&req.Units, "units", "", "Blood glucose units, mg/dL or mmol/L")
	flags.StringVar(&req.Timezone, "tz", "", "IANA time zone used for day boundaries")
	flags.IntVar(&req.Days, "days", 0, "Number of days in the report")
	flags.StringVar(&end, "end", "", "Report on the days up to this RFC 3339 time")
	flags.StringVarP(&format, "format", "f", formatJSON, "Output format, json or yaml")
	return cmd
}

func (c *cli) newSectionsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "sections",
		Short: "Print the section template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return write(cmd.OutOrStdout(), format, basics.Template())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "Output format, json or yaml")
	return cmd
}

func (c *cli) newSnapshotCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the state persisted by the last report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			a, err := c.newApp()
			if err != nil {
				return err
			}
			snapshot, err := a.LatestSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), format, snapshot)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "Output format, json or yaml")
	return cmd
}
