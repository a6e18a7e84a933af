// Package cmd holds the camctl subcommands besides the daemon itself.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/camctl/internal/logging"
	"github.com/smazurov/camctl/internal/mp4"
)

// CreateRepairCmd creates the repair command.
func CreateRepairCmd() *cobra.Command {
	var slack uint32
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "repair <file.mp4>...",
		Short: "Fix the leading audio timestamp defect of recordings",
		Long: `Rewrites recordings whose first audio sample delta is inflated, dropping ` +
			`leading audio samples so audio and video durations match. Clean files are left untouched.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repairer := mp4.Repairer{Slack: slack, Logger: logging.GetLogger("repair")}
			reports := make([]mp4.Report, 0, len(args))
			for _, path := range args {
				report, err := repairer.Repair(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("repair %s: %w", path, err)
				}
				reports = append(reports, report)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), reports)
			}
			for _, r := range reports {
				switch {
				case r.Repaired:
					fmt.Fprintf(cmd.OutOrStdout(), "%s: repaired, dropped %d audio samples\n", r.Path, r.RemovedSamples)
				case r.Skipped != "":
					fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped, %s\n", r.Path, r.Skipped)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%s: clean\n", r.Path)
				}
			}
			return nil
		},
	}

	cmd.Flags().Uint32Var(&slack, "slack", mp4.DefaultSlack, "How far the first sample delta may exceed the second, in track timescale units")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print reports as JSON")
	return cmd
}

// CreateInspectCmd creates the inspect command.
func CreateInspectCmd() *cobra.Command {
	var slack uint32
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <file.mp4>",
		Short: "Print per-track timing of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := mp4.Inspect(args[0])
			if err != nil {
				return fmt.Errorf("inspect %s: %w", args[0], err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			return writeSummary(cmd.OutOrStdout(), summary, slack)
		},
	}

	cmd.Flags().Uint32Var(&slack, "slack", mp4.DefaultSlack, "Threshold for flagging an inflated first delta")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}

func writeSummary(w io.Writer, s mp4.Summary, slack uint32) error {
	fmt.Fprintf(w, "movie: timescale %d, duration %d\n", s.TimeScale, s.Duration)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACK\tHANDLER\tSAMPLES\tTIMESCALE\tHEADER\tMEDIA\tDELTA[0]\tDELTA[1]\tFLAG")
	for _, t := range s.Tracks {
		flag := ""
		if t.Anomalous(slack) {
			flag = "inflated"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			t.TrackID, t.Handler, t.Samples, t.TimeScale, t.HeaderDuration, t.MediaDuration, t.FirstDelta, t.SecondDelta, flag)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
