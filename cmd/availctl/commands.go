package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"hospadmin/internal/clock"
	"hospadmin/internal/config"
	"hospadmin/internal/policy"
	"hospadmin/internal/weekly"
)

func encodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Render a scheduling policy as a calendar name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			p := policy.Defaults()
			p.Mode, _ = flags.GetString("mode")
			p.Timezone, _ = flags.GetString("tz")
			p.SlotMinutes, _ = flags.GetInt("slot")
			p.LeadTimeMinutes, _ = flags.GetInt("lead")
			p.BookingWindowDays, _ = flags.GetInt("window")
			p.EffectiveFrom, _ = flags.GetString("from")
			p.Notes, _ = flags.GetString("note")
			p.AdvancedText, _ = flags.GetString("adv")
			if flags.Changed("max-day") {
				v, _ := flags.GetInt("max-day")
				p.MaxPerDay = &v
			}
			if flags.Changed("max-slot") {
				v, _ := flags.GetInt("max-slot")
				p.MaxPerSlot = &v
			}
			fmt.Fprintln(cmd.OutOrStdout(), policy.Encode(p))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("mode", policy.DefaultMode, "Booking mode (APPOINTMENT or WALKIN)")
	flags.String("tz", policy.DefaultTimezone, "IANA timezone")
	flags.Int("slot", policy.DefaultSlotMinutes, "Slot length in minutes")
	flags.Int("lead", policy.DefaultLeadTimeMinutes, "Minimum lead time in minutes")
	flags.Int("window", policy.DefaultBookingWindowDays, "Booking window in days")
	flags.Int("max-day", 0, "Maximum bookings per day")
	flags.Int("max-slot", 0, "Maximum bookings per slot")
	flags.String("from", "", "Effective-from date (YYYY-MM-DD)")
	flags.String("note", "", "Short note")
	flags.String("adv", "", "Advanced free text")
	return cmd
}

func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <name>",
		Short: "Decode the policy carried by a calendar name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := struct {
				Label     string        `json:"label"`
				HasPolicy bool          `json:"hasPolicy"`
				Policy    policy.Policy `json:"policy"`
			}{
				Label:     policy.Label(args[0]),
				HasPolicy: policy.HasBlock(args[0]),
				Policy:    policy.Decode(args[0]),
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [file|-]",
		Short: "Validate weekly windows JSON and print the normalized form",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := readWeekly(cmd, args)
			if err != nil {
				return err
			}
			if res.Dropped > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "dropped %d invalid window(s)\n", res.Dropped)
			}
			fmt.Fprintln(cmd.OutOrStdout(), weekly.Format(res.Windows))
			return nil
		},
	}
}

func previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview [file|-]",
		Short: "Expand weekly windows into concrete openings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tz, _ := cmd.Flags().GetString("tz")
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("load timezone %q: %w", tz, err)
			}
			fromStr, _ := cmd.Flags().GetString("from")
			toStr, _ := cmd.Flags().GetString("to")

			from := time.Now().In(loc)
			from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
			if fromStr != "" {
				if from, err = time.ParseInLocation(clock.DateLayout, fromStr, loc); err != nil {
					return fmt.Errorf("invalid --from %q: %w", fromStr, err)
				}
			}
			to := from.AddDate(0, 0, 7)
			if toStr != "" {
				if to, err = time.ParseInLocation(clock.DateLayout, toStr, loc); err != nil {
					return fmt.Errorf("invalid --to %q: %w", toStr, err)
				}
				to = to.AddDate(0, 0, 1)
			}

			res, err := readWeekly(cmd, args)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, o := range weekly.Occurrences(res.Windows, from, to, loc) {
				line := fmt.Sprintf("%s %s %s-%s", o.Day, o.Start.Format(clock.DateLayout),
					o.Start.Format(clock.ClockLayout), o.End.Format(clock.ClockLayout))
				if o.Capacity != nil {
					line += fmt.Sprintf(" cap=%d", *o.Capacity)
				}
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}
	cmd.Flags().String("from", "", "First date (YYYY-MM-DD), default today")
	cmd.Flags().String("to", "", "Last date (YYYY-MM-DD), default a week after --from")
	cmd.Flags().String("tz", policy.DefaultTimezone, "IANA timezone")
	return cmd
}

func presetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Work with presets.yaml",
	}
	check := &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a presets file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := config.LoadPresets(path)
			if err != nil {
				return err
			}

			presets := cfg.Presets
			if item, _ := cmd.Flags().GetString("item"); item != "" {
				p := cfg.GetPreset(item)
				if p == nil {
					return fmt.Errorf("no preset for service item %q", item)
				}
				presets = []config.PresetConfig{*p}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, cfg.String())
			for i := range presets {
				p := &presets[i]
				fmt.Fprintf(w, "%s\t%s\n", p.ServiceItemID, policy.Encode(*p.Policy))
			}
			return nil
		},
	}
	check.Flags().String("item", "", "Only print the preset of this service item")
	cmd.AddCommand(check)
	return cmd
}

// readWeekly normalizes the weekly JSON from a file argument or stdin.
func readWeekly(cmd *cobra.Command, args []string) (weekly.Result, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return weekly.Result{}, fmt.Errorf("read weekly windows: %w", err)
	}
	res := weekly.Normalize(string(data))
	if !res.OK() {
		return res, fmt.Errorf("invalid weekly windows: %s", res.Error)
	}
	return res, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
