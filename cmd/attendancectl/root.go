package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"studio-backend/internal/app"
	"studio-backend/internal/config"
	"studio-backend/internal/model"
)

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "attendancectl",
		Short:        "Attendance terminal operations",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env", "configs/.env", "Env file to load before reading the environment")
	cmd.AddCommand(
		newPullCmd(opts),
		newProcessCmd(opts),
		newSyncUsersCmd(opts),
		newRunCmd(opts),
	)
	return cmd
}

func (o *rootOptions) open() (*app.App, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

// parseDate reads an optional YYYY-MM-DD flag in the attendance timezone.
func parseDate(value string, loc *time.Location) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, value, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", value)
	}
	return &d, nil
}

type output struct {
	Command    string                  `json:"command"`
	DurationMS int64                   `json:"duration_ms"`
	Results    []model.OperationResult `json:"results"`
}

func writeJSON(w io.Writer, out output) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// finish prints the results and fails the command when any step failed.
func finish(cmd *cobra.Command, started time.Time, results ...model.OperationResult) error {
	if err := writeJSON(cmd.OutOrStdout(), output{
		Command:    cmd.CommandPath(),
		DurationMS: time.Since(started).Milliseconds(),
		Results:    results,
	}); err != nil {
		return err
	}
	for _, r := range results {
		if !r.Success {
			return fmt.Errorf("%s", r.Message)
		}
	}
	return nil
}
