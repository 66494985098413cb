package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"studio-backend/internal/model"
)

func newPullCmd(opts *rootOptions) *cobra.Command {
	var (
		machineID string
		date      string
		process   bool
	)
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download punches from one machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(machineID)
			if err != nil {
				return fmt.Errorf("invalid --machine: %w", err)
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			d, err := parseDate(date, a.Config.Location())
			if err != nil {
				return err
			}

			start := time.Now()
			pull := a.Sync.PullAttendance
			if process {
				pull = a.Sync.PullAndProcess
			}
			res, err := pull(cmd.Context(), model.SystemCaller, id, d)
			if err != nil {
				return err
			}
			return finish(cmd, start, *res)
		},
	}
	cmd.Flags().StringVar(&machineID, "machine", "", "Machine UUID (required)")
	cmd.Flags().StringVar(&date, "date", "", "Only keep punches from this day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&process, "process", false, "Process attendance after the pull")
	_ = cmd.MarkFlagRequired("machine")
	return cmd
}

func newProcessCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Build daily attendance rows from stored punches",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			d, err := parseDate(date, a.Config.Location())
			if err != nil {
				return err
			}

			start := time.Now()
			res, err := a.Sync.Process(cmd.Context(), model.SystemCaller, d)
			if err != nil {
				return err
			}
			return finish(cmd, start, *res)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to process, defaults to today (YYYY-MM-DD)")
	return cmd
}

func newSyncUsersCmd(opts *rootOptions) *cobra.Command {
	var machineID string
	cmd := &cobra.Command{
		Use:   "sync-users",
		Short: "Push every active employee to a machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(machineID)
			if err != nil {
				return fmt.Errorf("invalid --machine: %w", err)
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			res, err := a.Sync.SyncAllUsers(cmd.Context(), model.SystemCaller, id)
			if err != nil {
				return err
			}
			return finish(cmd, start, *res)
		},
	}
	cmd.Flags().StringVar(&machineID, "machine", "", "Machine UUID (required)")
	_ = cmd.MarkFlagRequired("machine")
	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Pull every active machine then process, as the scheduler does",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			return finish(cmd, start, a.Sync.RunScheduled(cmd.Context())...)
		},
	}
}
