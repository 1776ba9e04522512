package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alotth/audio-transcriber/internal/config"
	"github.com/alotth/audio-transcriber/internal/db"
	"github.com/alotth/audio-transcriber/internal/models"
	"github.com/alotth/audio-transcriber/internal/store"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Job management",
		Long:  "Inspect transcription jobs in the local metadata store.",
	}

	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsGetCmd())
	return cmd
}

func newJobsListCmd() *cobra.Command {
	var (
		configPath string
		state      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsList(cmd, configPath, state)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "at.yaml", "path to config file")
	cmd.Flags().StringVar(&state, "state", "", "filter by state (pending|uploading|transcribing|completed|error)")
	return cmd
}

func runJobsList(cmd *cobra.Command, configPath, state string) error {
	st, err := openStore(configPath)
	if err != nil {
		return err
	}

	var jobs []models.Job
	if state == "" {
		jobs, err = st.ListAll()
	} else {
		jobs, err = st.ListByState(state)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tCREATED\tSPEAKERS\tNAME")
	for _, job := range jobs {
		state := job.State
		if job.Stalled() {
			state += " (stalled)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			job.ID, state, job.CreatedAt.Format(time.RFC3339), job.SpeakerCount, job.OriginalName)
	}
	return w.Flush()
}

func newJobsGetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsGet(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "at.yaml", "path to config file")
	return cmd
}

func runJobsGet(cmd *cobra.Command, configPath, id string) error {
	st, err := openStore(configPath)
	if err != nil {
		return err
	}
	job, err := st.Get(id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:            %s\n", job.ID)
	fmt.Fprintf(out, "State:         %s\n", job.State)
	if job.Stalled() {
		fmt.Fprintf(out, "Stalled since: %s\n", job.StalledAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Name:          %s\n", job.OriginalName)
	fmt.Fprintf(out, "Created:       %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "Completed:     %s\n", job.CompletedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Speakers:      %d\n", job.SpeakerCount)
		fmt.Fprintf(out, "Transcript:    %s\n", job.TranscriptRef)
	}
	if job.VendorJobID != "" {
		fmt.Fprintf(out, "Vendor job:    %s\n", job.VendorJobID)
	}
	if job.Error != "" {
		fmt.Fprintf(out, "Error:         %s\n", job.Error)
	}
	if job.TranscriptPreview != "" {
		fmt.Fprintf(out, "\n%s\n", job.TranscriptPreview)
	}
	return nil
}

// openStore opens the metadata store named by the config file.
func openStore(configPath string) (*store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		return nil, err
	}
	return store.New(gdb), nil
}
