package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/denoise-studio/pkg/client"
	"github.com/psantana5/denoise-studio/pkg/models"
)

var (
	followStatus bool
	outputPath   string
	specType     string
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect jobs on the service",
	Long:  `Commands for checking, downloading and deleting denoise jobs by id.`,
}

// jobsStatusCmd represents the jobs status command
var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Get job status",
	Long:  `Retrieve the status of a job. With --follow, poll until it completes or fails.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

// jobsDeleteCmd represents the jobs delete command
var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job",
	Long:  `Delete a job and its files from the service.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsDelete,
}

// jobsDownloadCmd represents the jobs download command
var jobsDownloadCmd = &cobra.Command{
	Use:   "download <job-id>",
	Short: "Download denoised audio",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsDownload,
}

// jobsSpectrogramCmd represents the jobs spectrogram command
var jobsSpectrogramCmd = &cobra.Command{
	Use:   "spectrogram <job-id>",
	Short: "Download a spectrogram image",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsSpectrogram,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
	jobsCmd.AddCommand(jobsDownloadCmd)
	jobsCmd.AddCommand(jobsSpectrogramCmd)

	jobsStatusCmd.Flags().BoolVar(&followStatus, "follow", false, "poll job status until it completes or fails")
	jobsDownloadCmd.Flags().StringVarP(&outputPath, "out", "O", "", "output file (default denoised_<job-id>.wav)")
	jobsSpectrogramCmd.Flags().StringVarP(&outputPath, "out", "O", "", "output file (default <job-id>_<type>.png)")
	jobsSpectrogramCmd.Flags().StringVar(&specType, "type", "output", "spectrogram to fetch: input or output")
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	api, flush, err := newClient()
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobID := args[0]
	if !followStatus {
		status, err := api.GetStatus(ctx, jobID)
		if err != nil {
			return describeJobError(jobID, err)
		}
		return displayJobStatus(os.Stdout, status)
	}

	fmt.Fprintf(os.Stderr, "Following job %s (press Ctrl+C to stop)...\n\n", jobID)
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		status, err := api.GetStatus(ctx, jobID)
		switch {
		case errors.Is(err, client.ErrJobNotFound):
			return describeJobError(jobID, err)
		case err != nil:
			logger.Debug(fmt.Sprintf("Status poll failed: %v", err))
		default:
			if models.IsTerminalState(status.Status) {
				return displayJobStatus(os.Stdout, status)
			}
			fmt.Fprintf(os.Stderr, "[%3.0f%%] %s\n", status.Progress, status.Message)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func displayJobStatus(w io.Writer, status *models.StatusResponse) error {
	if isStructured() {
		return printStructured(w, status)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	table.Append("Job ID", status.JobID)
	table.Append("Status", string(status.Status))
	table.Append("Progress", fmt.Sprintf("%.0f%%", status.Progress))
	table.Append("Message", orDash(status.Message))
	if status.CreatedAt != "" {
		table.Append("Created At", status.CreatedAt)
	}
	if status.CompletedAt != nil {
		table.Append("Completed At", *status.CompletedAt)
	}
	appendResult(table, status.Result)
	table.Render()
	return nil
}

func runJobsDelete(cmd *cobra.Command, args []string) error {
	api, flush, err := newClient()
	if err != nil {
		return err
	}
	defer flush()

	if err := api.Delete(context.Background(), args[0]); err != nil {
		return describeJobError(args[0], err)
	}
	fmt.Printf("Job %s deleted\n", args[0])
	return nil
}

func runJobsDownload(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	path := outputPath
	if path == "" {
		path = "denoised_" + jobID + ".wav"
	}
	return fetchTo(path, func(ctx context.Context, api *client.Client, w io.Writer) (int64, error) {
		return api.Download(ctx, jobID, w)
	})
}

func runJobsSpectrogram(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	if specType != "input" && specType != "output" {
		return fmt.Errorf("unknown spectrogram type %q (want input or output)", specType)
	}
	path := outputPath
	if path == "" {
		path = fmt.Sprintf("%s_%s.png", jobID, specType)
	}
	return fetchTo(path, func(ctx context.Context, api *client.Client, w io.Writer) (int64, error) {
		return api.Fetch(ctx, api.SpectrogramURL(jobID, specType), w)
	})
}

// fetchTo writes whatever fetch streams into path, removing the file on failure
func fetchTo(path string, fetch func(context.Context, *client.Client, io.Writer) (int64, error)) error {
	api, flush, err := newClient()
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	n, err := fetch(ctx, api, f)
	if err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Saved %s (%d bytes)\n", path, n)
	return nil
}

func describeJobError(jobID string, err error) error {
	if errors.Is(err, client.ErrJobNotFound) {
		return fmt.Errorf("job %s not found", jobID)
	}
	return err
}
