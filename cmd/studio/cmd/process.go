package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/denoise-studio/internal/controller"
	"github.com/psantana5/denoise-studio/internal/waveform"
	"github.com/psantana5/denoise-studio/pkg/client"
	"github.com/psantana5/denoise-studio/pkg/metrics"
	"github.com/psantana5/denoise-studio/pkg/models"
)

var (
	trimStart    float64
	trimEnd      float64
	downloadPath string
	dumpMetrics  bool
)

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process <audio-file>",
	Short: "Denoise an audio file",
	Long: `Upload an audio file to the denoising service, follow the job until it finishes
and record the result in the local history.

Example:
  studio process interview.wav
  studio process interview.wav --start 12.5 --end 48 --download clean.wav`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().Float64Var(&trimStart, "start", -1, "start of the region to process in seconds (WAV only)")
	processCmd.Flags().Float64Var(&trimEnd, "end", -1, "end of the region to process in seconds (WAV only)")
	processCmd.Flags().StringVar(&downloadPath, "download", "", "save the denoised audio to this path")
	processCmd.Flags().BoolVar(&dumpMetrics, "metrics", false, "print client metrics to stderr when done")
}

func runProcess(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}

	in := controller.Input{Name: filepath.Base(path), Data: data}
	if cmd.Flags().Changed("start") || cmd.Flags().Changed("end") {
		start, end, err := trimRegion(data)
		if err != nil {
			return err
		}
		in.Start, in.End = start, end
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := runJob(ctx, in)
	if err != nil {
		return err
	}
	return finishJob(ctx, snap)
}

// trimRegion clamps --start/--end to the clip the way the waveform trim handles do
func trimRegion(data []byte) (*float64, *float64, error) {
	wf, err := waveform.Load(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("trimming needs a WAV file: %w", err)
	}
	wf.EnableTrimming()

	start, end := trimStart, trimEnd
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = wf.Duration()
	}
	if err := wf.SetRegion(start, end); err != nil {
		return nil, nil, err
	}
	s, e := wf.Bounds()
	logger.Debug(fmt.Sprintf("Trim region %.2fs - %.2fs", *s, *e))
	return s, e, nil
}

// runJob submits in through a controller and waits for it to settle
func runJob(ctx context.Context, in controller.Input) (controller.Snapshot, error) {
	api, flush, err := newClient()
	if err != nil {
		return controller.Snapshot{}, err
	}
	defer flush()

	hist, closer, err := openHistory()
	if err != nil {
		return controller.Snapshot{}, err
	}
	defer closer.Close()

	collector := metrics.NewCollector()
	ctrl := controller.New(api, hist,
		controller.WithPollInterval(cfg.PollInterval),
		controller.WithOriginalsDir(cfg.History.Originals),
		controller.WithLogger(logger),
		controller.WithMetrics(collector),
		controller.WithObserver(progressPrinter(os.Stderr)),
		controller.WithNotifier(func(n controller.Notification) {
			fmt.Fprintf(os.Stderr, "%s %s\n", notificationIcon(n.Level), n.Message)
		}),
	)
	defer ctrl.Close()
	defer pruneOriginals(hist.Load)

	if err := ctrl.Submit(ctx, in); err != nil {
		return controller.Snapshot{}, err
	}
	snap, err := ctrl.Wait(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "\nInterrupted; the job keeps running on the service.")
			if snap.JobID != "" {
				fmt.Fprintf(os.Stderr, "Check it later with: studio jobs status %s\n", snap.JobID)
			}
		}
		return snap, err
	}

	if dumpMetrics {
		if err := metrics.Dump(os.Stderr, collector.Registry()); err != nil {
			logger.Warn(err.Error())
		}
	}
	return snap, nil
}

// finishJob prints the settled job and optionally downloads the result
func finishJob(ctx context.Context, snap controller.Snapshot) error {
	if err := printJob(os.Stdout, snap); err != nil {
		return err
	}
	if snap.Status == models.JobStatusError {
		return fmt.Errorf("job failed: %s", snap.Message)
	}
	if downloadPath == "" || snap.Status != models.JobStatusCompleted {
		return nil
	}

	api, flush, err := newClient()
	if err != nil {
		return err
	}
	defer flush()
	return saveArtifact(ctx, api, snap, downloadPath)
}

func saveArtifact(ctx context.Context, api *client.Client, snap controller.Snapshot, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	var n int64
	if snap.Result != nil && snap.Result.OutputURL != "" {
		n, err = api.Fetch(ctx, snap.Result.OutputURL, f)
	} else {
		n, err = api.Download(ctx, snap.JobID, f)
	}
	if err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Saved %s (%d bytes)\n", path, n)
	return nil
}

// progressPrinter reports progress and message changes on w
func progressPrinter(w io.Writer) func(controller.Snapshot) {
	var last string
	return func(s controller.Snapshot) {
		if s.Status != models.JobStatusProcessing {
			return
		}
		line := fmt.Sprintf("[%3.0f%%] %s", s.Progress, s.Message)
		if line == last {
			return
		}
		last = line
		fmt.Fprintln(w, line)
	}
}

func notificationIcon(level controller.Level) string {
	if level == controller.LevelSuccess {
		return "✓"
	}
	return "✗"
}

// jobView is the printable form of a controller snapshot
type jobView struct {
	JobID       string            `json:"job_id"`
	FileName    string            `json:"file_name"`
	Status      models.JobStatus  `json:"status"`
	Progress    float64           `json:"progress"`
	Message     string            `json:"message,omitempty"`
	Result      *models.JobResult `json:"result,omitempty"`
	OriginalURL string            `json:"original_url,omitempty"`
}

func printJob(w io.Writer, snap controller.Snapshot) error {
	view := jobView{
		JobID:       snap.JobID,
		FileName:    snap.FileName,
		Status:      snap.Status,
		Progress:    snap.Progress,
		Message:     snap.Message,
		Result:      snap.Result,
		OriginalURL: snap.OriginalURL,
	}
	if isStructured() {
		return printStructured(w, view)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	table.Append("Job ID", orDash(view.JobID))
	table.Append("File", orDash(view.FileName))
	table.Append("Status", string(view.Status))
	if view.Message != "" {
		table.Append("Message", view.Message)
	}
	appendResult(table, view.Result)
	if view.OriginalURL != "" {
		table.Append("Original", view.OriginalURL)
	}
	table.Render()
	return nil
}

func appendResult(table *tablewriter.Table, r *models.JobResult) {
	if r == nil {
		return
	}
	table.Append("Duration", fmt.Sprintf("%.2fs", r.Duration))
	table.Append("Noise Reduction", fmt.Sprintf("%.1f dB", r.NoiseReductionDB))
	table.Append("SNR Improvement", fmt.Sprintf("%.1f dB", r.SNRImprovementDB))
	table.Append("Confidence", fmt.Sprintf("%.0f%%", r.ConfidenceScore))
	table.Append("Processing Time", fmt.Sprintf("%.2fs", r.ProcessingTime))
	table.Append("Output", r.OutputURL)
	if r.InputSpecURL != "" {
		table.Append("Input Spectrogram", r.InputSpecURL)
	}
	if r.OutputSpecURL != "" {
		table.Append("Output Spectrogram", r.OutputSpecURL)
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// pruneOriginals drops kept originals that fell out of (or never made it into) the history
func pruneOriginals(load func() []models.HistoryEntry) {
	removed, err := controller.PruneOriginals(cfg.History.Originals, load())
	if err != nil {
		logger.Warn(err.Error())
		return
	}
	if removed > 0 {
		logger.Debug(fmt.Sprintf("Pruned %d unreferenced originals", removed))
	}
}
