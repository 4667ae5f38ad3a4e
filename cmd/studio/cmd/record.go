package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/denoise-studio/internal/controller"
	"github.com/psantana5/denoise-studio/internal/recorder"
)

var (
	recordDuration time.Duration
	recordSave     string
	recordSubmit   bool
	recordFormat   string
	recordDevice   string
)

// recordCmd represents the record command
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record from the microphone",
	Long: `Capture audio through ffmpeg until Ctrl+C (or --duration), then save it
and optionally send it for denoising.

Example:
  studio record --duration 30s --save take.wav
  studio record --submit --download clean.wav
  studio record --format alsa --device hw:1`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "stop after this long (0 = until Ctrl+C)")
	recordCmd.Flags().StringVar(&recordSave, "save", "", "write the recording to this path")
	recordCmd.Flags().BoolVar(&recordSubmit, "submit", false, "send the recording for denoising when it stops")
	recordCmd.Flags().StringVar(&recordFormat, "format", "", "ffmpeg input format (default from config)")
	recordCmd.Flags().StringVar(&recordDevice, "device", "", "ffmpeg input device (default from config)")
	recordCmd.Flags().StringVar(&downloadPath, "download", "", "with --submit, save the denoised audio to this path")
}

func runRecord(cmd *cobra.Command, args []string) error {
	if recordSave == "" && !recordSubmit {
		return fmt.Errorf("nothing to do with the recording: pass --save and/or --submit")
	}

	format, device := cfg.Recorder.Format, cfg.Recorder.Device
	if recordFormat != "" {
		format = recordFormat
	}
	if recordDevice != "" {
		device = recordDevice
	}

	rec := recorder.New(recorder.NewCommandSource(format, device), recorder.WithLogger(logger))
	take, err := capture(rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Recorded %s (%s)\n", take.Name, take.Duration.Round(100*time.Millisecond))

	if recordSave != "" {
		if err := os.WriteFile(recordSave, take.Data, 0644); err != nil {
			return fmt.Errorf("failed to save recording: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Saved %s\n", recordSave)
	}
	if !recordSubmit {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := runJob(ctx, controller.Input{Name: take.Name, Data: take.Data, Recording: true})
	if err != nil {
		return err
	}
	return finishJob(ctx, snap)
}

// capture records until interrupted or recordDuration elapses, showing the elapsed time
func capture(rec *recorder.Recorder) (recorder.Recording, error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := rec.Start(context.Background()); err != nil {
		return recorder.Recording{}, err
	}
	fmt.Fprintln(os.Stderr, "Recording... press Ctrl+C to stop.")

	var deadline <-chan time.Time
	if recordDuration > 0 {
		timer := time.NewTimer(recordDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	ended := rec.Done()

	for {
		select {
		case <-ended:
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, "Audio source stopped.")
			return rec.Stop()
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "\r● %s", recorder.FormatElapsed(rec.Elapsed()))
		case <-deadline:
			fmt.Fprintln(os.Stderr)
			return rec.Stop()
		case <-sigChan:
			fmt.Fprintln(os.Stderr)
			return rec.Stop()
		}
	}
}
