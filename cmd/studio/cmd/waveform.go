package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/denoise-studio/internal/waveform"
)

var (
	waveWidth       int
	waveSpectrogram string
	wavePlay        bool
)

// waveformCmd represents the waveform command
var waveformCmd = &cobra.Command{
	Use:   "waveform <file.wav>",
	Short: "Draw the waveform of a WAV file",
	Long: `Render a WAV file as terminal bars with its duration. --start/--end show the
trim region that "studio process" would send.

Example:
  studio waveform take.wav --width 100
  studio waveform take.wav --start 2 --end 9.5 --spectrogram take.png`,
	Args: cobra.ExactArgs(1),
	RunE: runWaveform,
}

func init() {
	rootCmd.AddCommand(waveformCmd)

	waveformCmd.Flags().IntVar(&waveWidth, "width", 80, "number of bars")
	waveformCmd.Flags().Float64Var(&trimStart, "start", -1, "trim region start in seconds")
	waveformCmd.Flags().Float64Var(&trimEnd, "end", -1, "trim region end in seconds")
	waveformCmd.Flags().StringVar(&waveSpectrogram, "spectrogram", "", "also render a spectrogram PNG to this path")
	waveformCmd.Flags().BoolVar(&wavePlay, "play", false, "show a play-head readout running for the clip's duration")
}

func runWaveform(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	wf, err := waveform.Load(f)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("start") || cmd.Flags().Changed("end") {
		wf.EnableTrimming()
		wf.OnRegionChange(func(start, end float64) {
			logger.Debug(fmt.Sprintf("Region %.2fs - %.2fs", start, end))
		})
		start, end := trimStart, trimEnd
		if start < 0 {
			start = 0
		}
		if end < 0 {
			end = wf.Duration()
		}
		if err := wf.SetRegion(start, end); err != nil {
			return err
		}
	}

	fmt.Println(wf.Render(waveWidth))
	player := wf.Player()
	fmt.Printf("Duration: %s\n", player.Readout())
	if start, end, ok := wf.Region(); ok {
		fmt.Printf("Region:   %s - %s\n", waveform.FormatTime(seconds(start)), waveform.FormatTime(seconds(end)))
	}

	if waveSpectrogram != "" {
		if err := wf.SaveSpectrogram(waveSpectrogram, 1000, 400); err != nil {
			return err
		}
		fmt.Printf("Saved %s\n", waveSpectrogram)
	}

	if wavePlay {
		player.Toggle()
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for player.Playing() {
			fmt.Printf("\r▶ %s", player.Readout())
			<-ticker.C
		}
		fmt.Printf("\r■ %s\n", player.Readout())
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
