package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/denoise-studio/internal/controller"
	"github.com/psantana5/denoise-studio/pkg/models"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse completed jobs",
	Long:  `Commands for the local history of completed denoise jobs (most recent first).`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List completed jobs",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a completed job",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every completed job",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	hist, closer, err := openHistory()
	if err != nil {
		return err
	}
	defer closer.Close()

	return printHistory(os.Stdout, hist.Load())
}

func printHistory(w io.Writer, entries []models.HistoryEntry) error {
	if isStructured() {
		return printStructured(w, entries)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Job ID", "Name", "Date", "Noise Reduction", "Confidence")
	for _, e := range entries {
		nr, conf := "-", "-"
		if e.Results != nil {
			nr = fmt.Sprintf("%.1f dB", e.Results.NoiseReductionDB)
			conf = fmt.Sprintf("%.0f%%", e.Results.ConfidenceScore)
		}
		table.Append(e.ID, e.Name, e.Date, nr, conf)
	}
	table.Render()
	fmt.Fprintf(w, "\nTotal entries: %d\n", len(entries))
	return nil
}

// runHistoryShow restores an entry into a controller, exactly as selecting it in the list would
func runHistoryShow(cmd *cobra.Command, args []string) error {
	hist, closer, err := openHistory()
	if err != nil {
		return err
	}
	defer closer.Close()

	entry, ok := hist.Find(args[0])
	if !ok {
		return fmt.Errorf("job %s is not in the history", args[0])
	}

	api, flush, err := newClient()
	if err != nil {
		return err
	}
	defer flush()

	ctrl := controller.New(api, hist, controller.WithLogger(logger))
	defer ctrl.Close()
	if err := ctrl.LoadFromHistory(entry); err != nil {
		return err
	}

	if err := printJob(os.Stdout, ctrl.Snapshot()); err != nil {
		return err
	}
	if isStructured() {
		return nil
	}
	if url, ok := ctrl.DownloadURL(); ok {
		fmt.Printf("\nDownload: %s\n", url)
	}
	if note := originalNote(entry.OriginalURL); note != "" {
		fmt.Println(note)
	}
	return nil
}

// originalNote warns when a history entry's original audio is no longer on disk
func originalNote(originalURL string) string {
	path, ok := strings.CutPrefix(originalURL, "file://")
	if !ok {
		return ""
	}
	if _, err := os.Stat(filepath.FromSlash(path)); err == nil {
		return ""
	}
	return "Original audio is no longer available: " + path
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	hist, closer, err := openHistory()
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := hist.Clear(); err != nil {
		return err
	}
	pruneOriginals(hist.Load)
	fmt.Println("History cleared")
	return nil
}
