package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// serviceCmd represents the service command
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Query the denoising service",
}

var serviceHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check service health",
	Args:  cobra.NoArgs,
	RunE:  runServiceHealth,
}

var serviceMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show aggregate processing metrics",
	Args:  cobra.NoArgs,
	RunE:  runServiceMetrics,
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.AddCommand(serviceHealthCmd)
	serviceCmd.AddCommand(serviceMetricsCmd)
}

func runServiceHealth(cmd *cobra.Command, args []string) error {
	api, flush, err := newClient()
	if err != nil {
		return err
	}
	defer flush()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := api.Health(ctx)
	if err != nil {
		return fmt.Errorf("service at %s is unreachable: %w", api.BaseURL(), err)
	}
	if isStructured() {
		return printStructured(os.Stdout, health)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("URL", api.BaseURL())
	table.Append("Status", health.Status)
	table.Append("Version", health.Version)
	table.Append("Model Loaded", fmt.Sprintf("%t", health.ModelLoaded))
	table.Append("GPU Available", fmt.Sprintf("%t", health.GPUAvailable))
	if health.CPULoad > 0 {
		table.Append("CPU Load", fmt.Sprintf("%.1f%%", health.CPULoad))
	}
	if health.MemoryUsedPct > 0 {
		table.Append("Memory Used", fmt.Sprintf("%.1f%%", health.MemoryUsedPct))
	}
	table.Render()
	return nil
}

func runServiceMetrics(cmd *cobra.Command, args []string) error {
	api, flush, err := newClient()
	if err != nil {
		return err
	}
	defer flush()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m, err := api.Metrics(ctx)
	if err != nil {
		return err
	}
	if isStructured() {
		return printStructured(os.Stdout, m)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	table.Append("Total Processed", fmt.Sprintf("%d", m.TotalProcessed))
	table.Append("Avg Processing Time", fmt.Sprintf("%.2fs", m.AverageProcessingTime))
	table.Append("Avg Noise Reduction", fmt.Sprintf("%.1f dB", m.NoiseReductionAvg))
	table.Append("Avg SNR Improvement", fmt.Sprintf("%.1f dB", m.SNRImprovementAvg))
	table.Render()
	return nil
}
