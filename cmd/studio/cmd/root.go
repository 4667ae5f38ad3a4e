package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/denoise-studio/internal/config"
	"github.com/psantana5/denoise-studio/pkg/client"
	"github.com/psantana5/denoise-studio/pkg/history"
	"github.com/psantana5/denoise-studio/pkg/logging"
	"github.com/psantana5/denoise-studio/pkg/store"
	"github.com/psantana5/denoise-studio/pkg/tls"
	"github.com/psantana5/denoise-studio/pkg/tracing"
)

// Version of the studio CLI
const Version = "1.0.0"

var (
	cfgFile      string
	apiURL       string
	outputFormat string
	logLevel     string

	cfg    *config.Config
	logger *logging.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "CLI for the denoise studio",
	Long: `studio uploads recordings to the denoising service, follows the job until it
finishes and keeps a local history of completed jobs.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.denoise-studio/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "denoising service URL (default from config, $DENOISE_API_URL or http://localhost:8000)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// initConfig reads the config file and environment, then applies flag overrides
func initConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	if apiURL != "" {
		loaded.APIURL = strings.TrimRight(apiURL, "/")
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	switch outputFormat {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}

	cfg = loaded
	logger = cfg.NewLogger()
	return nil
}

// newClient builds a service client from the loaded config. The returned func flushes traces.
func newClient() (*client.Client, func(), error) {
	opts := []client.Option{client.WithLogger(logger)}

	if cfg.ClientTLS() {
		tlsConfig, err := tls.LoadClientTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		opts = append(opts, client.WithTLS(tlsConfig))
	}

	provider, err := tracing.InitTracer(cfg.TracingFor("denoise-studio", Version), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	opts = append(opts, client.WithTracing(provider))

	flush := func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn(fmt.Sprintf("Failed to flush traces: %v", err))
		}
	}
	return client.New(cfg.APIURL, opts...), flush, nil
}

// openHistory opens the configured history backend
func openHistory() (*history.Store, io.Closer, error) {
	kv, err := store.NewKV(cfg.StoreConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history: %w", err)
	}
	return history.New(kv, logger), kv, nil
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// isStructured reports whether output should be machine readable
func isStructured() bool {
	return outputFormat == "json" || outputFormat == "yaml"
}

// printStructured writes v as JSON or YAML depending on --output
func printStructured(w io.Writer, v interface{}) error {
	if IsJSONOutput() {
		output, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(output))
		return nil
	}

	// round-trip through JSON so YAML keys follow the json tags
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}
