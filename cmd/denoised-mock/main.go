package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"

	"github.com/psantana5/denoise-studio/internal/config"
	"github.com/psantana5/denoise-studio/pkg/api"
	"github.com/psantana5/denoise-studio/pkg/cleanup"
	"github.com/psantana5/denoise-studio/pkg/logging"
	"github.com/psantana5/denoise-studio/pkg/ratelimit"
	"github.com/psantana5/denoise-studio/pkg/shutdown"
	"github.com/psantana5/denoise-studio/pkg/store"
	tlsutil "github.com/psantana5/denoise-studio/pkg/tls"
	"github.com/psantana5/denoise-studio/pkg/tracing"
)

func main() {
	// Command-line flags
	configFile := flag.String("config", "", "config file (default is $HOME/.denoise-studio/config.yaml)")
	port := flag.String("port", "", "listen port (default 8000)")
	workDir := flag.String("work-dir", "", "directory for uploads and results")
	stepDelay := flag.Duration("step-delay", 0, "pause between progress updates")
	retention := flag.Duration("retention", 0, "delete jobs older than this")
	useTLS := flag.Bool("tls", false, "serve HTTPS with a self-signed certificate")
	certHosts := flag.String("cert-hosts", "", "comma-separated extra hostnames/IPs for the certificate SANs")
	logToFile := flag.Bool("log-file", false, "also write logs under the log directory")
	flag.Parse()

	cfg, err := config.Load(viper.New(), *configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	svc := cfg.Service
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			svc.Port = *port
		case "work-dir":
			svc.WorkDir = *workDir
		case "step-delay":
			svc.StepDelay = *stepDelay
		case "retention":
			svc.Retention = *retention
		case "tls":
			svc.TLSEnabled = *useTLS
		}
	})

	logger := cfg.NewLogger()
	if *logToFile {
		fileLogger, err := logging.NewFileLogger("denoised-mock", "api", logging.ParseLevel(cfg.Log.Level), cfg.Log.Format == "json")
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		logger = fileLogger
	}

	logger.Info("Starting denoise development service", map[string]interface{}{
		"port":      svc.Port,
		"work_dir":  svc.WorkDir,
		"retention": svc.Retention.String(),
	})

	shutdownMgr := shutdown.New(30*time.Second, logger)
	shutdownMgr.Register("logger", shutdown.CloseResource(logger))

	provider, err := tracing.InitTracer(cfg.TracingFor("denoised-mock", api.Version), logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("Failed to initialize tracing: %v", err))
	}
	shutdownMgr.Register("tracing", provider.Shutdown)

	jobs := store.NewJobRegistry()
	handler, err := api.NewHandler(api.Config{
		WorkDir:   svc.WorkDir,
		StepDelay: svc.StepDelay,
	}, jobs, logger)
	if err != nil {
		logger.Fatal(err.Error())
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	limiter := ratelimit.NewLimiter(svc.RateLimit, svc.RateBurst)
	router := api.NewRouter(handler, api.RouterOptions{
		Registry: registry,
		Limiter:  limiter,
		Tracing:  provider,
	})

	cleanupCfg := cleanup.DefaultConfig()
	cleanupCfg.JobRetention = svc.Retention
	cleanupCfg.Enabled = svc.Retention > 0
	if cleanupCfg.Enabled && svc.Retention < cleanupCfg.CleanupInterval {
		cleanupCfg.CleanupInterval = svc.Retention
	}
	cleanupMgr := cleanup.NewManager(cleanupCfg, jobs, logger)
	cleanupMgr.AddSweeper(func() {
		if n := limiter.Prune(10 * time.Minute); n > 0 {
			logger.Debug(fmt.Sprintf("Pruned %d idle rate limiters", n))
		}
	})
	cleanupMgr.Start()
	shutdownMgr.Register("cleanup", func(ctx context.Context) error {
		cleanupMgr.Stop()
		return nil
	})

	srv := &http.Server{
		Addr:         ":" + svc.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if svc.TLSEnabled {
		if err := os.MkdirAll(filepath.Dir(svc.CertFile), 0755); err != nil {
			logger.Fatal(fmt.Sprintf("Failed to create certs directory: %v", err))
		}
		var sans []string
		for _, host := range strings.Split(*certHosts, ",") {
			if host = strings.TrimSpace(host); host != "" {
				sans = append(sans, host)
			}
		}
		generated, err := tlsutil.EnsureSelfSignedCert(svc.CertFile, svc.KeyFile, "denoised-mock", sans...)
		if err != nil {
			logger.Fatal(fmt.Sprintf("Failed to generate certificate: %v", err))
		}
		if generated {
			logger.Info("Self-signed certificate generated", map[string]interface{}{"cert": svc.CertFile})
		}
		tlsConfig, err := tlsutil.LoadTLSConfig(svc.CertFile, svc.KeyFile)
		if err != nil {
			logger.Fatal(fmt.Sprintf("Failed to load TLS config: %v", err))
		}
		srv.TLSConfig = tlsConfig
	}

	// Registered last so these stop first
	shutdownMgr.Register("jobs", handler.Shutdown)
	shutdownMgr.Register("http", shutdown.StopHTTPServer(srv))

	go func() {
		logger.Info(fmt.Sprintf("Listening on :%s (tls=%v)", svc.Port, svc.TLSEnabled))
		logger.Info("API endpoints: POST /api/denoise, GET /api/status/{id}, GET /api/download/{id}, " +
			"GET /api/jobs/{id}/spec/{input|output}, DELETE /api/jobs/{id}, GET /api/health, GET /api/metrics, GET /metrics")

		var err error
		if svc.TLSEnabled {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	if err := shutdownMgr.WaitWithContext(context.Background()); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
