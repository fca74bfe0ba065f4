package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alokproc/geotutor/internal/config"
	"github.com/alokproc/geotutor/internal/llm"
	"github.com/alokproc/geotutor/internal/observability"
	"github.com/alokproc/geotutor/internal/server"
	"github.com/alokproc/geotutor/internal/tutor"
	"github.com/alokproc/geotutor/internal/web"
)

var version = "0.1.0"

func main() {
	// Local development convenience; missing .env is fine
	_ = godotenv.Load()

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "geotutor",
		Short: "Retrieval-augmented geography tutor for NCERT Class 10",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/geotutor.yaml", "Config file path")

	var serveAddr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tutoring web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, serveAddr)
		},
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")

	var (
		pdfPath    string
		resetStore bool
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest [pdf]",
		Short: "Extract, chunk, embed and index a curriculum PDF",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := pdfPath
			if len(args) > 0 {
				path = args[0]
			}
			return runIngest(configPath, path, resetStore)
		},
	}
	ingestCmd.Flags().StringVar(&pdfPath, "pdf", "", "Path to the curriculum PDF")
	ingestCmd.Flags().BoolVar(&resetStore, "reset", false, "Drop the existing index before ingesting")

	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(configPath, strings.Join(args, " "))
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-12s %s\n", name, url)
			}
			fmt.Println("  custom       (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println("  none         (run retrieval-only, no generated answers)")
			fmt.Println()
			fmt.Println("Configure in geotutor.yaml or via environment:")
			fmt.Println("  GEOTUTOR_LLM_PROVIDER=groq")
			fmt.Println("  GEOTUTOR_LLM_API_KEY=gsk_...")
			fmt.Println("  GEOTUTOR_LLM_MODEL=llama-3.1-8b-instant")
		},
	}

	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "List suggested curriculum topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			topics := cfg.Topics
			if len(topics) == 0 {
				topics = tutor.DefaultTopics
			}
			for _, t := range topics {
				fmt.Println("  •", t)
			}
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd, providersCmd, topicsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runServe(configPath, addrOverride string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}

	log := newLogger(cfg.Log)

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "geotutor",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	var audit *observability.AuditLogger
	if cfg.Audit.Enabled {
		audit, err = observability.NewAuditLogger(&observability.AuditConfig{
			Enabled:    true,
			OutputPath: cfg.Audit.OutputPath,
		})
		if err != nil {
			return fmt.Errorf("init audit log: %w", err)
		}
	}

	svc, closeStore, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}

	registry := observability.NewMetricsRegistry()
	metrics := web.NewMetrics(registry)

	webSrv := web.NewServer(web.Config{
		ListenAddr:     cfg.Server.Addr,
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
	}, svc, audit, metrics, log)

	health := server.NewHealthServer(&server.HealthConfig{Version: version})
	health.RegisterCheck("vector-store", server.VectorStoreHealthChecker(cfg.Store.Backend, svc.StoreCount))
	health.RegisterCheck("llm", server.LLMHealthChecker(svc.ProviderName(), nil))

	healthMux := http.NewServeMux()
	healthMux.Handle("/", health.Handler())
	healthMux.Handle("/metrics", registry.Handler())
	healthSrv := &http.Server{
		Addr:         cfg.Server.HealthAddr,
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdown := server.NewShutdownHandler(nil)
	shutdown.RegisterHook("web-server", 10, webSrv.Shutdown)
	shutdown.RegisterHook("health-server", 15, healthSrv.Shutdown)
	shutdown.RegisterHook("tracing", 80, tp.Shutdown)
	shutdown.RegisterHook("vector-store", 90, func(ctx context.Context) error {
		return closeStore()
	})
	if audit != nil {
		shutdown.RegisterHook("audit-logger", 95, func(ctx context.Context) error {
			return audit.Close()
		})
	}
	shutdown.Start()

	go func() {
		log.Info("health server listening", "addr", cfg.Server.HealthAddr)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health server failed", "error", err)
		}
	}()
	go func() {
		<-shutdown.ShutdownCh()
		health.SetReady(false)
	}()
	health.SetReady(true)

	go func() {
		if err := webSrv.Start(); err != nil {
			log.Error("web server failed", "error", err)
			shutdown.Shutdown()
		}
	}()

	shutdown.Wait()
	log.Info("shutdown complete")
	return nil
}

func runIngest(configPath, pdfPath string, resetStore bool) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if pdfPath == "" {
		pdfPath = cfg.Ingest.PDFPath
	}
	if pdfPath == "" {
		return fmt.Errorf("no PDF given: pass a path or set ingest.pdf_path")
	}

	log := newLogger(cfg.Log)
	svc, closeStore, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if resetStore {
		if err := svc.ResetStore(ctx); err != nil {
			return fmt.Errorf("reset store: %w", err)
		}
		fmt.Println("Index cleared.")
	}

	fmt.Printf("Ingesting %s ...\n", pdfPath)
	report, err := svc.Ingest(ctx, pdfPath, func(done, total int) {
		fmt.Printf("\r  indexed %d/%d chunks", done, total)
	})
	if err != nil {
		fmt.Println()
		return err
	}
	fmt.Printf("\nDone: %d pages, %d chunks in %s\n",
		report.Pages, report.Chunks, report.Duration.Round(time.Millisecond))
	return nil
}

func runAsk(configPath, question string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Log)
	svc, closeStore, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	answer, err := svc.AskStream(ctx, question, func(delta string) error {
		fmt.Print(delta)
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Println()

	if answer.Grounded {
		fmt.Println()
		for _, src := range answer.Sources {
			if src.PageStart == src.PageEnd {
				fmt.Printf("  [p. %d, score %.2f] %s\n", src.PageStart, src.Score, src.Snippet)
			} else {
				fmt.Printf("  [pp. %d-%d, score %.2f] %s\n", src.PageStart, src.PageEnd, src.Score, src.Snippet)
			}
		}
	}
	return nil
}
