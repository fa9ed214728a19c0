package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"imwithroc.com/ensemble/api"
	"imwithroc.com/ensemble/cache"
	"imwithroc.com/ensemble/extract"
	"imwithroc.com/ensemble/logger"
	"imwithroc.com/ensemble/pipeline"
	"imwithroc.com/ensemble/report"
	"imwithroc.com/ensemble/s3client"
	"imwithroc.com/ensemble/types"
	"imwithroc.com/ensemble/worker"
)

type Config struct {
	ConfigPath    string `envconfig:"ENS_CONFIG_PATH" default:""`
	CorpusRoot    string `envconfig:"ENS_CORPUS_ROOT" default:""`
	OutputDir     string `envconfig:"ENS_OUTPUT_DIR" default:"report"`
	RestAPIPort   string `envconfig:"ENS_REST_API_PORT" default:"10000"`
	StoredReports bool   `envconfig:"ENS_API_STORED_REPORTS" default:"false"`
}

const workerRestartDelay = 5 * time.Second

func main() {
	logger.SetupLogging()
	mainLogger := logger.NewLogger("Main")

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		mainLogger.Fatal().Caller().Err(err).Msg("Failed to read environment")
	}
	configPath := flag.String("config", config.ConfigPath, "pipeline configuration YAML file (a directory in -worker mode)")
	root := flag.String("root", config.CorpusRoot, "corpus root, one sub-directory per label")
	out := flag.String("out", config.OutputDir, "directory receiving the report, summary and plots")
	serve := flag.Bool("serve", false, "serve /classify and /report from the fitted pipeline after the run")
	runWorker := flag.Bool("worker", false, "consume training jobs from RMQ instead of running once")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	featureCache, err := cache.NewFromEnvironment()
	if err != nil {
		mainLogger.Fatal().Caller().Err(err).Msg("Failed to connect feature cache")
	}
	var vectors extract.VectorCache
	if featureCache != nil {
		defer featureCache.Close()
		vectors = featureCache
		mainLogger.Info().Msg("Feature cache enabled")
	}

	if *runWorker {
		if err := startWorker(ctx, *configPath, vectors, &mainLogger); err != nil {
			mainLogger.Err(err).Msg("Worker stopped")
			os.Exit(1)
		}
		return
	}

	if *root == "" {
		mainLogger.Fatal().Msg("No corpus root given, use -root or ENS_CORPUS_ROOT")
	}
	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		mainLogger.Fatal().Caller().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}
	mainLogger.Info().Str("config", cfg.Name).Str("root", *root).Msg("Starting pipeline")

	fs := afero.NewOsFs()
	extractor, err := pipeline.NewExtractor(cfg, fs, vectors)
	if err != nil {
		mainLogger.Fatal().Caller().Err(err).Msg("Failed to build feature extractor")
	}
	fitted, err := pipeline.Run(ctx, cfg, fs, extractor, *root)
	if err != nil {
		mainLogger.Fatal().Err(err).Str("stage", fitted.Stage().String()).Msg("Pipeline failed")
	}
	summary, err := report.NewSummary(fitted)
	if err != nil {
		mainLogger.Fatal().Caller().Err(err).Msg("Failed to summarize run")
	}
	artifacts, err := report.Artifacts(summary, cfg.Report.PlotSize, cfg.Report.SkipPlots, &mainLogger)
	if err != nil {
		mainLogger.Fatal().Caller().Err(err).Msg("Failed to render report")
	}
	if err := report.WriteDir(fs, *out, artifacts); err != nil {
		mainLogger.Fatal().Caller().Err(err).Str("dir", *out).Msg("Failed to write report")
	}
	fmt.Print(summary.Text())
	mainLogger.Info().Str("dir", *out).Int("artifacts", len(artifacts)).Msg("Report written")

	if !*serve {
		return
	}
	summaryJSON, err := summary.JSON()
	if err != nil {
		mainLogger.Fatal().Caller().Err(err).Msg("Failed to encode summary")
	}
	apiRequest := &api.Request{Model: fitted, Summary: summaryJSON}
	if config.StoredReports {
		s3Client, err := s3client.New()
		if err != nil {
			mainLogger.Fatal().Caller().Err(err).Msg("Failed to create S3 client")
		}
		defer s3Client.Close()
		apiRequest.Reports = s3Client
	}
	if err := serveAPI(ctx, apiRequest, config.RestAPIPort, &mainLogger); err != nil {
		mainLogger.Err(err).Msg("REST API stopped with error")
		os.Exit(1)
	}
}

func loadConfiguration(path string) (types.Configuration, error) {
	if path == "" {
		return types.DefaultConfiguration(), nil
	}
	return types.LoadConfiguration(path)
}

// loadConfigurations reads every configuration the worker may be asked for. path may be a
// single file, a directory, or empty for the built-in default only.
func loadConfigurations(path string) ([]types.Configuration, error) {
	if path == "" {
		return nil, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		cfg, err := types.LoadConfiguration(path)
		if err != nil {
			return nil, err
		}
		return []types.Configuration{cfg}, nil
	}
	return types.LoadConfigurations(path)
}

func startWorker(ctx context.Context, configPath string, vectors extract.VectorCache, mainLogger *zerolog.Logger) error {
	cfgs, err := loadConfigurations(configPath)
	if err != nil {
		return fmt.Errorf("loading configurations: %w", err)
	}
	mainLogger.Info().Msgf("Loaded %d configurations", len(cfgs))
	train := worker.NewTrainer(cfgs, afero.NewOsFs(), vectors)

	mainLogger.Info().Msg("Start training worker")
	for {
		rmqWorker, err := worker.New(train)
		if err != nil {
			return fmt.Errorf("could not initialize RMQ worker: %w", err)
		}
		err = rmqWorker.StartWorker(ctx)
		if ctx.Err() != nil {
			return nil
		}
		mainLogger.Err(err).Msgf("Worker returned with error. Launching new in %s", workerRestartDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(workerRestartDelay):
		}
	}
}

func serveAPI(ctx context.Context, apiRequest *api.Request, port string, mainLogger *zerolog.Logger) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: apiRequest.Routes(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	mainLogger.Info().Msgf("REST API on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
