package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/veristream/callshield/internal/capture"
	"github.com/veristream/callshield/internal/classifier"
	"github.com/veristream/callshield/internal/config"
	"github.com/veristream/callshield/internal/detection"
	"github.com/veristream/callshield/internal/dsp"
	"github.com/veristream/callshield/internal/notify"
	"github.com/veristream/callshield/internal/observability"
	"github.com/veristream/callshield/internal/resilience"
	"github.com/veristream/callshield/internal/settings"
	"github.com/veristream/callshield/internal/store"
	"github.com/veristream/callshield/internal/telephony"
)

func main() {
	root := &cobra.Command{
		Use:           "callshield",
		Short:         "Deepfake detection for phone calls",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), analyzeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// pipeline bundles the components shared by serve and analyze
type pipeline struct {
	cfg       *config.Config
	extractor *dsp.Extractor
	adapter   *classifier.Adapter
	scorer    *classifier.HTTPClient
	breaker   *resilience.CircuitBreaker
}

func buildPipeline() (*pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)

	extractor, err := dsp.NewExtractor(dsp.Config{
		SampleRate: cfg.SampleRate,
		FrameSize:  cfg.FrameSize,
		HopSize:    cfg.HopSize,
		MelBands:   cfg.MelBands,
		FMin:       0,
		FMax:       float64(cfg.SampleRate) / 2,
	})
	if err != nil {
		return nil, err
	}

	breaker := resilience.NewCircuitBreaker(
		"scorer",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	breaker.OnStateChange(func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
	})
	breaker.OnFailure(observability.IncrementCircuitBreakerFailures)

	scorer := classifier.NewHTTPClient(classifier.HTTPClientConfig{
		URL:          cfg.ScorerURL,
		Timeout:      time.Duration(cfg.ScorerTimeout) * time.Second,
		ModelVersion: cfg.ModelVersion,
		Breaker:      breaker,
	})

	return &pipeline{
		cfg:       cfg,
		extractor: extractor,
		adapter:   classifier.NewAdapter(scorer),
		scorer:    scorer,
		breaker:   breaker,
	}, nil
}

func (p *pipeline) modelInfo() detection.ModelInfo {
	return detection.ModelInfo{
		Version:    p.cfg.ModelVersion,
		SampleRate: p.cfg.SampleRate,
		WindowSec:  p.cfg.WindowSeconds,
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the detection gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline()
			if err != nil {
				return err
			}
			defer p.adapter.Close()
			return serve(p)
		},
	}
}

func serve(p *pipeline) error {
	cfg := p.cfg
	logger := observability.GetLogger()
	logger.Info().
		Str("port", cfg.Port).
		Str("scorer_url", cfg.ScorerURL).
		Str("model_version", cfg.ModelVersion).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("CallShield gateway starting")

	st, err := store.Open(store.Options{Dir: cfg.DataDir, InMemory: cfg.StoreInMemory})
	if err != nil {
		return err
	}
	defer st.Close()

	prefs := settings.FromConfig(cfg)
	retryCfg := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
	dispatcher := detection.NewDispatcher(st, notify.NewLogNotifier(), retryCfg)
	monitor := detection.NewMonitor(detection.MonitorConfig{
		SampleRate:       cfg.SampleRate,
		WindowSamples:    cfg.WindowSamples(),
		CaptureFrameSize: cfg.CaptureFrameSize,
		ScoreInterval:    cfg.ScoreInterval,
		Cooldown:         time.Duration(cfg.AlertCooldown) * time.Second,
		ReadTimeout:      time.Duration(cfg.CaptureReadTimeout) * time.Second,
		Model:            p.modelInfo(),
	}, p.extractor, p.adapter, prefs, st, dispatcher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warm the model runtime so the first call window scores fast
	if err := p.adapter.WarmUp(ctx); err != nil {
		logger.Warn().Err(err).Msg("Model warm-up failed, first score will be slow")
	}

	hub := telephony.NewHub(16)

	mux := http.NewServeMux()
	mux.HandleFunc("/streams/media", telephony.HandleMediaWS(hub))
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"scorer": func(ctx context.Context) (bool, error) {
			if err := p.scorer.Healthy(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
	}))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/streams/media", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		runEventLoop(ctx, hub, monitor)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("Server exited gracefully")
	return nil
}

// runEventLoop drives the monitor from telephony call events
func runEventLoop(ctx context.Context, hub *telephony.Hub, monitor *detection.Monitor) {
	for {
		select {
		case <-ctx.Done():
			if monitor.Active() {
				monitor.Stop()
			}
			return
		case ev := <-hub.Events():
			handleCallEvent(ctx, monitor, ev)
		}
	}
}

func handleCallEvent(ctx context.Context, monitor *detection.Monitor, ev telephony.CallEvent) {
	logger := observability.GetLogger()
	switch ev.State {
	case telephony.StateRinging:
		logger.Info().Str("call_id", ev.CallID).Msg("Call ringing")

	case telephony.StateActive:
		id, err := monitor.Start(ctx, ev.CallID, capture.StaticDevice{Src: ev.Source})
		if err != nil {
			logger.Warn().Err(err).Str("call_id", ev.CallID).Msg("Detection not started for call")
			if ev.Source != nil {
				ev.Source.Close()
			}
			return
		}
		logger.Info().Str("call_id", ev.CallID).Str("session_id", id).Msg("Detection started")

	case telephony.StateDisconnected:
		if !monitor.Active() {
			return
		}
		if sess, err := monitor.Stop(); err == nil {
			logger.Info().
				Str("call_id", ev.CallID).
				Str("status", string(sess.Status)).
				Float32("peak", sess.PeakScore).
				Msg("Detection stopped with call")
		}
	}
}

func analyzeCmd() *cobra.Command {
	var spectrogramPath string

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Score a recorded call for synthetic speech",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline()
			if err != nil {
				return err
			}
			defer p.adapter.Close()

			analyzer := detection.NewAnalyzer(detection.AnalyzerConfig{
				SampleRate:    p.cfg.SampleRate,
				WindowSamples: p.cfg.WindowSamples(),
				VADThreshold:  p.cfg.VADThresholdDb,
				Threshold:     float32(p.cfg.DetectionThreshold),
				Model:         p.modelInfo(),
			}, p.extractor, p.adapter, nil)

			report, err := analyzer.AnalyzeFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if spectrogramPath != "" {
				if err := writeSpectrogram(analyzer, args[0], spectrogramPath); err != nil {
					return err
				}
				report.SpectrogramPath = spectrogramPath
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&spectrogramPath, "spectrogram", "", "Write the analyzed spectrogram as a PNG to this path")
	return cmd
}

func writeSpectrogram(analyzer *detection.Analyzer, audioPath, outPath string) error {
	in, err := os.Open(audioPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	return analyzer.Spectrogram(in, out)
}
