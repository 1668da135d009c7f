package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/examdesk/gradebook/internal/config"
	"github.com/examdesk/gradebook/internal/correction"
	"github.com/examdesk/gradebook/internal/export"
	"github.com/examdesk/gradebook/internal/gradingapi"
	"github.com/examdesk/gradebook/internal/handler"
	appI18n "github.com/examdesk/gradebook/internal/i18n"
	"github.com/examdesk/gradebook/internal/importer"
	"github.com/examdesk/gradebook/internal/llm"
	"github.com/examdesk/gradebook/internal/llm/prompts"
	"github.com/examdesk/gradebook/internal/results"
	"github.com/examdesk/gradebook/internal/store"
	"github.com/examdesk/gradebook/internal/synth"
)

// app holds what every command opens from its flags.
type app struct {
	v      *viper.Viper
	db     *store.Store
	engine *results.Engine
	ctx    context.Context
}

func openApp(cmd *cobra.Command) (*app, error) {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	bands, err := config.Bands(v.GetString("bands"), v.GetString("bands-file"))
	if err != nil {
		return nil, fmt.Errorf("load bands: %w", err)
	}
	engine, err := results.NewEngine(bands)
	if err != nil {
		return nil, err
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &app{
		v:      v,
		db:     db,
		engine: engine,
		ctx:    appI18n.Localize(cmd.Context(), lang),
	}, nil
}

// service wires the grading providers selected by the flags.
func (a *app) service(metrics *correction.Metrics, extra map[string]correction.Provider) (*correction.Service, error) {
	v := a.v
	seed := v.GetUint64("synthetic-seed")
	if seed == 0 {
		seed = rand.Uint64()
	}
	synthetic := synth.New(seed)

	providers := map[string]correction.Provider{correction.SourceSynthetic: synthetic}
	if url := v.GetString("grading-url"); url != "" {
		providers["api"] = gradingapi.NewClient(gradingapi.Config{
			BaseURL:       url,
			Timeout:       v.GetDuration("grading-timeout"),
			FetchAttempts: v.GetInt("fetch-attempts"),
		})
	}
	if url := v.GetString("llm-url"); url != "" {
		variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
		client, err := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), prompts.PromptVariant(variant))
		if err != nil {
			return nil, fmt.Errorf("create LLM client: %w", err)
		}
		if v.GetBool("llm-ping") {
			if err := client.Ping(context.Background()); err != nil {
				return nil, fmt.Errorf("LLM health check: %w", err)
			}
			slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
		}
		providers["llm"] = client
	}
	for name, p := range extra {
		providers[name] = p
	}

	source := v.GetString("source")
	if source == "" {
		source = correction.SourceSynthetic
		if _, ok := providers["api"]; ok {
			source = "api"
		}
	}

	opts := correction.Options{
		Providers:     providers,
		DefaultSource: source,
		RecentLimit:   v.GetInt("recent-limit"),
		Metrics:       metrics,
	}
	if v.GetBool("fallback-synthetic") {
		opts.Fallback = synthetic
	}
	return correction.NewService(a.db, a.db, a.engine, opts), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc, err := a.service(correction.NewMetrics(reg), nil)
	if err != nil {
		return err
	}

	h := handler.New(a.db, svc, a.engine.Aggregator(), reg)

	lang := a.v.GetString("lang")
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := a.v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		srv.Shutdown(context.Background())
	}()

	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"sources", svc.Sources(),
		"bands", a.engine.Aggregator().Bands(),
		"fallback_synthetic", a.v.GetBool("fallback-synthetic"),
	)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.db.Close()

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := importer.Import(a.db, path, data)
		if err != nil {
			return err
		}
		if res.Status == importer.StatusImported {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d submissions\n", path, res.ExamID, res.Submissions)
		}
	}
	return nil
}

func runGrade(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.db.Close()

	source := a.v.GetString("source")
	extra := map[string]correction.Provider{}
	if path := a.v.GetString("response"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		extra["file"] = correction.StaticProvider(data)
		source = "file"
	}

	svc, err := a.service(nil, extra)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	set, err := svc.Grade(ctx, a.v.GetString("exam-id"), source)
	if err != nil {
		return err
	}

	s := set.Summary
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d graded, mean %.2f%%, median %.1f%%\n",
		set.ExamID, s.Graded, s.Total, s.Mean, s.Median)
	for _, bc := range s.Distribution {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %d\n", appI18n.BandLabel(a.ctx, bc.Label), bc.Count)
	}
	for _, issue := range set.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "  not graded: %s\n", issue.Message)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.db.Close()

	format, err := export.ParseFormat(a.v.GetString("format"))
	if err != nil {
		return err
	}
	examID := a.v.GetString("exam-id")
	set, err := a.db.GetResultSet(examID)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	if set == nil {
		return fmt.Errorf("%w: %s", correction.ErrNoResults, examID)
	}

	w, err := openOutput(a.v.GetString("output"))
	if err != nil {
		return err
	}
	if err := export.Write(a.ctx, w, format, *set, a.engine.Aggregator()); err != nil {
		w.Close()
		return fmt.Errorf("write export: %w", err)
	}
	return w.Close()
}

func runRollup(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.db.Close()

	inputs, err := a.db.RollupInputs()
	if err != nil {
		return err
	}
	agg := a.engine.Aggregator().Rollup(inputs, a.v.GetInt("recent-limit"))

	w, err := openOutput(a.v.GetString("output"))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(agg); err != nil {
		w.Close()
		return fmt.Errorf("write rollup: %w", err)
	}
	return w.Close()
}
