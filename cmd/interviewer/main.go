package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/interviewer/internal/cache"
	"github.com/pavelanni/interviewer/internal/composer"
	"github.com/pavelanni/interviewer/internal/engine"
	"github.com/pavelanni/interviewer/internal/evaluator"
	"github.com/pavelanni/interviewer/internal/gaps"
	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "interviewer",
		Short: "Adaptive mock interviews with deterministic scoring",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), gapsCmd(), practiceCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `interviewer --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the websocket interview server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("profiles", "profiles", "Directory with resumes/<id>.json and jobs/<id>.json")
	f.StringSliceP("questions", "q", nil, "Paths to curated question bank JSON files (repeatable)")
	f.StringSlice("allowed-origins", nil, "Allowed websocket Origin headers (empty allows any)")
	f.Float64("rate", 5, "Requests per second allowed per connection")
	f.Int("burst", 10, "Request burst allowed per connection")
	f.Duration("sweep-interval", time.Minute, "How often idle sessions are swept")
	f.Bool("llm-check", false, "Fail startup when the language oracle is unreachable")
	addStoreFlags(f)
	addEngineFlags(f)
	addLLMFlags(f)
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export interview sessions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("user", "", "Only export sessions of this user")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addStoreFlags(f)
	addLogFlags(f)
	return cmd
}

func addStoreFlags(f *pflag.FlagSet) {
	f.String("db", "interviewer.db", "SQLite database path")
}

func addEngineFlags(f *pflag.FlagSet) {
	def := model.DefaultEngineConfig()
	f.Int("max-turns", def.MaxTurns, "Hard limit of questions per session")
	f.Int("min-turns", def.MinTurns, "Answered turns required before early completion")
	f.Int("max-followups", def.MaxFollowups, "Consecutive follow-ups allowed on one question")
	f.Float64("reinforce-probability", def.ReinforceProbability, "Chance of revisiting a struggling topic")
	f.Duration("idle-timeout", def.IdleTimeout, "Inactivity before a session is terminated")
	f.Int("cache-bucket-cap", def.CacheBucketCap, "Cached questions kept per focus, topic and difficulty")
	f.StringP("lang", "l", def.Language, "Feedback language (en, ru)")
}

func addLLMFlags(f *pflag.FlagSet) {
	def := llm.DefaultConfig()
	f.String("llm-provider", string(def.Provider), "Language oracle provider (openai, gemini, none)")
	f.String("llm-url", def.BaseURL, "OpenAI-compatible API base URL")
	f.String("llm-key", def.APIKey, "API key for the language oracle")
	f.String("llm-model", def.Model, "Model name")
	f.Duration("llm-timeout", def.Timeout, "Per-call oracle timeout")
	f.Int("llm-retries", def.MaxRetries, "Retries after a failed oracle call")
	f.Duration("llm-retry-delay", def.RetryBaseDelay, "Base delay of the retry backoff")
	f.Int("llm-log-length", def.MaxLogLength, "Characters of prompts and replies kept in debug logs")
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("INTERVIEWER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("interviewer")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/interviewer")
	v.AddConfigPath("/etc/interviewer")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func engineConfig(v *viper.Viper) model.EngineConfig {
	return model.EngineConfig{
		MaxTurns:             v.GetInt("max-turns"),
		MinTurns:             v.GetInt("min-turns"),
		MaxFollowups:         v.GetInt("max-followups"),
		ReinforceProbability: v.GetFloat64("reinforce-probability"),
		IdleTimeout:          v.GetDuration("idle-timeout"),
		CacheBucketCap:       v.GetInt("cache-bucket-cap"),
		Language:             v.GetString("lang"),
	}
}

func llmConfig(v *viper.Viper) llm.Config {
	return llm.Config{
		Provider:       llm.Provider(strings.ToLower(v.GetString("llm-provider"))),
		BaseURL:        v.GetString("llm-url"),
		APIKey:         v.GetString("llm-key"),
		Model:          v.GetString("llm-model"),
		Timeout:        v.GetDuration("llm-timeout"),
		MaxRetries:     v.GetInt("llm-retries"),
		RetryBaseDelay: v.GetDuration("llm-retry-delay"),
		MaxLogLength:   v.GetInt("llm-log-length"),
	}
}

// app is the wired engine plus the pieces commands touch directly.
type app struct {
	engine *engine.Engine
	cache  *cache.Cache
	ledger *gaps.Ledger
	oracle *llm.Reliable
}

func newApp(ctx context.Context, v *viper.Viper, db *store.Store, emitter engine.Emitter, profiles engine.Profiles) (*app, error) {
	cfg := engineConfig(v)
	tr, err := i18n.New(cfg.Language)
	if err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	set, err := prompts.Default()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	lcfg := llmConfig(v)
	oracle, err := llm.New(ctx, lcfg)
	if err != nil {
		return nil, fmt.Errorf("create language oracle: %w", err)
	}

	c := cache.New(cfg.CacheBucketCap)
	n, err := seedCache(ctx, db, c)
	if err != nil {
		return nil, fmt.Errorf("seed question cache: %w", err)
	}
	slog.Info("question cache seeded", "questions", n)

	ledger := gaps.NewLedger(db.Gaps())
	eng := engine.New(cfg, engine.Deps{
		Composer: composer.New(c, oracle, set, tr, composer.Options{
			ReinforceProbability: cfg.ReinforceProbability,
			Archive:              db,
		}),
		Evaluator: evaluator.New(evaluator.NewOracleExtractor(oracle, set), tr),
		Ledger:    ledger,
		Profiles:  profiles,
		Emitter:   emitter,
		Localizer: tr,
		Store:     db,
		Outcomes:  c,
	})
	slog.Info("engine ready",
		"provider", lcfg.Provider,
		"model", lcfg.Model,
		"lang", tr.Language(),
		"max_turns", cfg.MaxTurns,
		"min_turns", cfg.MinTurns,
		"max_followups", cfg.MaxFollowups,
	)
	return &app{engine: eng, cache: c, ledger: ledger, oracle: oracle}, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAllSessions(cmd.Context(), v.GetString("user"))
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	w, closeFn, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
