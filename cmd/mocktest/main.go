package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/mocktest/internal/handler"
	appI18n "github.com/pavelanni/mocktest/internal/i18n"
	"github.com/pavelanni/mocktest/internal/marks"
	"github.com/pavelanni/mocktest/internal/model"
	"github.com/pavelanni/mocktest/internal/session"
	"github.com/pavelanni/mocktest/internal/store"
)

func main() {
	// MOCKTEST_* variables may also come from a local .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("error reading .env", "error", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mocktest",
		Short: "Mock test practice server with instant feedback",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), marksCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `mocktest --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Write logs to a rotating file instead of stderr")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP practice server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "mocktest.db", "SQLite database path")
	f.StringSliceP("questions", "q", []string{"questions/default_en.json"}, "Paths to questions JSON files (repeatable)")
	f.StringP("lang", "l", "", "UI language (en, ru); empty negotiates from Accept-Language")
	f.StringP("section", "s", "", "Only practice questions from this section")
	f.StringP("type", "t", "", "Only practice questions of this type")
	f.Duration("analyzing-delay", session.DefaultAnalyzingDelay, "Delay before the analyzing indicator appears")
	f.Duration("feedback-delay", session.DefaultFeedbackDelay, "Delay before feedback appears")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.Float64("submit-rate", 2, "Sustained stage/submit requests per second (0 = unlimited)")
	f.StringSlice("allowed-origins", nil, "Origins allowed to read the JSON state endpoint")
	f.Bool("banner", true, "Print the startup banner when stdout is a terminal")
	addLogFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Load question files into the bank and exit",
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "mocktest.db", "SQLite database path")
	addLogFlags(cmd)
	return cmd
}

func marksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "marks TOTAL PARTS",
		Short: "Print how TOTAL marks are split across PARTS sub-questions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("total: %w", err)
			}
			parts, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("parts: %w", err)
			}
			alloc, err := marks.Allocate(total, parts)
			if err != nil {
				return err
			}
			return printAllocation(cmd.OutOrStdout(), alloc)
		},
	}
}

func printAllocation(w io.Writer, alloc []int) error {
	for i, m := range alloc {
		if _, err := fmt.Fprintf(w, "%d\t%d\n", i+1, m); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "total\t%d\n", marks.Sum(alloc))
	return err
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

	var out io.Writer = os.Stderr
	if path := v.GetString("log-file"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("MOCKTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mocktest")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/mocktest")
	v.AddConfigPath("/etc/mocktest")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if v.GetBool("banner") && term.IsTerminal(int(os.Stdout.Fd())) {
		printBanner(cmd.OutOrStdout())
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadQuestions(db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.ServerConfig{
		Section:        v.GetString("section"),
		Type:           v.GetString("type"),
		AnalyzingDelay: v.GetDuration("analyzing-delay"),
		FeedbackDelay:  v.GetDuration("feedback-delay"),
		BasePath:       basePath,
		SecureCookies:  v.GetBool("secure-cookies"),
		SubmitRate:     v.GetFloat64("submit-rate"),
		AllowedOrigins: v.GetStringSlice("allowed-origins"),
	}
	if cfg.FeedbackDelay < cfg.AnalyzingDelay {
		return fmt.Errorf("feedback-delay %s is shorter than analyzing-delay %s", cfg.FeedbackDelay, cfg.AnalyzingDelay)
	}

	load := func() ([]model.Question, error) {
		return db.ListQuestionsFiltered(cfg.Section, cfg.Type)
	}
	mgr := session.NewManager(load, session.WithDelays(cfg.AnalyzingDelay, cfg.FeedbackDelay))
	defer mgr.Close()

	h, err := handler.New(db, mgr, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"lang", lang,
			"section", cfg.Section,
			"type", cfg.Type,
			"analyzing_delay", cfg.AnalyzingDelay,
			"feedback_delay", cfg.FeedbackDelay,
			"base_path", basePath,
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if len(args) == 0 {
		return errors.New("at least one questions file is required")
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadQuestions(db, args); err != nil {
		return err
	}

	count, err := db.QuestionCount()
	if err != nil {
		return err
	}
	total, err := db.TotalMarks()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "question bank: %d questions, %d marks\n", count, total)
	return nil
}

func loadQuestions(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		if _, err := db.ImportQuestions(path, data); err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
	}
	return nil
}

func printBanner(w io.Writer) {
	fig := figure.NewFigure("MOCKTEST", "", true)
	fmt.Fprintln(w, fig.String())
	fmt.Fprintln(w, "======================================================")
}
