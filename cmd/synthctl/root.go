package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/orchidlab/synthctl/internal/chem"
	"github.com/orchidlab/synthctl/internal/runloop"
	"github.com/orchidlab/synthctl/internal/sink"
	"github.com/orchidlab/synthctl/internal/station"
)

var (
	cfgFile string
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "synthctl",
	Short: "Synthesis workstation control",
	Long: `synthctl compiles spreadsheet-style recipes into station task
payloads, checks material readiness, and supervises runs on the
synthesis workstation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default synthctl.yaml, then $HOME/.config/synthctl/synthctl.yaml)")
	pf.String("base-url", "", "station upper computer base URL")
	pf.String("chemicals", "chemicals.yaml", "chemical directory file")
	pf.String("sink-dir", "", "run record directory (empty disables recording)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level debug")

	for _, flag := range []string{"base-url", "chemicals", "sink-dir", "log-level"} {
		_ = viper.BindPFlag(strings.ReplaceAll(flag, "-", "_"), pf.Lookup(flag))
	}

	viper.SetDefault("timeout", "30s")
	viper.SetDefault("tls_skip_verify", false)
	viper.SetDefault("retention_days", 0)
	viper.SetDefault("poll.interval", "5s")
	viper.SetDefault("poll.idle_deadline", "15m")
	viper.SetDefault("poll.task_deadline", "72h")
	viper.SetDefault("glovebox.check", false)
	viper.SetDefault("glovebox.h2o_limit_ppm", 1.0)
	viper.SetDefault("glovebox.o2_limit_ppm", 10.0)
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.max_size_mb", 20)
	viper.SetDefault("log.max_backups", 5)
}

func initConfig() error {
	viper.SetEnvPrefix("SYNTHCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("synthctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "synthctl"))
		}
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	logger = newLogger()
	slog.SetDefault(logger)
	return nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(viper.GetString("log_level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if file := viper.GetString("log.file"); file != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    viper.GetInt("log.max_size_mb"),
			MaxBackups: viper.GetInt("log.max_backups"),
			Compress:   true,
		})
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newStationClient() (*station.Client, error) {
	return station.NewClient(station.Config{
		BaseURL:       viper.GetString("base_url"),
		Timeout:       viper.GetDuration("timeout"),
		SkipTLSVerify: viper.GetBool("tls_skip_verify"),
	})
}

func credentials() runloop.Credentials {
	return runloop.Credentials{
		User: viper.GetString("user"),
		Pass: viper.GetString("pass"),
	}
}

// openSink opens the run record sink, or a discard sink when none is
// configured. The caller must call the returned closer.
func openSink() (sink.Sink, func(), error) {
	dir := viper.GetString("sink_dir")
	if dir == "" {
		return sink.Discard{}, func() {}, nil
	}
	fs, err := sink.Open(dir)
	if err != nil {
		return nil, nil, err
	}
	if days := viper.GetInt("retention_days"); days > 0 {
		if err := fs.RetentionSweep(days); err != nil {
			logger.Warn("retention sweep failed", "error", err)
		}
	}
	return fs, func() { _ = fs.Close() }, nil
}

func newCoordinator() (*runloop.Coordinator, func(), error) {
	api, err := newStationClient()
	if err != nil {
		return nil, nil, err
	}
	rec, closeSink, err := openSink()
	if err != nil {
		return nil, nil, err
	}
	airlock := viper.GetStringSlice("airlock_prefixes")
	return runloop.New(api, credentials(), rec, logger, airlock), closeSink, nil
}

func loadDirectory() (*chem.Directory, error) {
	return chem.LoadFile(viper.GetString("chemicals"))
}

func pollInterval() time.Duration { return viper.GetDuration("poll.interval") }
func idleDeadline() time.Duration { return viper.GetDuration("poll.idle_deadline") }
func taskDeadline() time.Duration { return viper.GetDuration("poll.task_deadline") }
