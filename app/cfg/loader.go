package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmpOr(Version, "unknown")
}

type rawCfg struct {
	// Storage
	SourcesDir  string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`
	DataDir     string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory for ledgers and rendered feeds"`
	JournalPath string `long:"journal-path" env:"JOURNAL_PATH" default:"./data/journal.db" description:"SQLite run journal (empty disables it)"`

	// Application configuration
	Mode         string `long:"mode" env:"MODE" default:"run" choice:"run" choice:"serve" choice:"status" description:"run: sync once and exit; serve: scheduler and HTTP server; status: print latest runs"`
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://feeds.example.com)"`
	WorkerCount  int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers in serve mode"`
	Concurrency  int    `long:"concurrency" env:"CONCURRENCY" default:"1" description:"Sources synced in parallel in run mode"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Fetching
	UserAgent   string `long:"user-agent" env:"USER_AGENT" default:"RSS Ledger/1.0" description:"User agent string for HTTP requests"`
	ChromePath  string `long:"chrome-path" env:"CHROME_PATH" description:"Chrome/Chromium executable for calendar sources (default: search PATH)"`
	UserDataDir string `long:"user-data-dir" env:"CHROME_USER_DATA_DIR" description:"Chrome profile directory (default: temporary)"`
	Headful     bool   `long:"headful" env:"CHROME_HEADFUL" description:"Show the browser window instead of running headless"`

	// Application metadata
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps and calendar months (e.g., UTC, Asia/Tokyo)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	LogFormat string `long:"log-format" env:"LOG_FORMAT" default:"text" choice:"text" choice:"json" description:"Log output format"`
}

var globalCfg *Cfg

// Load reads .env (when present), the environment and os.Args.
func Load() (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses args on top of the environment. It returns nil, nil
// when help was requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		SourcesDir:   raw.SourcesDir,
		DataDir:      raw.DataDir,
		JournalPath:  raw.JournalPath,
		Mode:         raw.Mode,
		Port:         raw.Port,
		BaseUrl:      raw.BaseUrl,
		WorkerCount:  raw.WorkerCount,
		Concurrency:  raw.Concurrency,
		APIAccessKey: raw.APIAccessKey,
		UserAgent:    raw.UserAgent,
		ChromePath:   raw.ChromePath,
		UserDataDir:  raw.UserDataDir,
		Headful:      raw.Headful,
		Timezone:     raw.Timezone,
		Debug:        raw.Debug,
		LogFormat:    raw.LogFormat,
		Version:      GetVersion(),
	}

	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be positive, got %d", cfg.WorkerCount)
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	time.Local = loc
	return nil
}
