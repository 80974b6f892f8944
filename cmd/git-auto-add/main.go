// Command git-auto-add is a Claude Code PostToolUse hook that stages the file
// an Edit, Write or MultiEdit call just touched.
//
// Hooks must never block or fail the host, so every path through main exits 0.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"git-auto-add/internal/config"
	"git-auto-add/internal/dispatch"
	"git-auto-add/internal/stage"
	"git-auto-add/internal/store"
)

var version = "dev"

// journalTimeout bounds each MeiliSearch request so the journal can't eat
// the host's patience.
const journalTimeout = 2 * time.Second

func main() {
	run(os.Args[1:], os.Stdin)
	os.Exit(0)
}

// run does everything main does apart from exiting. It never fails.
func run(args []string, stdin io.Reader) {
	fs := flag.NewFlagSet("git-auto-add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "path to TOML config file")
	gitBinary := fs.String("git", "", "git executable")
	workDir := fs.String("dir", "", "directory to run git in")
	timeout := fs.Duration("timeout", 0, "staging timeout")
	useLock := fs.Bool("lock", true, "serialise staging per worktree")
	logFile := fs.String("log", "", "append logs to this file")
	debug := fs.Bool("debug", false, "enable debug logging")
	meiliURL := fs.String("meili-url", "", "MeiliSearch endpoint for the staging journal")
	meiliKey := fs.String("meili-key", "", "MeiliSearch API key")
	meiliIndex := fs.String("meili-index", "", "MeiliSearch journal index name")
	setupJournal := fs.Bool("setup-journal", false, "create and configure the journal index, then exit")
	showVersion := fs.Bool("version", false, "print version and exit")
	flagErr := fs.Parse(args)

	if *showVersion {
		fmt.Printf("git-auto-add %s\n", version)
		return
	}

	cfg, cfgErr := config.Load(*configPath)

	// Flags win over file and environment. Only flags given explicitly apply.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "git":
			cfg.GitBinary = *gitBinary
		case "dir":
			cfg.WorkDir = *workDir
		case "timeout":
			if *timeout > 0 {
				cfg.Timeout = config.Duration{Duration: *timeout}
			} else {
				flagErr = errors.Join(flagErr, fmt.Errorf("-timeout must be positive, got %s", *timeout))
			}
		case "lock":
			cfg.Lock = *useLock
		case "log":
			cfg.LogFile = *logFile
		case "debug":
			cfg.Debug = *debug
		case "meili-url":
			cfg.MeiliURL = *meiliURL
		case "meili-key":
			cfg.MeiliKey = *meiliKey
		case "meili-index":
			cfg.MeiliIndex = *meiliIndex
		}
	})

	logger, closeLog := newLogger(cfg.LogFile, cfg.Debug)
	defer closeLog()

	if flagErr != nil {
		logger.Warn("bad flags, using defaults where unset", "err", flagErr)
	}
	if cfgErr != nil {
		logger.Warn("config problem, using defaults where unset", "err", cfgErr)
	}

	if *setupJournal {
		if err := setupJournalIndex(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		fmt.Printf("Journal index %q ready at %s\n", cfg.MeiliIndex, cfg.MeiliURL)
		return
	}

	if cfg.Disabled {
		logger.Debug("hook disabled")
		return
	}

	d := dispatch.New(stage.NewGit(cfg.GitBinary, cfg.WorkDir), cfg.Timeout.Duration)
	d.SetLogger(logger)
	if cfg.Lock {
		d.EnableLock(cfg.WorkDir)
	}
	if cfg.MeiliURL != "" {
		// No I/O until the first record, which is written after staging.
		ms := store.NewMeiliStore(cfg.MeiliURL, cfg.MeiliKey, cfg.MeiliIndex, journalTimeout)
		defer ms.Close()
		d.SetJournal(ms)
	}

	d.Run(context.Background(), stdin)
}

// newLogger returns a logger writing to path, or a discarding logger when
// path is empty or can't be opened. The hook writes nothing to stdout/stderr.
func newLogger(path string, debug bool) (*slog.Logger, func()) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var w io.Writer = io.Discard
	closeFn := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err == nil {
			w = f
			closeFn = func() { f.Close() }
		}
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})).With("pid", os.Getpid())
	return logger, closeFn
}

// setupJournalIndex creates the journal index with its settings. Run once by
// hand; the hook itself never waits on index tasks.
func setupJournalIndex(cfg config.Config) error {
	if cfg.MeiliURL == "" {
		return fmt.Errorf("no MeiliSearch URL configured (use -meili-url or MEILI_URL)")
	}
	ms := store.NewMeiliStore(cfg.MeiliURL, cfg.MeiliKey, cfg.MeiliIndex, 30*time.Second)
	defer ms.Close()
	if err := ms.Ping(); err != nil {
		return err
	}
	return ms.Setup()
}
