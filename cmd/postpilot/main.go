package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"postpilot/internal/autopilot"
	"postpilot/internal/autopilot/watcher"
	"postpilot/internal/config"
	"postpilot/internal/dashboard"
	"postpilot/internal/generator"
	"postpilot/internal/notify"
	"postpilot/internal/publisher"
	"postpilot/internal/seed"
	"postpilot/internal/store"
	"postpilot/internal/store/redisstore"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 && isHelpArg(args[0]) {
		printRootUsage(os.Stdout)
		return
	}
	cmd := "dashboard"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "dashboard":
		err = runDashboard(args)
	case "run":
		err = runOnce(args)
	case "watch":
		err = runWatch(args)
	case "post-now":
		err = runPostNow(args)
	case "seed":
		err = runSeed(args)
	case "version":
		err = runVersion()
	default:
		err = fmt.Errorf("unknown command %q (want dashboard, run, watch, post-now, seed or version)", cmd)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg     config.Config
	log     *logrus.Logger
	manager *store.Manager
	mirror  *redisstore.Mirror
	gateway autopilot.Gateway
	runner  *autopilot.Runner
	runLog  string
}

// newApp wires the store, gateway and runner from config. quiet routes logs
// to the configured file only, for the TUI path.
func newApp(configPath string, quiet bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.Log, quiet)

	manager := store.NewManager(store.DefaultStorePath())

	// Redis moves the queue off the local file for multi-host setups; the
	// file store remains the content library, and dashboard/seed writes are
	// mirrored into the queue so remote runners see them.
	var gw autopilot.Gateway = manager
	var mirror *redisstore.Mirror
	if strings.TrimSpace(cfg.Redis.URL) != "" {
		rs, err := redisstore.New(cfg.Redis.URL, cfg.Redis.Prefix)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		gw = rs
		mirror = redisstore.NewMirror(manager, rs)
	}

	runner := &autopilot.Runner{
		Store:       gw,
		StepTimeout: config.ParseDurationOrDefault(cfg.Autopilot.StepTimeout, 90*time.Second),
		StuckRun:    config.ParseDurationOrDefault(cfg.Autopilot.StuckRun, 2*time.Hour),
		Log:         log,
	}
	if strings.TrimSpace(cfg.LLM.APIKey) != "" {
		gen, err := generator.NewClient(cfg.LLM)
		if err != nil {
			return nil, err
		}
		runner.Generator = gen
	}
	if strings.TrimSpace(cfg.LinkedIn.AccessToken) != "" {
		pub, err := publisher.NewClient(cfg.LinkedIn)
		if err != nil {
			return nil, err
		}
		runner.Publisher = pub
	}

	return &app{
		cfg:     cfg,
		log:     log,
		manager: manager,
		mirror:  mirror,
		gateway: gw,
		runner:  runner,
		runLog:  autopilot.DefaultRunLogPath(store.DefaultRunsDir()),
	}, nil
}

func newLogger(cfg config.LogConfig, quiet bool) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if path := strings.TrimSpace(cfg.File); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			log.SetOutput(f)
			return log
		}
	}
	if quiet {
		log.SetOutput(io.Discard)
	}
	return log
}

func (a *app) lookAhead() time.Duration {
	return time.Duration(a.cfg.Autopilot.LookAheadMinutes) * time.Minute
}

// library is the store the dashboard edits; with redis configured, every
// write is mirrored into the queue.
func (a *app) library() dashboard.Store {
	if a.mirror != nil {
		return a.mirror
	}
	return a.manager
}

func (a *app) seedStore() seed.Store {
	if a.mirror != nil {
		return a.mirror
	}
	return a.manager
}

func runDashboard(args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	fs.Parse(args)

	a, err := newApp(*configPath, true)
	if err != nil {
		return err
	}
	return dashboard.Run(context.Background(), os.Stdin, os.Stdout, dashboard.Options{
		Store:      a.library(),
		Runner:     a.runner,
		RunLogPath: a.runLog,
		LookAhead:  a.lookAhead(),
	})
}

func runOnce(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	dryRun := fs.Bool("dry-run", false, "generate but do not publish or persist")
	lookAhead := fs.Int("look-ahead", -1, "look-ahead window in minutes (default from config)")
	fs.Parse(args)

	a, err := newApp(*configPath, false)
	if err != nil {
		return err
	}
	ahead := a.lookAhead()
	if *lookAhead >= 0 {
		ahead = time.Duration(*lookAhead) * time.Minute
	}

	report, runErr := a.runner.RunOnce(context.Background(), autopilot.Options{
		DryRun:    *dryRun,
		LookAhead: ahead,
	})
	if !*dryRun {
		if err := autopilot.AppendRunRecord(a.runLog, autopilot.NewRunRecord(report, runErr)); err != nil {
			a.log.WithError(err).Warn("append run record failed")
		}
	}
	fmt.Print(report.Summary())
	return runErr
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	fs.Parse(args)

	a, err := newApp(*configPath, false)
	if err != nil {
		return err
	}
	if a.cfg.Autopilot.Enabled != nil && !*a.cfg.Autopilot.Enabled {
		return errors.New("autopilot is disabled in config")
	}

	notifier, err := notify.New(a.cfg.Notify)
	if err != nil {
		return fmt.Errorf("notify config: %w", err)
	}
	var n watcher.Notifier
	if notifier != nil {
		n = notifier
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watcher.Start(ctx, watcher.Options{
		Runner:        a.runner,
		Gateway:       a.gateway,
		Notifier:      n,
		Log:           a.log,
		RunLogPath:    a.runLog,
		LookAhead:     a.lookAhead(),
		Every:         config.ParseDurationOrDefault(a.cfg.Autopilot.Every, 5*time.Minute),
		MaxTimerDelay: config.ParseDurationOrDefault(a.cfg.Autopilot.MaxTimerDelay, time.Minute),
		Timezone:      a.cfg.Autopilot.DefaultTimezone,
	})
	if err != nil {
		return err
	}
	a.log.Info("autopilot watcher started")
	<-w.Done()
	return nil
}

func runPostNow(args []string) error {
	fs := flag.NewFlagSet("post-now", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	id := fs.String("id", "", "post id to publish immediately")
	fs.Parse(args)

	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}
	a, err := newApp(*configPath, false)
	if err != nil {
		return err
	}

	res, err := a.runner.RunPost(context.Background(), *id)
	if err != nil {
		return err
	}
	switch res.Outcome {
	case autopilot.OutcomePublished:
		fmt.Printf("published %s -> %s\n", res.PostID, res.ExternalPostID)
	case autopilot.OutcomeSkipped:
		fmt.Printf("skipped %s (%s)\n", res.PostID, res.Reason)
	default:
		return fmt.Errorf("%s %s: %s", res.Outcome, res.PostID, res.Error)
	}
	return nil
}

func runSeed(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	dir := fs.String("dir", "content", "directory of pillar/template/idea markdown files")
	fs.Parse(args)

	a, err := newApp(*configPath, false)
	if err != nil {
		return err
	}
	sum, err := seed.ImportDir(context.Background(), a.seedStore(), *dir)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d pillars, %d templates, %d ideas\n", sum.Pillars, sum.Templates, sum.Ideas)
	for _, name := range sum.Skipped {
		fmt.Printf("skipped %s\n", name)
	}
	return nil
}

func runVersion() error {
	_, err := fmt.Println(versionString())
	return err
}
