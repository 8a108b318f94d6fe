package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"apex/internal/ai"
	"apex/internal/api"
	"apex/internal/buffer"
	"apex/internal/bus"
	"apex/internal/config"
	"apex/internal/hook"
	"apex/internal/logging"
	"apex/internal/metrics"
	"apex/internal/miner"
	"apex/internal/netobs"
	"apex/internal/processor"
	"apex/internal/remote"
	"apex/internal/syncer"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "run":
		cmdRun()
	case "mine":
		cmdMine()
	case "sync":
		cmdSync()
	case "serve":
		cmdServe()
	case "status":
		cmdStatus()
	default:
		printHelp()
	}
}

func printHelp() {
	fmt.Println("Usage: apex <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init     Create a config file at ./apex.yaml")
	fmt.Println("  run      Run the capture pipeline (proxy, miner, sync)")
	fmt.Println("  mine     Run exactly one miner poll cycle and exit")
	fmt.Println("  sync     Drain the buffer to the remote store and exit")
	fmt.Println("  serve    Serve the dashboard query API")
	fmt.Println("  status   Print miner state and buffer counts")
}

func loadConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Default()
			cfg.ResolveEnv()
			return cfg
		}
		fmt.Println("error:", err)
		os.Exit(1)
	}
	return cfg
}

func openBuffer(cfg config.Config) *buffer.Store {
	store, err := buffer.Open(cfg.Storage.DBPath)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	return store
}

func openRemote(cfg config.Config, required bool) remote.Store {
	rs, err := remote.Open(cfg.Remote)
	if err != nil {
		if required {
			fmt.Println("error:", err)
			os.Exit(1)
		}
		logging.Warn("remote store disabled", map[string]any{"reason": err.Error()})
		return nil
	}
	return rs
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./apex.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	fmt.Println("Config written to:", abs)
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./apex.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)

	store := openBuffer(cfg)
	defer store.Close()

	var dispatcher miner.Dispatcher
	if rs := openRemote(cfg, false); rs != nil {
		defer rs.Close()
		dispatcher = syncer.New(store, rs, cfg.Remote.BatchSize)
	}

	b := bus.New()

	obs := netobs.NewProxyObserver()
	hook.Attach(obs, b)

	notifier := processor.NewQueueNotifier()
	notifier.Ready(func(text string) {
		logging.Info("capture ack", map[string]any{"toast": text})
	})
	proc := processor.New(b, store, notifier)

	client := miner.NewClient(cfg.Miner.RequestsPerSec)
	m := miner.New(cfg, store, client, b, dispatcher)

	metrics.StartServer(cfg.Metrics.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go proc.Run(ctx)
	go m.Run(ctx)
	go func() {
		logging.Info("proxy listening", map[string]any{"addr": cfg.Proxy.Addr})
		if err := obs.ListenAndServe(cfg.Proxy.Addr); err != nil && err != http.ErrServerClosed {
			logging.Error("proxy stopped", map[string]any{"err": err.Error()})
		}
	}()

	<-ctx.Done()
	logging.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obs.Shutdown(shutdownCtx)
}

func cmdMine() {
	fs := flag.NewFlagSet("mine", flag.ExitOnError)
	cfgPath := fs.String("config", "./apex.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)

	store := openBuffer(cfg)
	defer store.Close()

	var dispatcher miner.Dispatcher
	if rs := openRemote(cfg, false); rs != nil {
		defer rs.Close()
		dispatcher = syncer.New(store, rs, cfg.Remote.BatchSize)
	}

	client := miner.NewClient(cfg.Miner.RequestsPerSec)
	m := miner.New(cfg, store, client, bus.New(), dispatcher)
	ctx := context.Background()
	m.Cycle(ctx)
	if dispatcher != nil {
		if err := dispatcher.SyncPending(ctx); err != nil {
			fmt.Println("error:", err)
			os.Exit(1)
		}
	}
	cmdStatusFor(store)
}

func cmdSync() {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	cfgPath := fs.String("config", "./apex.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)

	store := openBuffer(cfg)
	defer store.Close()
	rs := openRemote(cfg, true)
	defer rs.Close()

	s := syncer.New(store, rs, cfg.Remote.BatchSize)
	if err := s.Drain(context.Background()); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	cmdStatusFor(store)
}

func cmdServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "./apex.yaml", "config path")
	addr := fs.String("addr", "", "listen address (overrides config)")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	if *addr != "" {
		cfg.API.Addr = *addr
	}

	store := openBuffer(cfg)
	defer store.Close()

	var analyzer api.Analyzer
	if cfg.AI.APIKey != "" {
		analyzer = ai.NewClient(cfg.AI)
	}
	srv := api.NewServer(store, analyzer)
	logging.Info("api listening", map[string]any{"addr": cfg.API.Addr})
	if err := http.ListenAndServe(cfg.API.Addr, srv.Router()); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func cmdStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath := fs.String("config", "./apex.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)

	store := openBuffer(cfg)
	defer store.Close()
	cmdStatusFor(store)
}

func cmdStatusFor(store *buffer.Store) {
	ctx := context.Background()
	st, err := store.LoadState(ctx)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	total, unsynced, err := store.Counts(ctx)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	fmt.Println("Status:        ", st.Status)
	fmt.Println("Credentials:   ", yesNo(st.Credentials != nil))
	fmt.Println("Likes cursor:  ", orNone(st.Cursors.Likes))
	fmt.Println("Bookmarks cur: ", orNone(st.Cursors.Bookmarks))
	fmt.Println("Total captured:", st.Stats.TotalCaptured)
	if !st.Stats.LastRunAt.IsZero() {
		fmt.Println("Last run:      ", st.Stats.LastRunAt.Format(time.RFC3339))
	}
	if !st.CooldownUntil.IsZero() && st.CooldownUntil.After(time.Now()) {
		fmt.Println("Cooldown until:", st.CooldownUntil.Format(time.RFC3339))
	}
	fmt.Println("Buffered:      ", total)
	fmt.Println("Unsynced:      ", unsynced)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
