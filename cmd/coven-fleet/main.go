// ABOUTME: Entry point for coven-fleet, the game agent fleet controller
// ABOUTME: Spawns agents through the session bridge and runs the operator console

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-fleet/internal/agent"
	"github.com/2389/coven-fleet/internal/bridge"
	"github.com/2389/coven-fleet/internal/config"
	"github.com/2389/coven-fleet/internal/console"
	"github.com/2389/coven-fleet/internal/dispatch"
	"github.com/2389/coven-fleet/internal/fleet"
	"github.com/2389/coven-fleet/internal/journal"
	"github.com/2389/coven-fleet/internal/session"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                         __ _           _
  ___ _____   _____ _ __               / _| | ___  ___| |_
 / __/ _ \ \ / / _ \ '_ \ _____ _____| |_| |/ _ \/ _ \ __|
| (_| (_) \ V /  __/ | | |_____|_____|  _| |  __/  __/ |_
 \___\___/ \_/ \___|_| |_|           |_| |_|\___|\___|\__|
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-fleet <command> [flags]")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run       Spawn the fleet and open the command console")
		fmt.Println("  init      Create a new config file interactively")
		fmt.Println("  journal   Show recent fleet events")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runFleet(ctx, os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	case "journal":
		err = runJournal(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the config path and loads it. A missing file is only
// an error when the path was given explicitly.
func loadConfig(flagValue string) (*config.Config, string, error) {
	path, explicit := config.Path(flagValue)
	if explicit {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, path, fmt.Errorf("loading config: %w", err)
		}
		return cfg, path, nil
	}

	cfg, found, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	if !found {
		return cfg, "(built-in defaults)", nil
	}
	return cfg, path, nil
}

func runFleet(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	configFlag := flags.StringP("config", "c", "", "config file path")
	yes := flags.BoolP("yes", "y", false, "skip startup prompts and use config values")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, configPath, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}

	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	printer := console.NewPrinter(os.Stdout)
	printer.Banner(banner, version)

	stdin := bufio.NewReader(os.Stdin)
	if !*yes {
		askStartup(console.NewPrompter(stdin, printer), cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid startup values: %w", err)
		}
	}

	printer.Detail("Config", configPath)
	printer.Detail("Server", fmt.Sprintf("%s:%d (%s)", cfg.Server.Host, cfg.Server.Port, cfg.Server.Version))
	printer.Detail("Bridge", cfg.Bridge.URL)
	printer.Detail("Fleet", fmt.Sprintf("%d agents, %s apart", cfg.Fleet.Count, cfg.Fleet.SpawnDelay))

	runID := uuid.New().String()
	var recorder journal.Recorder = journal.Nop{}
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, runID)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer j.Close()
		recorder = j
		printer.Detail("Journal", cfg.Journal.Path)
	}
	fmt.Println()

	client, err := bridge.NewClient(bridge.Config{
		URL:            cfg.Bridge.URL,
		Secret:         cfg.Bridge.Secret,
		RequestTimeout: cfg.Bridge.RequestTimeout,
		ChatRate:       cfg.Bridge.ChatRate,
		ChatBurst:      cfg.Bridge.ChatBurst,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating bridge client: %w", err)
	}

	movements := session.DefaultMovements()
	agents := agent.NewManager(logger)
	loop := fleet.NewLoop(fleet.DefaultQueueSize, logger)

	spawner := fleet.NewSpawner(fleet.SpawnerParams{
		Config: fleet.SpawnConfig{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			Version:        cfg.Server.Version,
			Count:          cfg.Fleet.Count,
			Delay:          cfg.Fleet.SpawnDelay,
			UsernamePrefix: cfg.Fleet.UsernamePrefix,
			AuthCommands:   cfg.Fleet.AuthCommands,
			Movements:      movements,
		},
		Client:   client,
		Agents:   agents,
		Loop:     loop,
		Journal:  recorder,
		Reporter: printer,
		Logger:   logger,
	})

	dispatcher := dispatch.New(dispatch.Params{
		Agents:    agents,
		Post:      loop.Post,
		Journal:   recorder,
		Reporter:  printer,
		Movements: movements,
		Logger:    logger,
	})

	// The loop outlives ctx so Shutdown can still apply session closes.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g := new(errgroup.Group)
	g.Go(func() error {
		return loop.Run(loopCtx)
	})

	if err := spawner.Start(ctx); err != nil {
		stopLoop()
		_ = g.Wait()
		return fmt.Errorf("starting fleet: %w", err)
	}

	repl := console.NewREPL(stdin, printer, func(ctx context.Context, line string) error {
		return loop.Do(ctx, func() { dispatcher.Dispatch(ctx, line) })
	}, logger)
	g.Go(func() error {
		err := repl.Run(ctx)
		if err == nil && ctx.Err() == nil {
			printer.Info("Console closed; fleet keeps running until interrupted.")
		}
		return err
	})

	<-ctx.Done()
	fmt.Println()
	printer.Info("Shutting down fleet...")

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Fleet.DrainTimeout)
	defer cancelDrain()
	shutdownErr := spawner.Shutdown(drainCtx)
	if shutdownErr != nil {
		logger.Warn("fleet did not drain cleanly", "error", shutdownErr)
	}

	stopLoop()
	if err := g.Wait(); err != nil && !errors.Is(err, fleet.ErrLoopStopped) && !errors.Is(err, context.Canceled) {
		return err
	}

	if shutdownErr != nil {
		printer.Warn("Some sessions did not close within %s.", cfg.Fleet.DrainTimeout)
	} else {
		printer.Success("All bots disconnected.")
	}
	return nil
}

// askStartup lets the operator override the connection and fleet settings.
// Invalid numbers keep the configured value.
func askStartup(p *console.Prompter, cfg *config.Config) {
	cfg.Server.Host = p.Ask("Server host", cfg.Server.Host)
	cfg.Server.Port = p.AskInt("Server port", cfg.Server.Port, 1)
	cfg.Server.Version = p.Ask("Game version", cfg.Server.Version)
	cfg.Fleet.Count = p.AskInt("Number of bots", cfg.Fleet.Count, 0)
	delayMs := p.AskInt("Delay between spawns (ms)", int(cfg.Fleet.SpawnDelay/time.Millisecond), 0)
	cfg.Fleet.SpawnDelay = time.Duration(delayMs) * time.Millisecond
}

func runJournal(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("journal", pflag.ContinueOnError)
	configFlag := flags.StringP("config", "c", "", "config file path")
	limit := flags.IntP("limit", "n", 50, "maximum number of events to show")
	runID := flags.String("run", "", "only show events from this run id")
	agentID := flags.Int("agent", 0, "only show events for this agent id (-1 for fleet-wide)")
	kind := flags.String("kind", "", "only show events of this kind")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return errors.New("journal.path is not configured")
	}

	j, err := journal.Open(cfg.Journal.Path, "")
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer j.Close()

	filter := journal.Filter{RunID: *runID, Kind: journal.Kind(*kind), Limit: *limit}
	if flags.Changed("agent") {
		filter.AgentID = agentID
	}

	events, err := j.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing events: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}

	fmt.Printf("%-19s  %-8s  %-5s  %-15s  %s\n", "TIME", "RUN", "AGENT", "KIND", "DETAIL")
	for _, e := range events {
		agentCol := strconv.Itoa(e.AgentID)
		if e.AgentID == journal.FleetWide {
			agentCol = "-"
		}
		run := e.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		fmt.Printf("%-19s  %-8s  %-5s  %-15s  %s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), run, agentCol, e.Kind, e.Detail)
	}
	return nil
}
