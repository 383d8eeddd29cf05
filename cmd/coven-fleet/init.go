// ABOUTME: Interactive config file creation for coven-fleet
// ABOUTME: Prompts for server, fleet, bridge, journal and logging settings and writes YAML

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/2389/coven-fleet/internal/config"
	"github.com/2389/coven-fleet/internal/console"
)

// getDataPath returns the path to the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven")
}

func runInit(args []string) error {
	flags := pflag.NewFlagSet("init", pflag.ContinueOnError)
	configFlag := flags.StringP("config", "c", "", "config file path to write")
	if err := flags.Parse(args); err != nil {
		return err
	}

	printer := console.NewPrinter(os.Stdout)
	prompter := console.NewPrompter(bufio.NewReader(os.Stdin), printer)

	fmt.Println("coven-fleet configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	defaultConfigPath, _ := config.Path(*configFlag)
	outputFile := prompter.Ask("Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		if !prompter.Confirm("File exists. Overwrite?", false) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.Default()
	askConfig(prompter, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	data, err := cfg.YAML()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	content := "# coven-fleet configuration\n# Generated by coven-fleet init\n\n" + string(data)
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Println()
	printer.Success("Config written to %s", outputFile)
	fmt.Println("\nTo start the fleet:")
	fmt.Printf("  coven-fleet run --config %s\n", outputFile)

	return nil
}

// askConfig asks the startup questions, then the settings only a saved
// config carries. cfg's current values are the defaults.
func askConfig(p *console.Prompter, cfg *config.Config) {
	fmt.Println("--- Server and Fleet Configuration ---")
	askStartup(p, cfg)
	cfg.Fleet.UsernamePrefix = p.Ask("Username prefix", cfg.Fleet.UsernamePrefix)

	fmt.Println("\n--- Bridge Configuration ---")
	cfg.Bridge.URL = p.Ask("Bridge URL", cfg.Bridge.URL)
	cfg.Bridge.Secret = p.Ask("Bridge secret (leave empty for none)", cfg.Bridge.Secret)
	rate := p.Ask("Chat messages per second", strconv.FormatFloat(cfg.Bridge.ChatRate, 'f', -1, 64))
	if r, err := strconv.ParseFloat(rate, 64); err == nil && r >= 0 {
		cfg.Bridge.ChatRate = r
	}

	fmt.Println("\n--- Journal Configuration ---")
	if p.Confirm("Record fleet events to a journal?", true) {
		cfg.Journal.Path = p.Ask("Journal database path", filepath.Join(getDataPath(), "fleet.db"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	cfg.Logging.Level = p.Ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	cfg.Logging.Format = p.Ask("Log format (text/json)", cfg.Logging.Format)
	cfg.Logging.Output = p.Ask("Log output (stderr/stdout/file path)", cfg.Logging.Output)
}
