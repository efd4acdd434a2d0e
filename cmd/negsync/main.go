// Command negsync drives Negentropy set reconciliation against a NIP-77
// relay from the command line.
//
// Usage:
//
//	negsync [flags]
//
// Flags:
//
//	--relay        relay WebSocket URL (required)
//	--events       path to a newline-delimited "timestamp id_hex" events file (optional)
//	--filter       raw JSON filter object sent with NEG-OPEN (default "{}")
//	--fetch        also fetch and print events for need_ids (default false)
//	--sync-timeout reconciliation timeout (default 30s)
//	--log-format   log output format: text, json, color (default "text")
//	--log-level    log level: debug, info, warn, error (default "info")
//	--version      print version and exit
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nogringo/nip77/client"
	"github.com/nogringo/nip77/log"
	"github.com/nogringo/nip77/negentropy"
	"github.com/nogringo/nip77/session"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// cliConfig holds the parsed flags. run is the actual entry point,
// returning an exit code, so it can be tested in isolation.
type cliConfig struct {
	relay       string
	eventsPath  string
	filter      string
	fetch       bool
	syncTimeout time.Duration
	logFormat   string
	logLevel    string
}

func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	logger := log.NewWithFormat(log.LevelFromString(cfg.logLevel).ToSlog(), cfg.logFormat, os.Stderr)
	log.SetDefault(logger)
	logger.Info("negsync starting", "version", version, "relay", cfg.relay)

	records, err := loadRecords(cfg.eventsPath)
	if err != nil {
		logger.Error("failed to load events file", "err", err)
		return 1
	}

	clientCfg := client.DefaultConfig()
	clientCfg.RelayURL = cfg.relay
	clientCfg.SyncTimeout = cfg.syncTimeout
	clientCfg.Logger = logger

	c, err := client.Dial(clientCfg)
	if err != nil {
		logger.Error("failed to connect", "err", err, "relay", cfg.relay)
		return 1
	}
	defer c.Close()

	filter := session.Filter(cfg.filter)

	if cfg.fetch {
		events, err := c.SyncAndFetch(records, filter)
		if err != nil {
			logger.Error("sync_and_fetch failed", "err", err)
			return 1
		}
		logger.Info("sync_and_fetch complete", "fetched", len(events))
		return printJSON(events)
	}

	result, err := c.Sync(records, filter)
	if err != nil {
		logger.Error("sync failed", "err", err)
		return 1
	}
	logger.Info("sync complete", "have", len(result.HaveIDs), "need", len(result.NeedIDs))
	return printJSON(result)
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// loadRecords reads a newline-delimited "timestamp id_hex" events file. An
// empty path yields an empty local set (the client has nothing of its own
// to reconcile, so the relay's entire set comes back as need_ids).
func loadRecords(path string) ([]negentropy.Record, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("negsync: opening events file: %w", err)
	}
	defer f.Close()

	var records []negentropy.Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("negsync: malformed events line %q: want \"timestamp id_hex\"", line)
		}
		ts, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("negsync: malformed timestamp %q: %w", fields[0], err)
		}
		rec, err := negentropy.NewRecordFromHex(ts, fields[1])
		if err != nil {
			return nil, fmt.Errorf("negsync: malformed id %q: %w", fields[1], err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("negsync: reading events file: %w", err)
	}
	return records, nil
}

// parseFlags parses CLI arguments into a cliConfig. Returns the config,
// whether the caller should exit immediately, and the exit code.
func parseFlags(args []string) (cliConfig, bool, int) {
	cfg := cliConfig{
		filter:      "{}",
		syncTimeout: 30 * time.Second,
		logFormat:   "text",
		logLevel:    "info",
	}
	fs := newCustomFlagSet("negsync")

	fs.StringVar(&cfg.relay, "relay", cfg.relay, "relay WebSocket URL")
	fs.StringVar(&cfg.eventsPath, "events", cfg.eventsPath, "path to a newline-delimited \"timestamp id_hex\" events file")
	fs.StringVar(&cfg.filter, "filter", cfg.filter, "raw JSON filter object sent with NEG-OPEN")
	fs.BoolVar(&cfg.fetch, "fetch", cfg.fetch, "also fetch and print events for need_ids")
	fs.DurationVar(&cfg.syncTimeout, "sync-timeout", cfg.syncTimeout, "reconciliation timeout")
	fs.StringVar(&cfg.logFormat, "log-format", cfg.logFormat, "log output format: text, json, color")
	fs.StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "log level: debug, info, warn, error")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, true, 2
	}

	if *showVersion {
		fmt.Printf("negsync %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}

	if cfg.relay == "" {
		fmt.Fprintln(os.Stderr, "Error: --relay is required")
		return cfg, true, 2
	}

	return cfg, false, 0
}
