// Package main provides the streamdex Cartesi rollup dapp: a loop that
// fetches advance/inspect requests from the rollup host, feeds them to the
// dispatcher, and reports the result back.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/streamdex/engine/internal/amm"
	"github.com/streamdex/engine/internal/config"
	"github.com/streamdex/engine/internal/dispatch"
	"github.com/streamdex/engine/internal/rollup"
	"github.com/streamdex/engine/internal/store"
	"github.com/streamdex/engine/pkg/address"
	"github.com/streamdex/engine/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.streamdex", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		network     = flag.String("network", "", "Network (mainnet, testnet, local), overrides config")
		deployments = flag.String("deployments", "", "Deployments directory, overrides config")
		rollupURL   = flag.String("rollup-http-server-url", "", "Rollup HTTP server URL, overrides ROLLUP_HTTP_SERVER_URL")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("streamdex %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	effectiveDataDir := expandPath(*dataDir)

	configPath := *configFile
	if configPath == "" {
		configPath = filepath.Join(effectiveDataDir, "config.yaml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	cfg.Storage.DataDir = effectiveDataDir
	if *network != "" {
		cfg.Network = config.NetworkType(*network)
	}
	if *deployments != "" {
		cfg.DeploymentsDir = *deployments
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	amm.MinimumLiquidity = big.NewInt(cfg.AMM.MinimumLiquidity)
	amm.UserFeesBps = big.NewInt(cfg.AMM.UserFeesBps)

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	log.Info("config loaded", "path", configPath, "network", cfg.Network)

	st, err := store.New(&store.Config{DataDir: expandPath(cfg.Storage.DataDir)})
	if err != nil {
		log.Fatal("failed to initialize store", "error", err)
	}
	defer st.Close()
	log.Info("store initialized", "path", cfg.Storage.DataDir)

	portal, err := cfg.LoadPortalAddress()
	if err != nil {
		log.Fatal("failed to load deposit portal address", "error", err)
	}
	log.Info("deposit portal resolved", "address", address.String(portal))

	d := dispatch.New(st, portal)

	serverURL := *rollupURL
	if serverURL == "" {
		serverURL = os.Getenv("ROLLUP_HTTP_SERVER_URL")
	}
	if serverURL == "" {
		log.Fatal("ROLLUP_HTTP_SERVER_URL is not set")
	}
	client := rollup.New(serverURL)
	log.Info("rollup client initialized", "url", serverURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	runLoop(ctx, log, client, d)
	log.Info("goodbye!")
}

// runLoop pulls requests from the rollup host until ctx is cancelled or the
// host reports it has no more input and the process should exit.
func runLoop(ctx context.Context, log *logging.Logger, client *rollup.Client, d *dispatch.Dispatcher) {
	status := rollup.StatusAccept
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, err := client.Fetch(ctx, status)
		if err != nil {
			log.Info("no further input, exiting", "error", err)
			return
		}

		switch req.Type {
		case rollup.AdvanceRequest:
			status = handleAdvance(ctx, log, client, d, req.Advance)
		case rollup.InspectRequest:
			handleInspect(ctx, log, client, d, req.Inspect)
			status = rollup.StatusAccept
		}
	}
}

func handleAdvance(ctx context.Context, log *logging.Logger, client *rollup.Client, d *dispatch.Dispatcher, adv *rollup.AdvancePayload) rollup.FinishStatus {
	sender, err := address.Parse(adv.Metadata.MsgSender)
	if err != nil {
		log.Error("malformed msg_sender", "error", err)
		return rollup.StatusReject
	}

	raw, err := decodeHex(adv.Payload)
	if err != nil {
		log.Error("malformed payload", "error", err)
		return rollup.StatusReject
	}

	action := dispatch.Action{
		Method:    "",
		MsgSender: sender,
		Now:       adv.Metadata.Timestamp,
		Payload:   raw,
	}
	if sender != d.PortalAddress {
		method, args, err := decodeActionPayload(raw)
		if err != nil {
			log.Error("failed to decode action payload", "error", err)
			return rollup.StatusReject
		}
		action.Method = method
		action.Args = args
		action.Payload = nil
	}

	result := d.Dispatch(action)
	if !result.Accept {
		if err := client.Report(ctx, encodeHex([]byte(result.Notice))); err != nil {
			log.Error("failed to post reject report", "error", err)
		}
		return rollup.StatusReject
	}

	if result.Voucher != nil {
		if _, err := client.Voucher(ctx, address.String(result.Voucher.Destination), encodeHex(result.Voucher.Payload)); err != nil {
			log.Error("failed to post voucher", "error", err)
		}
	}
	if _, err := client.Notice(ctx, encodeHex([]byte(result.Notice))); err != nil {
		log.Error("failed to post notice", "error", err)
	}
	return rollup.StatusAccept
}

func handleInspect(ctx context.Context, log *logging.Logger, client *rollup.Client, d *dispatch.Dispatcher, insp *rollup.InspectPayload) {
	raw, err := decodeHex(insp.Payload)
	if err != nil {
		log.Error("malformed inspect payload", "error", err)
		return
	}

	tx, err := d.Store.Begin()
	if err != nil {
		log.Error("failed to begin inspect transaction", "error", err)
		return
	}
	defer tx.Rollback()

	rows, err := tx.InspectQuery(string(raw))
	if err != nil {
		if postErr := client.Report(ctx, encodeHex([]byte(err.Error()))); postErr != nil {
			log.Error("failed to post inspect error report", "error", postErr)
		}
		return
	}

	out, err := json.Marshal(rows)
	if err != nil {
		log.Error("failed to marshal inspect result", "error", err)
		return
	}
	if err := client.Report(ctx, encodeHex(out)); err != nil {
		log.Error("failed to post inspect report", "error", err)
	}
}

// decodeActionPayload parses the JSON envelope {"method": ..., "args": ...}
// every non-deposit advance input carries.
func decodeActionPayload(raw []byte) (string, map[string]interface{}, error) {
	var envelope struct {
		Method string                 `json:"method"`
		Args   map[string]interface{} `json:"args"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", nil, fmt.Errorf("failed to decode action envelope: %w", err)
	}
	return envelope.Method, envelope.Args, nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
