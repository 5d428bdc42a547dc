// Command evalcli runs the sample evaluation dataset against a ragcore
// engine pointed at an already-ingested database and prints a report.
//
// Usage:
//
//	evalcli --config ragcore.json --profile advanced
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/bbiangul/ragcore"
	"github.com/bbiangul/ragcore/eval"
)

func main() {
	configPath := flag.String("config", "", "path to config file (JSON)")
	profile := flag.String("profile", string(ragcore.ProfileBaseline), "baseline|enhanced|advanced|comprehensive")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := ragcore.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
	}

	engine, err := ragcore.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	report, err := eval.NewEvaluator(engine).Run(
		context.Background(),
		eval.SampleDataset(),
		ragcore.WithProfile(ragcore.Profile(*profile)),
	)
	if err != nil {
		slog.Error("eval run failed", "error", err)
		os.Exit(1)
	}

	fmt.Print(eval.FormatReport(report))
	if report.Failed > 0 {
		os.Exit(1)
	}
}
