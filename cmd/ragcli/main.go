// Command ragcli drives a ragcore engine from the shell: ingest sources,
// ask questions against them, refresh or delete a source by id.
//
// Usage:
//
//	ragcli --config ragcore.json ingest ./manual.pdf
//	ragcli --config ragcore.json query --profile advanced "how do I install the pump firmware?"
//	ragcli --config ragcore.json refresh 4 ./manual.pdf
//	ragcli --config ragcore.json delete 4
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/bbiangul/ragcore"
)

func main() {
	configPath := flag.String("config", "", "path to config file (JSON)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ragcli [--config path] <ingest|query|refresh|delete> ...")
		os.Exit(2)
	}

	cfg := loadConfig(*configPath)
	applyEnvOverrides(&cfg)

	engine, err := ragcore.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()

	switch args[0] {
	case "ingest":
		runIngest(ctx, engine, args[1:])
	case "query":
		runQuery(ctx, engine, args[1:])
	case "refresh":
		runRefresh(ctx, engine, args[1:])
	case "delete":
		runDelete(ctx, engine, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		os.Exit(2)
	}
}

func loadConfig(path string) ragcore.Config {
	cfg := ragcore.DefaultConfig()
	if path == "" {
		return cfg
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Error("opening config", "error", err)
		os.Exit(1)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		slog.Error("parsing config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func applyEnvOverrides(cfg *ragcore.Config) {
	if v := os.Getenv("RAGCORE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RAGCORE_EMBED_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("RAGCORE_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("RAGCORE_GENERATOR_BASE_URL"); v != "" {
		cfg.Generator.BaseURL = v
	}
	if v := os.Getenv("RAGCORE_GENERATOR_MODEL"); v != "" {
		cfg.Generator.Model = v
	}
	if v := os.Getenv("RAGCORE_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
		cfg.Generator.APIKey = v
	}
}

func runIngest(ctx context.Context, engine ragcore.Engine, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ragcli ingest <path>")
		os.Exit(2)
	}

	id, err := engine.Ingest(ctx, fs.Arg(0))
	if err != nil {
		slog.Error("ingest failed", "path", fs.Arg(0), "error", err)
		os.Exit(1)
	}
	fmt.Printf("source id %d ready\n", id)
}

func runQuery(ctx context.Context, engine ragcore.Engine, args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	profile := fs.String("profile", string(ragcore.ProfileBaseline), "baseline|enhanced|advanced|comprehensive")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ragcli query [--profile name] \"question\"")
		os.Exit(2)
	}

	ans, err := engine.Query(ctx, fs.Arg(0), ragcore.WithProfile(ragcore.Profile(*profile)))
	if err != nil {
		slog.Error("query failed", "error", err)
		os.Exit(1)
	}

	if ans.Abstained {
		fmt.Println(ans.Clarification)
		return
	}

	fmt.Println(ans.Text)
	fmt.Println()
	fmt.Println("sources:")
	for i, src := range ans.Sources {
		fmt.Printf("  [%d] %s (page %d, score %.3f)\n", i+1, src.SourceName, src.PageNumber, src.Score)
	}
}

func runRefresh(ctx context.Context, engine ragcore.Engine, args []string) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: ragcli refresh <source-id> <path>")
		os.Exit(2)
	}

	var id int64
	if _, err := fmt.Sscanf(fs.Arg(0), "%d", &id); err != nil {
		fmt.Fprintf(os.Stderr, "invalid source id %q\n", fs.Arg(0))
		os.Exit(2)
	}

	if err := engine.Refresh(ctx, id, fs.Arg(1)); err != nil {
		slog.Error("refresh failed", "source_id", id, "error", err)
		os.Exit(1)
	}
	fmt.Printf("source id %d refreshed\n", id)
}

func runDelete(ctx context.Context, engine ragcore.Engine, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ragcli delete <source-id>")
		os.Exit(2)
	}

	var id int64
	if _, err := fmt.Sscanf(fs.Arg(0), "%d", &id); err != nil {
		fmt.Fprintf(os.Stderr, "invalid source id %q\n", fs.Arg(0))
		os.Exit(2)
	}

	if err := engine.Delete(ctx, id); err != nil {
		slog.Error("delete failed", "source_id", id, "error", err)
		os.Exit(1)
	}
	fmt.Printf("source id %d deleted\n", id)
}
