// Package main is the Kotaeru CLI entry point.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotaeru/internal/builder"
	"github.com/hyperjump/kotaeru/internal/config"
	"github.com/hyperjump/kotaeru/internal/extract"
	"github.com/hyperjump/kotaeru/internal/llm"
	"github.com/hyperjump/kotaeru/internal/orchestrator"
	"github.com/hyperjump/kotaeru/internal/retrieval"
	"github.com/hyperjump/kotaeru/internal/sandbox"
	"github.com/hyperjump/kotaeru/internal/server"
	"github.com/hyperjump/kotaeru/internal/watcher"
	"github.com/hyperjump/kotaeru/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotaeru/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "build":
		runBuild()
	case "ask":
		runAsk()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotaeru version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func newLLMClient(cfg *config.Config) *llm.OpenAIClient {
	return llm.NewOpenAIClient(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.ChatModel,
		cfg.OpenAI.EmbeddingModel,
		cfg.OpenAI.Dimensions,
	)
}

func newBuilder(cfg *config.Config, logger *zap.Logger) *builder.Builder {
	client := newLLMClient(cfg)
	extractor := extract.NewExtractor(client, extract.WithLogger(logger))
	return builder.New(
		cfg.Storage.SpreadsheetDir,
		cfg.Storage.InventoryPath,
		cfg.Storage.IndexPath,
		extractor,
		logger,
	)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	client := newLLMClient(cfg)
	svc, err := retrieval.NewService(
		client,
		cfg.Storage.InventoryPath,
		cfg.Storage.IndexPath,
		cfg.Retrieval.TopK,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to load retrieval artifacts (run 'kotaeru build' first)", zap.Error(err))
	}
	runner := sandbox.NewPythonRunner(
		cfg.Execution.PythonBin,
		time.Duration(cfg.Execution.TimeoutSeconds)*time.Second,
	)
	orch := orchestrator.New(svc, client, runner, logger)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled {
		bld := newBuilder(cfg, logger)
		w := watcher.NewWatcher(
			cfg.Storage.SpreadsheetDir,
			func() {
				logger.Info("spreadsheet folder changed, rebuilding")
				if _, err := bld.Build(context.Background()); err != nil {
					logger.Error("rebuild failed", zap.Error(err))
					return
				}
				if err := svc.Reload(); err != nil {
					logger.Error("artifact reload failed", zap.Error(err))
				}
			},
			logger,
			watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMS)*time.Millisecond),
		)
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(orch, svc, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	n, err := newBuilder(cfg, logger).Build(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Built inventory and index for %d file(s)\n", n)
	fmt.Printf("Inventory: %s\n", cfg.Storage.InventoryPath)
	fmt.Printf("Index:     %s\n", cfg.Storage.IndexPath)
}

// buildQuestion joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	raw := fs.Bool("raw", false, "print raw event JSON instead of answers")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotaeru ask [flags] <question>")
		os.Exit(1)
	}
	question := buildQuestion(fs.Args())
	if question == "" {
		fmt.Println("Usage: kotaeru ask [flags] <question>")
		os.Exit(1)
	}

	resp, err := http.Get(*serverURL + "/api/v1/ask?question=" + url.QueryEscape(question))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}

	failed := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if *raw {
			fmt.Println(payload)
			continue
		}
		var env orchestrator.Envelope
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			fmt.Fprintf(os.Stderr, "Bad event: %v\n", err)
			continue
		}
		if env.Data.Answer != "" {
			fmt.Println(env.Data.Answer)
		}
		if env.Data.ContentType == orchestrator.ContentError {
			failed = true
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Stream failed: %v\n", err)
		os.Exit(1)
	}
	if failed {
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status struct {
		Records        int    `json:"records"`
		Indexed        int    `json:"indexed"`
		Dimensions     int    `json:"dimensions"`
		DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
		Config         struct {
			SpreadsheetDir string `json:"spreadsheet_dir"`
			InventoryPath  string `json:"inventory_path"`
			IndexPath      string `json:"index_path"`
			TopK           int    `json:"top_k"`
		} `json:"config"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("records:     %d   # files in inventory\n", status.Records)
		fmt.Printf("indexed:     %d   # files with embeddings in the vector index\n", status.Indexed)
		fmt.Printf("dimensions:  %d\n", status.Dimensions)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes: %d\n", *status.DiskUsageBytes)
		}
		fmt.Println()
		fmt.Println("# configuration")
		fmt.Printf("spreadsheet_dir: %s\n", status.Config.SpreadsheetDir)
		fmt.Printf("inventory_path:  %s\n", status.Config.InventoryPath)
		fmt.Printf("index_path:      %s\n", status.Config.IndexPath)
		fmt.Printf("top_k:           %d\n", status.Config.TopK)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`kotaeru - natural-language Q&A over spreadsheet collections

Usage:
  kotaeru server [flags]            Start the HTTP server
  kotaeru build [flags]             Build the metadata inventory and vector index
  kotaeru ask [flags] <question>    Ask a question against a running server
  kotaeru status [flags]            Show inventory/index status
  kotaeru version                   Show version
  kotaeru help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotaeru/config.yaml)
  --debug            Enable debug logging

Build Flags:
  --config string    Config file path
  --debug            Enable debug logging

Ask Flags:
  --server string    Server URL (default: http://localhost:8080)
  --raw              Print raw event JSON instead of answers

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Examples:
  kotaeru build
  kotaeru server
  kotaeru ask "What were the apple sales last quarter?"
  kotaeru ask --raw total revenue by region
  kotaeru status --output json

The OPENAI_API_KEY environment variable is used when openai.api_key is not
set in the config file.`)
}
