// ABOUTME: Entry point for the trendscope CLI and TUI
// ABOUTME: Routes commands and wires the cache, remote store, and sync manager
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/harperreed/trendscope/cache"
	"github.com/harperreed/trendscope/cli"
	"github.com/harperreed/trendscope/config"
	"github.com/harperreed/trendscope/remote"
	"github.com/harperreed/trendscope/sync"
	"github.com/harperreed/trendscope/tui"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	showVersion := flag.Bool("version", false, "Show version and exit")
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.local/share/trendscope)")
	offline := flag.Bool("offline", false, "Use an in-memory remote store (no Drive access)")

	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("trendscope version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	// Auth setup runs before any store exists.
	if command == "auth" {
		if len(commandArgs) == 0 || commandArgs[0] != "init" {
			fmt.Println("Error: auth requires the 'init' subcommand")
			printUsage()
			os.Exit(1)
		}
		if err := cli.AuthInitCommand(commandArgs[1:]); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dir := *dataDir
	if dir == "" {
		dir = config.DataDir()
	}
	store, err := cache.Open(filepath.Join(dir, "cache"))
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer store.Close()

	manager, err := sync.NewManager(store, openRemote(cfg, *offline), sync.Options{
		BatchSize:      cfg.BatchSize,
		MaxAttempts:    cfg.MaxAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		BatchPause:     cfg.BatchPause,
	})
	if err != nil {
		log.Fatalf("Failed to start sync manager: %v", err)
	}

	switch command {
	case "upload":
		if err := cli.UploadCommand(manager, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "list":
		if err := cli.ListCommand(manager, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "review":
		if err := cli.ReviewCommand(manager, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "unreview":
		if err := cli.UnreviewCommand(manager, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "sync":
		if err := cli.SyncCommand(manager, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "init":
		if err := cli.InitCommand(manager, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "purge":
		if err := cli.PurgeCommand(manager, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "tui":
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go manager.AutoSync(ctx, cfg.AutoSyncInterval)

		p := tea.NewProgram(tui.NewModel(manager), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			log.Fatalf("TUI failed: %v", err)
		}
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// openRemote picks the remote backend. Without a stored token every remote
// operation fails with a clear authentication error instead of a crash.
func openRemote(cfg *config.Config, offline bool) remote.Store {
	if offline {
		return remote.NewMemoryStore()
	}

	token, err := remote.LoadToken()
	if err != nil {
		return remote.Unauthenticated{}
	}

	folder := cfg.FolderName
	if folder == "" {
		folder = remote.DefaultFolderName
	}
	store, err := remote.NewDriveStore(context.Background(), token, folder, cfg.DeviceID)
	if err != nil {
		log.Printf("Warning: Drive store unavailable: %v", err)
		return remote.Unauthenticated{}
	}
	return store
}

func printUsage() {
	fmt.Printf(`trendscope v%s - Google Trends keyword tracker

USAGE:
  trendscope [global flags] <command> [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --data-dir <path>      Data directory (default: ~/.local/share/trendscope)
  --offline              Use an in-memory remote store (no Drive access)

COMMANDS:
  trendscope auth init      Authenticate with Google Drive (OAuth)

  trendscope upload <file>...  Parse and upload trends CSV exports

  trendscope list           List tracked keywords
    --reviewed                Show only reviewed keywords
    --unreviewed              Show only unreviewed keywords
    --query <text>            Search by keyword
    --limit <n>               Max results (default: 50)

  trendscope review <keyword>...    Mark keywords reviewed
  trendscope unreview <keyword>...  Clear the reviewed flag

  trendscope sync           Push pending changes and pull remote updates

  trendscope init           Rebuild the local cache from the remote store
    --include-reviewed        Also load reviewed keywords

  trendscope purge          Permanently delete reviewed keywords
    --confirm                 Skip the interactive confirmation

  trendscope tui            Interactive full-screen interface

EXAMPLES:
  # Authenticate against Google Drive
  trendscope auth init

  # Upload a batch of exports
  trendscope upload exports/*.csv

  # Review keywords you are done with, then purge them
  trendscope review golang rust
  trendscope purge

`, version)
}
