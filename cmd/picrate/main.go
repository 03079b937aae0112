package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/picrate/picrate/internal/client"
	"github.com/picrate/picrate/internal/config"
	"github.com/picrate/picrate/internal/ops"
	"github.com/picrate/picrate/internal/storage"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
	builtBy = "manual"
)

func main() {
	// Define subcommands
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			handleInit()
			return
		case "backup":
			handleBackup(os.Args[2:])
			return
		}
	}

	var (
		showVersion = flag.Bool("version", false, "Show version information")
		configPath  = flag.String("config", "", "Path to configuration file")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("picrate %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		fmt.Printf("  by:     %s\n", builtBy)
		os.Exit(0)
	}

	if *configPath == "" {
		fmt.Println("picrate - live image rating gallery client")
		fmt.Println()
		fmt.Println("No configuration file specified. Use --config <path> to specify config.")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  picrate init                       Generate example configuration")
		fmt.Println("  picrate backup --config <path> <dest>  Back up the seen-items database")
		fmt.Println("  picrate --version                  Show version information")
		fmt.Println("  picrate --config <path>            Start with configuration file")
		os.Exit(1)
	}

	// Load and validate configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Starting picrate %s\n", version)
	fmt.Printf("  User:   %s\n", cfg.Identity.UserName)
	fmt.Printf("  Server: %s\n", cfg.ServerURL())
	fmt.Println()

	// Run the application
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := ops.NewLogger(&cfg.Logging)
	ops.SetDefault(logger)

	// Initialize the seen-items store
	fmt.Println("Initializing storage...")
	st, err := storage.New(ctx, &cfg.Seen)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer st.Close()
	fmt.Printf("  Storage: %s initialized\n", cfg.Seen.Driver)

	// Start the client
	fmt.Println("Starting client...")
	cl := client.New(cfg, st, logger)
	if err := cl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}
	defer cl.Stop()
	fmt.Printf("  Connecting to %s\n", cfg.ServerURL())

	collector := ops.NewDiagnosticsCollector(version, commit, cl)

	fmt.Println()
	fmt.Println("✓ picrate started successfully!")
	fmt.Println()
	fmt.Println("Press Ctrl+C to shutdown gracefully...")

	// Log a status report periodically until interrupted
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	statusTicker := time.NewTicker(60 * time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case <-statusTicker.C:
			stats := cl.StoreStats()
			logger.Info("status",
				"connection", cl.Connection().StatusText(),
				"items", stats.GalleryItems,
				"feeds", stats.CachedFeeds,
				"unread", stats.UnreadCount)
		case <-sigChan:
			fmt.Println()
			fmt.Println("Shutting down gracefully...")
			fmt.Println(collector.CollectAll().FormatAsText())
			fmt.Println("✓ Shutdown complete")
			return nil
		}
	}
}

func handleInit() {
	exampleConfig, err := config.GetExampleConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading example config: %v\n", err)
		os.Exit(1)
	}

	// Write to stdout
	fmt.Print(string(exampleConfig))
}

func handleBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Parse(args)

	if *configPath == "" || fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: picrate backup --config <path> <destination>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.Seen.Driver != "sqlite" {
		fmt.Fprintf(os.Stderr, "Backup is only supported for the sqlite driver (configured: %s)\n", cfg.Seen.Driver)
		os.Exit(1)
	}

	mgr := ops.NewBackupManager(cfg.Seen.SQLitePath, ops.NewLogger(&cfg.Logging))
	if err := mgr.Backup(fs.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Backup complete")
}
