// Botlink - robotics hardware gateway
//
// Discovers robotics boards over a transport medium, exposes their
// capabilities through a REST API and browser UI, and republishes
// device inventory to MQTT, Valkey, and Kafka.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"botlink/config"
	"botlink/engine"
	"botlink/logging"
	"botlink/web"
)

// Version is set at build time via -ldflags
var Version = "dev"

// unsecuredUIGrace is how long the browser UI stays reachable when it is
// enabled with no users configured.
const unsecuredUIGrace = 15 * time.Minute

// preprocessLogDebugFlag handles --log-debug without a value by injecting "all" as the default.
// This allows users to use `--log-debug` alone to enable all subsystem logging.
func preprocessLogDebugFlag() {
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		// Check for --log-debug or -log-debug without =
		if arg == "--log-debug" || arg == "-log-debug" {
			// Check if next arg exists and is not another flag
			if i+1 >= len(args) || (len(args[i+1]) > 0 && args[i+1][0] == '-') {
				// No value provided, inject "all"
				os.Args = append(os.Args[:i+2], append([]string{"all"}, os.Args[i+2:]...)...)
			}
			return
		}
		// If it has = sign, value is already provided
		if len(arg) > 11 && (arg[:12] == "--log-debug=" || arg[:11] == "-log-debug=") {
			return
		}
	}
}

// Command line flags
var (
	configPath  = flag.String("config", config.DefaultPath(), "Path to configuration file")
	showVersion = flag.Bool("version", false, "Show version and exit")
	namespace   = flag.String("namespace", "", "Set namespace (saved to config)")
	httpPort    = flag.Int("p", 0, "HTTP listen port (overrides config)")
	httpHost    = flag.String("host", "", "HTTP bind address (overrides config)")
	adminUser   = flag.String("admin-user", "", "Create/update admin user (saves to config)")
	adminPass   = flag.String("admin-pass", "", "Password for admin user (saves to config)")
	noAPI       = flag.Bool("no-api", false, "Disable REST API (ephemeral)")
	noWebUI     = flag.Bool("no-webui", false, "Disable browser UI (ephemeral)")
	logFile     = flag.String("log", "", "Path to log file (optional)")
	logDebug    = flag.String("log-debug", "", "Enable debug logging to debug.log")
)

func main() {
	// Pre-process args to handle --log-debug without a value
	preprocessLogDebugFlag()

	flag.Parse()

	if *showVersion {
		fmt.Printf("botlink %s\n", Version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Handle --namespace flag: overwrite config and save
	if *namespace != "" {
		if !config.IsValidNamespace(*namespace) {
			fmt.Fprintf(os.Stderr, "Error: invalid namespace '%s' (use alphanumeric, hyphen, underscore, dot)\n", *namespace)
			os.Exit(1)
		}
		cfg.Namespace = *namespace
		if err := cfg.Save(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Namespace set to '%s' and saved to config\n", *namespace)
	}

	// Override web config from flags (in memory only)
	if *httpPort != 0 {
		cfg.Web.Port = *httpPort
	}
	if *httpHost != "" {
		cfg.Web.Host = *httpHost
	}
	if *noAPI {
		cfg.Web.API.Enabled = false
	}
	if *noWebUI {
		cfg.Web.UI.Enabled = false
	}
	if *noAPI && *noWebUI {
		cfg.Web.Enabled = false
	}

	// Create/update admin user if credentials provided (persisted)
	if *adminUser != "" && *adminPass != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*adminPass), bcrypt.DefaultCost)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
			os.Exit(1)
		}

		if existing := cfg.FindWebUser(*adminUser); existing != nil {
			existing.PasswordHash = string(hash)
			existing.Role = config.RoleAdmin
			existing.MustChangePassword = false
		} else {
			cfg.AddWebUser(config.WebUser{
				Username:     *adminUser,
				PasswordHash: string(hash),
				Role:         config.RoleAdmin,
			})
		}

		// Generate session secret if not set
		if cfg.Web.UI.SessionSecret == "" {
			secret := make([]byte, 32)
			rand.Read(secret)
			cfg.Web.UI.SessionSecret = base64.StdEncoding.EncodeToString(secret)
		}

		if err := cfg.Save(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Admin user '%s' configured for web UI\n", *adminUser)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	run(cfg)
}

func run(cfg *config.Config) {
	// Set up file logging if specified
	var fileLogger *logging.FileLogger
	if *logFile != "" {
		var err error
		fileLogger, err = logging.NewFileLogger(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to open log file: %v\n", err)
		}
	}

	logf := func(format string, args ...interface{}) {
		if fileLogger != nil {
			fileLogger.Log(format, args...)
		}
		fmt.Printf(format+"\n", args...)
	}

	// Set up debug logging if specified
	var debugLoggerFile *logging.DebugLogger
	if *logDebug != "" {
		var err error
		debugLoggerFile, err = logging.NewDebugLogger("debug.log")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to open debug log: %v\n", err)
		} else {
			filter := *logDebug
			if filter == "all" || filter == "true" || filter == "1" {
				filter = ""
			}
			debugLoggerFile.SetFilter(filter)
			logging.SetGlobalDebugLogger(debugLoggerFile)
			if filter == "" {
				logf("Debug logging enabled (all subsystems) - writing to debug.log")
			} else {
				logf("Debug logging enabled (filter: %s) - writing to debug.log", filter)
			}
		}
	}

	// Create and start the engine: medium, resolver, broker managers
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		LogFunc:    logf,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := eng.Start(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting engine: %v\n", err)
		os.Exit(1)
	}

	// Start HTTP server (unless disabled)
	var webServer *web.Server
	if cfg.Web.Enabled {
		ws := web.NewServer(&cfg.Web, eng)
		if err := ws.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to start web server on port %d: %v\n", cfg.Web.Port, err)
			fmt.Fprintf(os.Stderr, "Continuing without HTTP server.\n")
		} else {
			webServer = ws
			fmt.Printf("Web server at %s\n", webServer.Address())
			if cfg.Web.API.Enabled {
				fmt.Printf("  REST API: %s/api/\n", webServer.Address())
			}
			if cfg.Web.UI.Enabled {
				fmt.Printf("  Browser UI: %s/\n", webServer.Address())
				if len(cfg.Web.UI.Users) == 0 {
					fmt.Printf("  No web users configured. Use --admin-user/--admin-pass to create one.\n")
					fmt.Printf("  The web server will stop in %s unless a user is configured.\n", unsecuredUIGrace)
					webServer.SetUnsecuredDeadline(unsecuredUIGrace, func() {
						logf("Unsecured web deadline expired, web server stopped")
					})
				}
			}
		}
	}

	fmt.Println("Running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	fmt.Printf("\nReceived %v, shutting down...\n", sig)

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		if webServer != nil {
			webServer.ClearUnsecuredDeadline()
			webServer.Stop()
		}
		eng.Stop()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
	case <-time.After(5 * time.Second):
	}

	if fileLogger != nil {
		fileLogger.Close()
	}
	if debugLoggerFile != nil {
		debugLoggerFile.Close()
	}

	fmt.Println("Stopped")
}
