// Command smartpixl-edge runs the cookieless capture process: the public
// HTTP dispatcher that serves the fingerprint script, accepts pixel/beacon
// requests, and forwards enriched records to the engine over the same-host
// pipe.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/smartpixl/smartpixl/internal/config"
	"github.com/smartpixl/smartpixl/internal/daemon"
	"github.com/smartpixl/smartpixl/internal/edgedaemon"
	"github.com/smartpixl/smartpixl/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		cmdStart(os.Args[2:])
	case "stop":
		cmdStop()
	case "status":
		cmdStatus()
	case "init-config":
		cmdInitConfig()
	case "install-service":
		cmdInstallService()
	case "version":
		fmt.Println(version.String())
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func cmdStart(args []string) {
	foreground := false
	configPath := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--foreground", "-f":
			foreground = true
		case "--config", "-c":
			if i+1 < len(args) {
				i++
				configPath = args[i]
			}
		}
	}

	cfg, err := config.LoadEdge(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := edgedaemon.Run(cfg, foreground); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func cmdStop() {
	cfg, err := config.LoadEdge("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := edgedaemon.Stop(cfg.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "error stopping daemon: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("smartpixl-edge stopped")
}

func cmdStatus() {
	cfg, err := config.LoadEdge("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	running, pid := edgedaemon.Status(cfg.DataDir)
	if !running {
		fmt.Println("smartpixl-edge is not running")
		os.Exit(1)
	}
	fmt.Printf("smartpixl-edge is running (PID %d)\n", pid)
}

func cmdInitConfig() {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error resolving home directory: %v\n", err)
		os.Exit(1)
	}
	path := filepath.Join(home, ".smartpixl", "smartpixl-edge.toml")
	if err := config.WriteDefaultEdgeConfig(path); err != nil {
		fmt.Fprintf(os.Stderr, "error generating config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Default config written to %s\n", path)
}

func cmdInstallService() {
	cfg, err := config.LoadEdge("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := daemon.InstallService("com.smartpixl.edge", cfg.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "error installing service: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Service installed successfully")
}

func printUsage() {
	fmt.Println(`Usage: smartpixl-edge <command> [options]

Commands:
  start            Start the edge capture daemon
  stop             Stop the running daemon
  status           Show daemon status
  init-config      Generate default config file
  install-service  Install as a launchd user agent (macOS)
  version          Print version information
  help             Show this help message

Options:
  --foreground, -f       Run in foreground (with 'start')
  --config, -c <path>    Explicit config file path (with 'start')`)
}
