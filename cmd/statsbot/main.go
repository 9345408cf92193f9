// StatsBot - Telegram channel statistics bot
// License: MIT
//
// Copyright (c) 2026 StatsBot contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/zhaopengme/statsbot/pkg/config"
	"github.com/zhaopengme/statsbot/pkg/logger"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const logo = "📊"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// formatBuildInfo returns build time and go version info
func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion() {
	fmt.Printf("%s statsbot %s\n", logo, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Printf("  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Printf("  Go: %s\n", goVer)
	}
}

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "run":
		runCmd(args)
	case "schema":
		schemaCmd(args)
	case "status":
		statusCmd(args)
	case "version", "--version", "-v":
		printVersion()
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Printf("%s statsbot - Telegram channel statistics v%s\n\n", logo, version)
	fmt.Println("Usage: statsbot <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run         Poll Telegram and collect channel statistics")
	fmt.Println("  schema      Create the QuestDB tables")
	fmt.Println("  status      Show configuration and connectivity")
	fmt.Println("  version     Show version information")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -c, --config string     config file (default ~/.statsbot/config.json)")
	fmt.Println("      --env-file string   dotenv file loaded before the config (default .env)")
}

type commonFlags struct {
	configPath string
	envFile    string
}

func parseFlags(name string, args []string) commonFlags {
	var opts commonFlags
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	fs.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "config file")
	fs.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")
	_ = fs.Parse(args)
	return opts
}

func getConfigPath() string {
	if p := os.Getenv("STATSBOT_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".statsbot", "config.json")
}

// loadConfig reads the dotenv file, if any, then the config file and the
// environment, and configures logging from the result.
func loadConfig(opts commonFlags) (*config.Config, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", opts.envFile, err)
		}
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger.Configure(cfg.Log.Format, cfg.Log.Level)
	return cfg, nil
}
