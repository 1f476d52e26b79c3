// Command whitenoised runs the engine as a long-lived daemon: it loads
// every saved account, installs relay subscriptions, and processes the
// event pipeline until signaled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pinpox/whitenoise/internal/config"
	"github.com/pinpox/whitenoise/internal/engine"
)

func main() {
	configFlag := flag.String("config", "", "path to TOML config file")
	dataDirFlag := flag.String("data-dir", "", "override data directory")
	logsDirFlag := flag.String("logs-dir", "", "override logs directory")
	profileFlag := flag.String("profile", "release", "build profile suffix: dev or release")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *dataDirFlag != "" {
		cfg.DataDir = *dataDirFlag
	}
	if *logsDirFlag != "" {
		cfg.LogsDir = *logsDirFlag
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve home directory: %v\n", err)
			os.Exit(1)
		}
		cfg.DataDir = home + "/.local/share/whitenoise"
		cfg.LogsDir = home + "/.local/state/whitenoise/logs"
	}

	profile := config.Release
	if *profileFlag == "dev" {
		profile = config.Debug
	}
	cfg = cfg.ForProfile(profile)

	ctx := context.Background()
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine init error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	fmt.Fprintf(os.Stderr, "whitenoised running, data_dir=%s\n", cfg.DataDir)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Fprintln(os.Stderr, "whitenoised shutting down")
}
