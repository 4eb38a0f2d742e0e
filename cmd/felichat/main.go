package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/felichat/felichat/common/environment"
	"github.com/felichat/felichat/common/version"
	"github.com/felichat/felichat/internal/felichat/app"
	"github.com/felichat/felichat/internal/felichat/config"
)

func main() {
	configPath := flag.String("config", environment.StringOr("FELICHAT_CONFIG", ""), "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	fmt.Printf("FeliChat Relay\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.NLP.APIKey == "" {
		fmt.Fprintf(os.Stderr, "Error: FELICHAT_NLP_API_KEY is required\n")
		os.Exit(1)
	}
	if cfg.Image.Enabled && cfg.Image.APIKey == "" {
		fmt.Fprintf(os.Stderr, "Error: FELICHAT_IMAGE_API_KEY is required (or set image.enabled: false)\n")
		os.Exit(1)
	}

	relay, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize FeliChat: %v\n", err)
		os.Exit(1)
	}
	defer relay.Stop()

	if err := relay.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running FeliChat: %v\n", err)
		os.Exit(1)
	}
}
