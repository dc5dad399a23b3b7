package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vpn-linux/split-tunnel/internal/api"
	"github.com/vpn-linux/split-tunnel/internal/cgroups"
	"github.com/vpn-linux/split-tunnel/internal/config"
	"github.com/vpn-linux/split-tunnel/internal/firewall"
	"github.com/vpn-linux/split-tunnel/internal/log"
	"github.com/vpn-linux/split-tunnel/internal/proc"
	"github.com/vpn-linux/split-tunnel/internal/procevents"
	"github.com/vpn-linux/split-tunnel/internal/routing"
	"github.com/vpn-linux/split-tunnel/internal/shell"
	"github.com/vpn-linux/split-tunnel/internal/splittunnel"
)

var (
	version = "dev"
	commit  = "n/a"
	date    = "n/a"
)

func main() {
	var configPath string
	var verbose bool

	flag.StringVar(&configPath, "config", "/etc/split-tunnel/split-tunnel.conf", "Path to configuration file")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Per-App VPN Split Tunneling Daemon\n")
		fmt.Fprintf(os.Stderr, "Version: %s (Commit: %s, Date: %s)\n\n", version, commit, date)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if verbose {
		log.SetVerbose(true)
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Configuration file not found: %s", configPath)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("Configuration is invalid: %v", err)
	}

	anchors, err := firewall.New()
	if err != nil {
		log.Fatalf("Failed to initialize iptables: %v", err)
	}

	scanner := proc.NewScanner("/proc")
	steering := cgroups.NewSteering(scanner)
	coordinator := routing.NewCoordinator(anchors, shell.New(), cfg)
	channel := procevents.NewChannel()

	controller := splittunnel.NewController(cfg, scanner, steering, coordinator, channel)

	var server *api.Server
	if cfg.API.Enable {
		server = api.NewServer(controller, cfg)
		go func() {
			if err := server.Start(); err != nil {
				log.Fatalf("API server failed: %v", err)
			}
		}()
	}

	log.Infof("Split tunnel daemon started (version %s)", version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Infof("Received signal %v, shutting down", sig)

	controller.Disconnect()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			log.Errorf("Failed to stop API server: %v", err)
		}
	}
}
