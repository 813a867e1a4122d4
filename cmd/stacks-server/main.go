package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/llmkube/console/pkg/api"
	"github.com/llmkube/console/pkg/config"
)

// Version is set by ldflags during build
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file (default ~/.llmkube/config.yaml)")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	kubeconfig := flag.String("kubeconfig", "", "Path to kubeconfig file (overrides config)")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("stacks-server version %s\n", Version)
		os.Exit(0)
	}

	// Optional .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *kubeconfig != "" {
		cfg.Kubeconfig = *kubeconfig
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		if err := server.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
