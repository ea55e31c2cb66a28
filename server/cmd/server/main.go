package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/automoto/netxform/config"
	"github.com/automoto/netxform/server/core"
	"github.com/automoto/netxform/shared/protocol"
)

func main() {
	port := flag.Uint("port", config.Network.Port, "Server port")
	tickRate := flag.Int("tickrate", config.Network.TickRate, "Server tick rate (updates per second)")
	name := flag.String("name", config.Network.ServerName, "Server display name")
	version := flag.String("version", config.Network.Version, "Required client version (empty = accept any)")
	syncPath := flag.String("config", "", "Path to a JSON sync config")
	profile := flag.String("profile", "", "Named sync profile to load, saved on first use")
	movers := flag.Bool("movers", true, "Spawn the demo movers")
	flag.Parse()

	if err := protocol.RegisterComponents(); err != nil {
		log.Fatalf("Failed to register components: %v", err)
	}

	syncCfg, err := config.ResolveSync(*syncPath, *profile)
	if err != nil {
		log.Fatalf("Failed to load sync config: %v", err)
	}

	server, err := core.NewServer(core.Options{
		Name:     *name,
		Version:  *version,
		TickRate: *tickRate,
		Sync:     syncCfg,
		Movers:   *movers,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down server...")
		server.Stop()
		os.Exit(0)
	}()

	log.Printf("Starting %q on port %d (tick rate: %d/s, precision: %s, compression: %s)",
		*name, *port, *tickRate, syncCfg.Precision, syncCfg.Compression)
	if err := server.Start(*port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
