package main

import (
	"context"
	"log"

	"agent-chat-engine/internal/bootstrap"
	"agent-chat-engine/internal/config"
	"agent-chat-engine/internal/server"
	"agent-chat-engine/internal/tracer"
)

func main() {
	// 0. Initialize Tracer
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)

	// 3. Start Background Services
	go func() {
		log.Println("Background: Starting Title Consumer...")
		if err := container.ConsumerService.Consume(context.Background()); err != nil {
			log.Printf("Background Consumer Error: %v", err)
		}
	}()

	// 4. Restore prior client state (auto-resume or initial prompt)
	container.Engine.Bootstrap(context.Background(), cfg.Agent.InitialPrompt)

	// 5. Initialize Server
	srv := server.New(cfg, container)
	if err := srv.Run(); err != nil {
		log.Panicf("Server stopped: %v", err)
	}
}
