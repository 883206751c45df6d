package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/codepair/server/internal/api"
	"github.com/codepair/server/internal/config"
	"github.com/codepair/server/internal/persist"
	"github.com/codepair/server/internal/store"
	"github.com/codepair/server/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	persister := persist.New(database, persist.Config{
		FlushInterval: cfg.PersistInterval,
		QueueSize:     cfg.PersistQueueSize,
	})
	persister.Start()

	hub := ws.NewHub(persister)
	go hub.Run()

	apiHandler := api.New(hub, database)

	// WebSocket endpoint
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	})

	http.HandleFunc("/health", apiHandler.HealthHandler)
	http.HandleFunc("/api/stats", apiHandler.StatsHandler)
	http.HandleFunc("/api/rooms", apiHandler.RoomsRouter)
	http.HandleFunc("/api/rooms/", apiHandler.RoomsRouter)
	http.HandleFunc("/api/autocomplete", apiHandler.AutocompleteHandler)

	// Apply CORS middleware
	handler := corsMiddleware(http.DefaultServeMux)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		persister.Stop()
		database.Close()
		os.Exit(0)
	}()

	log.Printf("Server starting on :%s", cfg.Port)
	log.Printf("Database: %s", cfg.DBPath)
	log.Println("Endpoints:")
	log.Println("  - WebSocket:    /ws?room={roomId}&user={label}")
	log.Println("  - Health:       GET /health")
	log.Println("  - Stats:        GET /api/stats")
	log.Println("  - Rooms:        POST /api/rooms, GET /api/rooms/{id}")
	log.Println("  - Autocomplete: POST /api/autocomplete")

	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
