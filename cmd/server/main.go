package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"popchat-backend/config"
	"popchat-backend/handlers"
	"popchat-backend/logger"
	"popchat-backend/metrics"
	"popchat-backend/repository"
	"popchat-backend/services"
	"popchat-backend/ws"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Sec-WebSocket-Protocol, Sec-WebSocket-Extensions, Sec-WebSocket-Key, Sec-WebSocket-Version, Upgrade, Connection")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	// --- config/env ---
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	cfg := config.Load()
	logger.Init(cfg.Env)

	log.Info().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Dur("ttl", cfg.TTL).
		Int64("max_upload_bytes", cfg.MaxUploadBytes).
		Msg("starting chat server")

	// --- room store ---
	store := repository.NewRoomStore(cfg.TTL)

	// --- uploads (the tree is garbage relative to in-memory state) ---
	uploads := services.NewUploadService(store, cfg.UploadDir, cfg.MaxUploadBytes)
	if err := uploads.Reset(); err != nil {
		log.Fatal().Err(err).Msg("could not prepare upload directory")
	}

	// --- websocket hub ---
	hub := ws.NewHub()
	go hub.Run()

	// --- reaper ---
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	reaper := services.NewReaper(store, uploads, 0)
	go reaper.Run(reaperCtx)

	// --- handlers ---
	uploadH := handlers.NewUploadHandler(uploads, cfg.MaxUploadBytes)
	roomH := handlers.NewRoomHandler()

	// --- mux and routes ---
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/uploads", uploadH.Upload)
	mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, store, w, r)
	})
	mux.HandleFunc("/", roomH.Home)

	handler := withCORS(metrics.Middleware(mux))

	// --- server setup ---
	server := &http.Server{
		Addr:        cfg.Host + ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 0, // uploads and websockets are long-lived
		IdleTimeout: 60 * time.Second,
	}

	// --- graceful shutdown ---
	go func() {
		log.Info().Str("addr", server.Addr).Msg("chat server running")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stopReaper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
