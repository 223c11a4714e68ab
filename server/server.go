package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stemdeck/config"
	"stemdeck/core/engine"
	"stemdeck/db"
	"stemdeck/logger"
	"stemdeck/repository"

	"github.com/gorilla/mux"
)

// Start initializes the engine and serves the command surface over
// HTTP plus the event surface over WebSocket until interrupted.
func Start() {
	cfg := config.Load()

	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		FilePath:   cfg.LogPath,
		MaxSizeMB:  20,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
	})
	defer logger.Sync()

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to open metadata store", logger.Err(err))
	}
	defer db.CloseDB()

	if err := db.InitDB(); err != nil {
		logger.Fatal("failed to migrate metadata store", logger.Err(err))
	}

	songRepo := repository.NewSongRepository(db.DB)
	stemRepo := repository.NewStemRepository(db.DB)
	setlistRepo := repository.NewSetlistRepository(db.DB)
	settingsRepo := repository.NewSettingsRepository(db.DB)

	eng, err := engine.New(cfg, songRepo, stemRepo, setlistRepo, settingsRepo)
	if err != nil {
		logger.Fatal("failed to create engine", logger.Err(err))
	}
	if err := eng.Start(); err != nil {
		logger.Fatal("failed to start engine", logger.Err(err))
	}
	defer eng.Close()

	handler := NewAPIHandler(eng)

	router := mux.NewRouter()
	router.Use(corsMiddleware)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("engine listening", logger.F("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.Err(err))
		}
	}()

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", logger.Err(err))
	}
}

// corsMiddleware allows local UI shells on other ports.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
