// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/rebuttal-gg/rebuttal/internal/auth"
	"github.com/rebuttal-gg/rebuttal/internal/cache"
	"github.com/rebuttal-gg/rebuttal/internal/database"
	"github.com/rebuttal-gg/rebuttal/internal/handlers"
	"github.com/rebuttal-gg/rebuttal/internal/middleware"
)

func main() {
	auth.Init()
	database.ConnectDB()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Transcripts are best-effort; run without Redis if it is unreachable.
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("redis unavailable, transcripts disabled: %v", err)
	}

	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("/user/create", handlers.CreateUserHandler)
	mux.HandleFunc("/user/login", handlers.LoginHandler)
	mux.HandleFunc("/user/me", handlers.MeHandler)
	mux.HandleFunc("/user/lookup", handlers.LookupUserHandler)
	mux.HandleFunc("/user/profile", handlers.UpdateProfileHandler)
	mux.HandleFunc("/user/leaderboard", handlers.LeaderboardHandler)

	// arena websocket: matchmaking, lobbies, and live sessions
	srv := handlers.NewDebateServer(logger)
	mux.Handle("/arena/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ArenaWSHandler(logger, srv),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
