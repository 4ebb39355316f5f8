package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/radieske/casino-games-platform-poc/internal/shared/config"
	"github.com/radieske/casino-games-platform-poc/internal/shared/logger"
)

func rp(to string) *httputil.ReverseProxy {
	u, _ := url.Parse(to)
	return httputil.NewSingleHostReverseProxy(u)
}

// api-gateway é a fachada única do frontend: roteia contas/autenticação
// pro wallet-service e jogos/apostas (inclusive o WebSocket) pro
// game-service.
func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	walletURL := os.Getenv("WALLET_URL")
	if walletURL == "" {
		walletURL = "http://localhost:8082"
	}
	gameURL := os.Getenv("GAME_URL")
	if gameURL == "" {
		gameURL = "http://localhost:8083"
	}
	wallet := rp(walletURL)
	game := rp(gameURL)

	mux := http.NewServeMux()

	// contas e sessão (ex.: /api/wallet/v1/register -> wallet-service)
	mux.Handle("/api/wallet/", http.StripPrefix("/api/wallet", wallet))

	// jogos, apostas, histórico e WS (ex.: /api/games/v1/bets -> game-service)
	mux.Handle("/api/games/", http.StripPrefix("/api/games", game))

	addr := ":" + cfg.HTTPPort
	log.Info("api-gateway listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, withCORS(mux)); err != nil && err != http.ErrServerClosed {
		log.Fatal("gateway failed", zap.Error(err))
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Session-Token")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
