package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HealthFunc func(ctx context.Context) error

// Contadores de domínio expostos pelos serviços no registry default.
var (
	BetsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_bets_placed_total",
		Help: "Apostas aceitas por tipo de jogo",
	}, []string{"game_type"})

	BetsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_bets_rejected_total",
		Help: "Apostas rejeitadas por motivo",
	}, []string{"game_type", "reason"})

	BetsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_bets_settled_total",
		Help: "Apostas liquidadas por jogo e resultado (win/loss/void)",
	}, []string{"game_type", "result"})

	PayoutCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_payout_cents_total",
		Help: "Total pago em centavos por tipo de jogo",
	}, []string{"game_type"})

	RoundsVoided = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_rounds_voided_total",
		Help: "Rounds anulados (falha de provider/abort)",
	}, []string{"game_type"})

	PayoutRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casino_payout_retries_total",
		Help: "Créditos de payout recusados pelo ledger e reenfileirados",
	})

	LedgerConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casino_ledger_conflicts_total",
		Help: "Conflitos de concorrência otimista no ledger (antes do retry)",
	})

	ConsumerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_consumer_errors_total",
		Help: "Erros do stats-worker por fase (read/decode/redis)",
	}, []string{"phase"})
)

// StartMetricsServer sobe um servidor HTTP leve só pra /metrics e /healthz.
// Executado numa goroutine no main de cada serviço.
func StartMetricsServer(port string, healthFn HealthFunc) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("unhealthy: %v", err)))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		_ = srv.ListenAndServe()
	}()

	return srv
}
