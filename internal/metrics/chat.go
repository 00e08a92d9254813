package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(chatTurnsTotal) }

var chatTurnsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "docintel_chat_turns_total",
		Help: "Settled chat turns by outcome.",
	},
	[]string{"outcome"}, // delivered, rolled_back, low_balance
)

func IncChatTurn(outcome string) {
	chatTurnsTotal.WithLabelValues(norm(outcome)).Inc()
}
