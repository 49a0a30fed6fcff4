package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aisensei",
		Subsystem: "llm",
		Name:      "provider_duration_seconds",
		Help:      "Duration of provider completion calls",
	}, []string{"provider", "model"})

	providerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aisensei",
		Subsystem: "llm",
		Name:      "provider_failures_total",
		Help:      "Number of failed provider completion calls",
	}, []string{"provider", "model"})

	tokensUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aisensei",
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Tokens consumed per provider, model and direction",
	}, []string{"provider", "model", "kind"})
)
