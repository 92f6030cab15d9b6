package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "bpe"

var (
	mergesLearned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "trainer_merges_total",
			Help:      "Count of merges learned by the trainer.",
		},
	)
	mergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "trainer_merge_duration_seconds",
			Help:      "Time spent counting, selecting and applying one merge.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)
	unitsCounted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "trainer_pretoken_units_total",
			Help:      "Count of pre-token units read from training corpora.",
		},
	)
	tokensEncoded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "tokenizer_encoded_tokens_total",
			Help:      "Count of token ids produced by the tokenizer.",
		},
	)
	encodeCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "tokenizer_cache_lookups_total",
			Help:      "Count of encode cache lookups by result.",
		},
		[]string{"result"},
	)
)

var registerMetrics sync.Once

// Register all metrics with reg. Only the first call has an effect.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(mergesLearned)
		reg.MustRegister(mergeDuration)
		reg.MustRegister(unitsCounted)
		reg.MustRegister(tokensEncoded)
		reg.MustRegister(encodeCacheLookups)
	})
}

// RecordMerge records one learned merge and how long the iteration took.
func RecordMerge(d time.Duration) {
	mergesLearned.Inc()
	mergeDuration.Observe(d.Seconds())
}

// RecordUnitsCounted records n pre-token units added to a frequency table.
func RecordUnitsCounted(n int64) {
	unitsCounted.Add(float64(n))
}

// RecordTokensEncoded records n ids emitted by an encode call.
func RecordTokensEncoded(n int) {
	tokensEncoded.Add(float64(n))
}

// RecordEncodeCache records a cache hit or miss.
func RecordEncodeCache(hit bool) {
	if hit {
		encodeCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	encodeCacheLookups.WithLabelValues("miss").Inc()
}
