package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "aced",
		Name:      "chain_height",
		Help:      "Latest anchored block id known locally.",
	})

	MempoolTransactions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "aced",
		Name:      "mempool_transactions",
		Help:      "Number of transactions waiting in the mempool.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "aced",
		Name:      "peers_connected",
		Help:      "Number of connected peers.",
	})

	BlocksProposed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aced",
		Name:      "blocks_proposed_total",
		Help:      "Total blocks proposed in our slots.",
	})

	ProposalsAborted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aced",
		Name:      "proposals_aborted_total",
		Help:      "Prepared blocks discarded because the slot elapsed.",
	})

	ShardsServed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aced",
		Name:      "shards_served_total",
		Help:      "Shard requests answered from this node's proposed blocks.",
	})

	SamplesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aced",
		Name:      "samples_stored_total",
		Help:      "Sample sets persisted to the store.",
	})

	VotesSigned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aced",
		Name:      "votes_signed_total",
		Help:      "Availability votes signed by this scale node.",
	})

	VotesSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aced",
		Name:      "votes_submitted_total",
		Help:      "Aggregated vote submissions by result.",
	}, []string{"result"})

	BlocksCollected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aced",
		Name:      "blocks_collected_total",
		Help:      "Blocks fully reconstructed by the collector.",
	})

	FraudProofs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aced",
		Name:      "fraud_proofs_total",
		Help:      "Incorrect-coding proofs emitted by kind.",
	}, []string{"kind"})

	DecodeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aced",
		Name:      "decode_seconds",
		Help:      "Wall time of full tree decodes.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	EncodeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aced",
		Name:      "encode_seconds",
		Help:      "Wall time of coded Merkle tree construction.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(
		ChainHeight,
		MempoolTransactions,
		PeersConnected,
		BlocksProposed,
		ProposalsAborted,
		ShardsServed,
		SamplesStored,
		VotesSigned,
		VotesSubmitted,
		BlocksCollected,
		FraudProofs,
		DecodeSeconds,
		EncodeSeconds,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
