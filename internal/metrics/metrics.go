package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chartview_frames_composited_total",
		Help: "Total number of composited frames published",
	})
	FramesDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chartview_frames_failed_total",
		Help: "Total number of compositing passes that kept the previous frame",
	})
	CompositeDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chartview_composite_duration_ms",
		Help:    "Compositing pass duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	RequestsCoalescedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chartview_requests_coalesced_total",
		Help: "Requests superseded before the worker took them",
	}, []string{"queue"})
	ActivationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chartview_activations_total",
		Help: "Map source activations by kind",
	}, []string{"kind"})
	ActivationFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chartview_activation_failures_total",
		Help: "Failed map source activations by kind",
	}, []string{"kind"})
	MapSwitchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chartview_map_switches_total",
		Help: "Total number of current map changes",
	})
	CoverageRecomputesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chartview_coverage_recomputes_total",
		Help: "Total number of covering map set recomputations",
	})
	TileCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chartview_tile_cache_hits_total",
		Help: "Tile cache hits by cache layer",
	}, []string{"layer"})
	TileCacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chartview_tile_cache_misses_total",
		Help: "Tile cache misses by cache layer",
	}, []string{"layer"})
	TileFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chartview_tile_fetch_total",
		Help: "Tile fetches by provider and result",
	}, []string{"provider", "result"})
	TileFetchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chartview_tile_fetch_duration_ms",
		Help:    "Tile fetch duration in milliseconds",
		Buckets: []float64{10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	}, []string{"provider"})
	DecodedEvictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chartview_decoded_evictions_total",
		Help: "Decoded tiles dropped to stay within the memory budget by source kind",
	}, []string{"kind"})
	CatalogMaps = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chartview_catalog_maps",
		Help: "Maps in the catalog by state",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(FramesTotal)
	prometheus.MustRegister(FramesDroppedTotal)
	prometheus.MustRegister(CompositeDurationMs)
	prometheus.MustRegister(RequestsCoalescedTotal)
	prometheus.MustRegister(ActivationsTotal)
	prometheus.MustRegister(ActivationFailuresTotal)
	prometheus.MustRegister(MapSwitchesTotal)
	prometheus.MustRegister(CoverageRecomputesTotal)
	prometheus.MustRegister(TileCacheHitsTotal)
	prometheus.MustRegister(TileCacheMissesTotal)
	prometheus.MustRegister(TileFetchTotal)
	prometheus.MustRegister(TileFetchDurationMs)
	prometheus.MustRegister(DecodedEvictionsTotal)
	prometheus.MustRegister(CatalogMaps)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
