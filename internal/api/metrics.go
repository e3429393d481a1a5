package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otafleet_publishes_total",
		Help: "Firmware releases published.",
	})
	downloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otafleet_downloads_total",
		Help: "Firmware binaries downloaded.",
	})
	retractionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otafleet_retractions_total",
		Help: "Firmware releases retracted.",
	})
	heartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otafleet_heartbeats_total",
		Help: "Device heartbeats ingested.",
	})
	outcomesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otafleet_update_outcomes_total",
		Help: "Update outcome events ingested.",
	})
	sensorReadingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otafleet_sensor_readings_total",
		Help: "Sensor readings ingested.",
	})
	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otafleet_rate_limited_requests_total",
		Help: "Requests rejected by the rate limiter.",
	})
)
