package api

import (
	"encoding/csv"
	"log"
	"net/http"
	"strconv"
	"time"
)

// CSV export is a thin read adapter over the telemetry ledger; the queries
// reuse the same limits as the JSON endpoints.

func (s *Server) handleExportOutcomes(w http.ResponseWriter, r *http.Request) {
	outcomes, err := s.telemetry.ListOutcomes(r.Context(), queryInt(r.URL.Query().Get("limit")))
	if err != nil {
		writeError(w, err)
		return
	}

	setCSVHeaders(w, "outcomes.csv")
	cw := csv.NewWriter(w)
	writeRow(cw, []string{"id", "device_id", "status", "version", "error_message", "latency_ms", "timestamp"})
	for _, o := range outcomes {
		errMsg := ""
		if o.ErrorMessage != nil {
			errMsg = *o.ErrorMessage
		}
		latency := ""
		if o.LatencyMs != nil {
			latency = strconv.FormatInt(*o.LatencyMs, 10)
		}
		writeRow(cw, []string{
			strconv.FormatInt(o.ID, 10),
			o.DeviceID,
			o.Status,
			o.Version,
			errMsg,
			latency,
			o.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("outcome export aborted: %v", err)
	}
}

func (s *Server) handleExportSensors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	readings, err := s.telemetry.ListSensorReadings(r.Context(),
		q.Get("device_id"),
		queryInt(q.Get("limit")),
		queryInt(q.Get("offset")),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	setCSVHeaders(w, "sensors.csv")
	cw := csv.NewWriter(w)
	writeRow(cw, []string{"id", "device_id", "temperature", "humidity", "light", "timestamp"})
	for _, reading := range readings {
		writeRow(cw, []string{
			strconv.FormatInt(reading.ID, 10),
			reading.DeviceID,
			formatFloat(&reading.Temperature),
			formatFloat(reading.Humidity),
			formatFloat(reading.Light),
			reading.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		log.Printf("sensor export aborted: %v", err)
	}
}

func setCSVHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
}

func writeRow(cw *csv.Writer, row []string) {
	// Errors surface from cw.Error() after Flush.
	_ = cw.Write(row)
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
