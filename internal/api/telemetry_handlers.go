package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/otafleet/otafleet/internal/models"
	"github.com/otafleet/otafleet/internal/services"
)

type ackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req services.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if _, err := s.telemetry.RecordHeartbeat(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}

	heartbeatsTotal.Inc()
	writeJSON(w, http.StatusOK, ackResponse{Success: true, Message: "heartbeat recorded"})
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var req services.OutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if _, err := s.telemetry.RecordOutcome(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}

	outcomesTotal.Inc()
	writeJSON(w, http.StatusOK, ackResponse{Success: true, Message: "log recorded"})
}

func (s *Server) handleSensorPost(w http.ResponseWriter, r *http.Request) {
	var req services.SensorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if _, err := s.telemetry.RecordSensorReading(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}

	sensorReadingsTotal.Inc()
	writeJSON(w, http.StatusOK, ackResponse{Success: true, Message: "sensor data recorded"})
}

func (s *Server) handleSensorList(w http.ResponseWriter, r *http.Request) {
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
	if readings == nil {
		readings = []*models.SensorReading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.telemetry.ListDeviceStatuses(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if statuses == nil {
		statuses = []services.DeviceStatus{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleListOutcomes(w http.ResponseWriter, r *http.Request) {
	outcomes, err := s.telemetry.ListOutcomes(r.Context(), queryInt(r.URL.Query().Get("limit")))
	if err != nil {
		writeError(w, err)
		return
	}
	if outcomes == nil {
		outcomes = []*models.UpdateOutcome{}
	}
	writeJSON(w, http.StatusOK, outcomes)
}

// queryInt parses an optional numeric query parameter; anything unparseable
// falls back to zero and the service applies its default.
func queryInt(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
