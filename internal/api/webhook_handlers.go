package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
)

type pushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
}

// handleGithubWebhook auto-publishes the configured build artifact when a
// push to main arrives. Other events are acknowledged without action.
func (s *Server) handleGithubWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}

	if s.webhookSecret != "" && !validSignature(s.webhookSecret, r.Header.Get("X-Hub-Signature-256"), body) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid webhook signature"})
		return
	}

	var event pushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if r.Header.Get("X-GitHub-Event") != "push" || event.Ref != "refs/heads/main" {
		writeJSON(w, http.StatusOK, ackResponse{
			Success: true,
			Message: "webhook received, no action taken",
		})
		return
	}

	release, err := s.firmware.PublishFromBuild(r.Context(), s.buildArtifactPath, event.After)
	if err != nil {
		writeError(w, err)
		return
	}

	publishesTotal.Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "firmware published from build artifact",
		"version": release.Version,
	})
}

func validSignature(secret, header string, body []byte) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header[len(prefix):]))
}
