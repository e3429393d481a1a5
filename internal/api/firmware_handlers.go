package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/otafleet/otafleet/internal/models"
	"github.com/otafleet/otafleet/internal/services"
)

// uploadFormSlack covers multipart framing and metadata fields on top of the
// firmware binary itself.
const uploadFormSlack = 1 << 20

type uploadResponse struct {
	Success   bool    `json:"success"`
	ReleaseID int64   `json:"release_id"`
	File      string  `json:"file"`
	Version   string  `json:"version"`
	Checksum  *string `json:"checksum,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.firmware.MaxSize()+uploadFormSlack)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, services.ErrArtifactTooLarge)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("firmware")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no firmware file uploaded"})
		return
	}
	defer file.Close()

	release, err := s.firmware.Publish(r.Context(), services.PublishRequest{
		Version:     r.FormValue("version"),
		DeviceClass: r.FormValue("device"),
		Notes:       r.FormValue("notes"),
		Filename:    header.Filename,
		Body:        file,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	publishesTotal.Inc()
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:   true,
		ReleaseID: release.ID,
		File:      release.BlobKey,
		Version:   release.Version,
		Checksum:  release.Checksum,
	})
}

func (s *Server) handleResolveVersion(w http.ResponseWriter, r *http.Request) {
	result, err := s.firmware.Resolve(r.Context(), r.URL.Query().Get("device"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	device := r.URL.Query().Get("device")
	version := r.URL.Query().Get("version")

	rc, release, err := s.firmware.Download(r.Context(), device, version)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	downloadsTotal.Inc()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", release.BlobKey))
	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; nothing to do but note the broken transfer.
		log.Printf("firmware download aborted for %s: %v", release.BlobKey, err)
	}
}

func (s *Server) handleListReleases(w http.ResponseWriter, r *http.Request) {
	releases, err := s.firmware.ListReleases(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if releases == nil {
		releases = []*models.Release{}
	}
	writeJSON(w, http.StatusOK, releases)
}

func (s *Server) handleRetract(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "releaseID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "release id must be numeric"})
		return
	}

	if err := s.firmware.Retract(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	retractionsTotal.Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "release retracted",
	})
}
