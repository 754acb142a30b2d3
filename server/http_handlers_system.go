package server

import (
	"encoding/base64"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mjohnson139/MobileApi-sub000/protocol"
)

// handleHealth reports liveness. No auth: probes and load balancers use it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthData{
		Status:    "ok",
		Uptime:    s.uptime(),
		Timestamp: time.Now(),
		Server: protocol.ServerInfo{
			Port:    s.opts.Port,
			Version: Version,
		},
	})
}

// handleMetrics returns the JSON aggregate counters.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Metrics.Snapshot(s.opts.Store.UpdateCount()))
}

// handleScreenshot captures a frame via the platform provider. The capture
// is the one blocking platform call in the system, so it runs under the
// request's deadline.
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	shot, err := s.opts.Screens.Capture(r.Context())
	if err != nil {
		s.logger.Error("screenshot capture failed", zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, protocol.ScreenshotData{
		ImageData:  base64.StdEncoding.EncodeToString(shot.Data),
		Format:     shot.Format,
		CapturedAt: shot.CapturedAt,
		Metadata: protocol.ScreenshotMetadata{
			Width:  shot.Width,
			Height: shot.Height,
			Size:   len(shot.Data),
		},
	})
}
