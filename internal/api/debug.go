package api

import (
    "net/http"
    "time"

    "routecap/internal/buildinfo"
)

// DebugJSON reports build info and the effective configuration with secrets redacted.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{
        "build":           buildinfo.Info(),
        "time":            time.Now().UTC().Format(time.RFC3339),
        "config":          s.Config.Redacted(),
        "webhooksPending": s.Webhooks.Pending(),
    })
}
