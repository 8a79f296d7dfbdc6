package ctlplane

import (
	"encoding/json"
	"net/http"
	"time"

	"chaosbot.dev/chaos-bot/internal/logging"
)

// handleLogStream serves GET /api/v1/logs. On subscribe it flushes the
// current in-memory ring buffer (bounded at 1000 lines per spec §4.7),
// then polls for new entries and emits them as SSE until the client
// disconnects.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	buf := logging.GetAppLogBuffer()
	var lastSeen time.Time

	for _, entry := range buf.GetLast(1000) {
		writeLogEvent(w, entry)
		if entry.Timestamp.After(lastSeen) {
			lastSeen = entry.Timestamp
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			for _, entry := range buf.GetAll() {
				if !entry.Timestamp.After(lastSeen) {
					continue
				}
				writeLogEvent(w, entry)
				lastSeen = entry.Timestamp
			}
			flusher.Flush()
		}
	}
}

func writeLogEvent(w http.ResponseWriter, entry logging.AppLogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
}
