package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"time"

	storesync "github.com/freshstart/freshstart/internal/store/sync"
)

// FlushData describes a finished flush.
type FlushData struct {
	Trigger    string        `json:"trigger"`
	Written    []string      `json:"written"`
	Failed     []string      `json:"failed,omitempty"`
	Error      string        `json:"error,omitempty"`
	BackupPath string        `json:"backup_path,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// RestoreData describes a restore.
type RestoreData struct {
	Restored []string `json:"restored"`
	Kept     []string `json:"kept"`
	Missing  []string `json:"missing"`
}

// WipeData describes a ClearAllData outcome.
type WipeData struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BackupData names a fallback export artifact.
type BackupData struct {
	Path string `json:"path"`
}

// Handler turns sync manager events into dashboard messages. Register
// OnEvent with the manager.
type Handler struct {
	server *Server
	stats  StatsFunc
	logger *log.Logger
}

// NewHandler creates a new event handler connected to a dashboard server.
// stats may be nil.
func NewHandler(server *Server, stats StatsFunc, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	return &Handler{server: server, stats: stats, logger: logger}
}

// OnEvent handles one sync manager event.
func (h *Handler) OnEvent(ev storesync.Event) {
	switch ev.Kind {
	case storesync.EventFlushFinished:
		if ev.Result == nil {
			return
		}
		h.onFlush(ev.Result)
	case storesync.EventRestored:
		if ev.Restore == nil {
			return
		}
		h.send(MessageTypeRestore, ev.At, RestoreData{
			Restored: names(ev.Restore.Restored),
			Kept:     names(ev.Restore.Kept),
			Missing:  names(ev.Restore.Missing),
		})
		h.BroadcastStats()
	case storesync.EventWiped:
		data := WipeData{OK: ev.Err == nil}
		if ev.Err != nil {
			data.Error = ev.Err.Error()
		}
		h.send(MessageTypeWipe, ev.At, data)
		h.BroadcastStats()
	case storesync.EventFallback:
		h.send(MessageTypeBackup, ev.At, BackupData{Path: ev.Path})
	}
}

func (h *Handler) onFlush(r *storesync.FlushResult) {
	data := FlushData{
		Trigger:    r.Trigger.String(),
		Written:    []string{},
		BackupPath: r.BackupPath,
		Duration:   r.Finished.Sub(r.Started),
	}
	for _, d := range r.Datasets {
		if d.Written {
			data.Written = append(data.Written, d.Dataset.String())
		}
		if d.Err != nil {
			data.Failed = append(data.Failed, d.Dataset.String())
		}
	}
	if r.Err != nil {
		data.Error = r.Err.Error()
	}
	h.logger.Printf("Flush (%s): %d written, %d failed", data.Trigger, len(data.Written), len(data.Failed))
	h.send(MessageTypeFlush, r.Finished, data)
	h.BroadcastStats()
}

// BroadcastStats sends current progress statistics to all clients.
func (h *Handler) BroadcastStats() {
	if h.stats == nil {
		return
	}
	st, err := h.stats()
	if err != nil {
		h.logger.Printf("Failed to compute stats: %v", err)
		return
	}
	h.send(MessageTypeStats, time.Now(), st)
}

func (h *Handler) send(typ MessageType, at time.Time, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: at, Data: dataJSON})
}

func names[T ~string](ds []T) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d)
	}
	return out
}
