package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/sleepstate"
)

// startHTTPServer 启动管理接口：指标、健康检查、干预和报表查询
func (s *MonitorService) startHTTPServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/intervene", s.handleIntervene)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/sleep-blocks", s.handleSleepBlocks)
	mux.HandleFunc("/api/sleep-patterns", s.handleSleepPatterns)
	mux.HandleFunc("/api/sensor-stats", s.handleSensorStats)

	s.httpServer = &http.Server{
		Addr:    s.config.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
}

func (s *MonitorService) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":         "ok",
		"mqtt_connected": s.mqttClient.IsConnected(),
	}
	writeJSON(w, http.StatusOK, status)
}

// interventionRequest 干预请求体
type interventionRequest struct {
	BabyID int64  `json:"baby_id"`
	Action string `json:"action"` // mark_asleep | mark_awake
}

func (s *MonitorService) handleIntervene(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req interventionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := s.Intervene(r.Context(), req.BabyID, sleepstate.Action(req.Action))
	if err != nil {
		var cooldownErr *sleepstate.CooldownActiveError
		if errors.As(err, &cooldownErr) {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":             "intervention cooldown active",
				"remaining_minutes": cooldownErr.RemainingMinutes(),
				"state":             state,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state": state,
	})
}

func (s *MonitorService) handleState(w http.ResponseWriter, r *http.Request) {
	babyID, ok := babyIDParam(w, r)
	if !ok {
		return
	}

	resp := map[string]interface{}{
		"baby_id": babyID,
		"state":   s.State(babyID),
	}
	if remaining, active := s.CooldownRemaining(babyID); active {
		resp["cooldown_remaining_seconds"] = int(remaining.Seconds())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *MonitorService) handleSleepBlocks(w http.ResponseWriter, r *http.Request) {
	babyID, ok := babyIDParam(w, r)
	if !ok {
		return
	}
	start, end, ok := periodParams(w, r)
	if !ok {
		return
	}

	blocks, err := s.SleepBlocksForPeriod(r.Context(), babyID, start, end)
	if err != nil {
		s.logger.Error("Failed to build sleep blocks", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build sleep blocks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"baby_id": babyID,
		"blocks":  blocks,
	})
}

func (s *MonitorService) handleSleepPatterns(w http.ResponseWriter, r *http.Request) {
	babyID, ok := babyIDParam(w, r)
	if !ok {
		return
	}
	start, end, ok := periodParams(w, r)
	if !ok {
		return
	}

	patterns, err := s.SleepPatternsForPeriod(r.Context(), babyID, start, end)
	if err != nil {
		s.logger.Error("Failed to analyze sleep patterns", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to analyze sleep patterns")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"baby_id":  babyID,
		"patterns": patterns,
	})
}

func (s *MonitorService) handleSensorStats(w http.ResponseWriter, r *http.Request) {
	babyID, ok := babyIDParam(w, r)
	if !ok {
		return
	}
	start, end, ok := periodParams(w, r)
	if !ok {
		return
	}

	stats, err := s.sampleRepo.StatsForPeriod(r.Context(), babyID, start, end)
	if err != nil {
		s.logger.Error("Failed to load sensor stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load sensor stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"baby_id": babyID,
		"stats":   stats,
	})
}

// babyIDParam 解析 baby_id 查询参数
func babyIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("baby_id")
	babyID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid baby_id")
		return 0, false
	}
	return babyID, true
}

// periodParams 解析 start/end 查询参数（RFC3339），缺省为最近 7 天
func periodParams(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	end := time.Now()
	start := end.Add(-7 * 24 * time.Hour)

	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start")
			return time.Time{}, time.Time{}, false
		}
		start = parsed
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end")
			return time.Time{}, time.Time{}, false
		}
		end = parsed
	}

	return start, end, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
