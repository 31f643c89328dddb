package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codeforge/codeforge/internal/admin"
	"github.com/codeforge/codeforge/internal/llm"
	"github.com/codeforge/codeforge/internal/payments"
	"github.com/codeforge/codeforge/internal/registry"
)

var errNoFlusher = errors.New("response writer does not support flushing")

// Server is the OpenAI-chat-compatible HTTP façade in front of a Provider
// Registry, kept from the teacher's pkg/proxy.Server with the
// Codex-specific client/router fields replaced by reg.
type Server struct {
	cfg      Config
	reg      *registry.Registry
	logger   *Logger
	keys     *admin.KeyStore
	limiters *LimiterStore
	usage    *UsageStore
	audit    *AuditLogger
	payments payments.Gateway
}

// Run builds a Server from cfg and reg and serves until the process exits
// or ctx is cancelled.
func Run(ctx context.Context, cfg Config, reg *registry.Registry) error {
	cfg.applyDefaults()

	var keys *admin.KeyStore
	if !cfg.AllowAnyKey {
		var err error
		keys, err = admin.LoadKeyStore(cfg.KeysPath)
		if err != nil {
			return err
		}
	}

	usage := NewUsageStore(cfg.StatsPath, cfg.StatsSummary, cfg.StatsMaxBytes, cfg.StatsMaxBackups, cfg.MeterWindow, cfg.EventsPath, cfg.EventsMaxBytes, cfg.EventsBackups)
	_ = usage.LoadFromFile()

	s := &Server{
		cfg:      cfg,
		reg:      reg,
		logger:   NewLogger(ParseLogLevel(cfg.LogLevel)),
		keys:     keys,
		limiters: NewLimiterStore(cfg.RateLimit, cfg.Burst),
		usage:    usage,
		audit:    NewAuditLogger(cfg.AuditPath, cfg.AuditMaxBytes, cfg.AuditMaxBackups),
		payments: payments.NewTokenMeterGateway(cfg.Payments),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/pricing", s.handlePricing)
	mux.HandleFunc("/health", s.handleHealth)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if strings.TrimSpace(cfg.AdminSocket) != "" && keys != nil {
		adminSrv := admin.New(cfg.AdminSocket, keys)
		go func() { _ = adminSrv.Start(ctx) }()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	s.logRequest(r, http.StatusOK, start)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if _, ok := s.requireAuth(w, r); !ok {
		return
	}
	providers, err := s.reg.ListAvailableProviders()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		s.logRequest(r, http.StatusInternalServerError, start)
		return
	}
	var data []OpenAIModel
	for _, providerID := range providers {
		models, err := s.reg.ListModels(r.Context(), providerID)
		if err != nil {
			continue
		}
		for _, m := range models {
			data = append(data, OpenAIModel{ID: m.ID, Object: "model", OwnedBy: providerID})
		}
	}
	writeJSON(w, http.StatusOK, OpenAIModelsResponse{Object: "list", Data: data})
	s.logRequest(r, http.StatusOK, start)
}

func (s *Server) handlePricing(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil || !s.payments.Enabled() {
		writeJSON(w, http.StatusOK, map[string]any{"status": "disabled", "message": "payments not enabled"})
		return
	}
	status, body, err := s.payments.Pricing(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "unavailable", "message": "token-meter not running"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req OpenAIChatRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		s.logRequest(r, http.StatusBadRequest, start)
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeError(w, http.StatusBadRequest, errors.New("model is required"))
		s.logRequest(r, http.StatusBadRequest, start)
		return
	}

	key, ok := s.requireAuthOrPayment(w, r, req.Model)
	if !ok {
		return
	}
	if ok, reason := s.allowRequest(w, r, key); !ok {
		if reason == "tokens" {
			_ = s.issuePaymentChallenge(w, r, "topup", key.ID, req.Model)
		}
		return
	}

	handle, err := s.reg.GetBestModel(req.Model)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Errorf("model %q not available: %w", req.Model, err))
		s.logRequest(r, http.StatusBadGateway, start)
		return
	}

	canonical := toCanonicalRequest(req)
	canonical.Model = handle.ModelID

	if !req.Stream {
		resp, err := handle.Provider.Generate(r.Context(), canonical)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			s.recordUsage(r, key, http.StatusBadGateway, llm.Usage{})
			s.logRequest(r, http.StatusBadGateway, start)
			return
		}
		writeJSON(w, http.StatusOK, fromCanonicalResponse(req.Model, resp))
		s.recordUsage(r, key, http.StatusOK, resp.Usage)
		s.logRequest(r, http.StatusOK, start)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errNoFlusher)
		s.logRequest(r, http.StatusInternalServerError, start)
		return
	}

	id := newCompletionID()
	var finalUsage llm.Usage
	streamErr := handle.Provider.Stream(r.Context(), canonical, func(delta llm.StreamDelta) error {
		if delta.Usage != nil {
			finalUsage = *delta.Usage
		}
		return writeSSE(w, flusher, fromCanonicalDelta(id, req.Model, delta))
	})
	if streamErr != nil {
		writeError(w, http.StatusBadGateway, streamErr)
		s.recordUsage(r, key, http.StatusBadGateway, finalUsage)
		s.logRequest(r, http.StatusBadGateway, start)
		return
	}
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
	s.recordUsage(r, key, http.StatusOK, finalUsage)
	s.logRequest(r, http.StatusOK, start)
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (*admin.KeyRecord, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		if s.cfg.AllowAnyKey {
			return &admin.KeyRecord{ID: "anonymous", Label: "anonymous"}, true
		}
		writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
		return nil, false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	if s.cfg.AllowAnyKey {
		return &admin.KeyRecord{ID: "anonymous", Label: "anonymous"}, true
	}
	if s.keys == nil {
		writeError(w, http.StatusUnauthorized, errors.New("invalid bearer token"))
		return nil, false
	}
	rec, ok := s.keys.Validate(token)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("invalid bearer token"))
		return nil, false
	}
	return &rec, true
}

func (s *Server) requireAuthOrPayment(w http.ResponseWriter, r *http.Request, model string) (*admin.KeyRecord, bool) {
	if s.handlePaymentRedeem(w, r) {
		return nil, false
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(authz, "Bearer ") {
		if s.issuePaymentChallenge(w, r, "issue_key", "", model) {
			return nil, false
		}
		writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
		return nil, false
	}
	return s.requireAuth(w, r)
}

func (s *Server) allowRequest(w http.ResponseWriter, r *http.Request, key *admin.KeyRecord) (bool, string) {
	if key == nil {
		writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
		return false, "unauthorized"
	}
	if !s.limiters.Allow(key.ID, key.Rate, key.Burst) {
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
		return false, "rate"
	}
	if key.QuotaTokens > 0 && s.usage != nil {
		if s.usage.TotalTokens(key.ID) >= int(key.QuotaTokens) {
			w.Header().Set("Retry-After", "3600")
			writeError(w, http.StatusTooManyRequests, errors.New("quota exceeded"))
			return false, "quota"
		}
	}
	if key.TokenAllowance > 0 && s.keys != nil {
		rec, _, err := s.keys.UpdateAllowanceWindow(key.ID, key.TokenAllowance, time.Duration(key.AllowanceDurationSec)*time.Second, time.Now().UTC())
		if err == nil {
			key.TokenBalance = rec.TokenBalance
		}
		if key.TokenBalance <= 0 {
			return false, "tokens"
		}
	}
	return true, ""
}

func (s *Server) recordUsage(r *http.Request, key *admin.KeyRecord, status int, usage llm.Usage) {
	if key == nil || s.usage == nil {
		return
	}
	total := usage.TotalTokens
	if total > 0 && s.keys != nil {
		_, _ = s.keys.AddTokens(key.ID, int64(-total))
	}
	s.usage.Record(UsageEvent{
		Timestamp:        time.Now().UTC(),
		KeyID:            key.ID,
		Label:            key.Label,
		Path:             reqPath(r),
		Status:           status,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      total,
	})
}

func (s *Server) handlePaymentRedeem(w http.ResponseWriter, r *http.Request) bool {
	if s.payments == nil || !s.payments.Enabled() {
		return false
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(authz, "L402 ") {
		return false
	}
	status, body, err := s.payments.Redeem(r.Context(), authz)
	if err != nil {
		writeError(w, http.StatusPaymentRequired, err)
		return true
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	return true
}

func (s *Server) issuePaymentChallenge(w http.ResponseWriter, r *http.Request, purpose, keyID, model string) bool {
	if s.payments == nil || !s.payments.Enabled() {
		return false
	}
	status, headers, body, err := s.payments.Challenge(r.Context(), purpose, keyID, model, r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusPaymentRequired, err)
		return true
	}
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	if len(body) == 0 {
		writeError(w, status, errors.New("payment required"))
		return true
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	return true
}

func (s *Server) logRequest(r *http.Request, status int, start time.Time) {
	if !s.cfg.LogRequests || s.logger == nil {
		return
	}
	s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", fmt.Sprintf("%d", status), "elapsed", time.Since(start).String())
}

func reqPath(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}
	return r.URL.Path
}

func readJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 20*1024*1024))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, map[string]any{"error": map[string]any{"message": err.Error(), "type": "proxy_error"}})
}

func writeSSE(w io.Writer, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
