package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mediarise/captionbot/internal/models"
	"github.com/mediarise/captionbot/internal/quota"
	"github.com/mediarise/captionbot/internal/repository"
	"github.com/mediarise/captionbot/internal/service"
)

// Pusher delivers a message to one user outside a reply context.
type Pusher interface {
	Push(ctx context.Context, userID, text string) error
}

type Server struct {
	addr         string
	username     string
	password     string
	log          *slog.Logger
	entitlements *service.EntitlementService
	referrals    *service.ReferralService
	captions     *repository.CaptionRepository
	pusher       Pusher
	router       *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, entitlements *service.EntitlementService, referrals *service.ReferralService, captions *repository.CaptionRepository, pusher Pusher) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:         addr,
		username:     username,
		password:     password,
		log:          log,
		entitlements: entitlements,
		referrals:    referrals,
		captions:     captions,
		pusher:       pusher,
		router:       r,
	}
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Post("/broadcast", s.handleBroadcast)
		protected.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Post("/bonus", s.handleTopUp)
			r.Put("/vip", s.handleGrantVIP)
			r.Delete("/vip", s.handleClearVIP)
		})
		protected.Route("/referral-codes", func(r chi.Router) {
			r.Get("/", s.handleListCodes)
			r.Post("/", s.handleCreateCode)
			r.Put("/{id}", s.handleUpdateCode)
			r.Delete("/{id}", s.handleDeleteCode)
		})
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

type userResponse struct {
	UserID        string `json:"user_id"`
	DailyLimit    int    `json:"daily_limit"`
	UsedToday     int    `json:"used_today"`
	Remaining     int    `json:"remaining_today"`
	LastReset     string `json:"last_reset"`
	ReferralBonus int    `json:"referral_bonus"`
	ServiceBonus  int    `json:"service_bonus"`
	RewardBonus   int    `json:"reward_bonus"`
	VIPExpiry     string `json:"vip_expiry,omitempty"`
	CaptionsToday int    `json:"captions_today"`
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	ent, err := s.entitlements.Status(r.Context(), userID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	count, err := s.captions.CountForDay(r.Context(), userID, time.Now().UTC())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toUserResponse(ent, count))
}

type topUpRequest struct {
	Pool   string `json:"pool"`
	Amount int    `json:"amount"`
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Amount == 0 {
		http.Error(w, "amount required", http.StatusBadRequest)
		return
	}
	ent, err := s.entitlements.TopUp(r.Context(), userID, models.BonusPool(strings.ToLower(req.Pool)), req.Amount)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toUserResponse(ent, 0))
}

type vipRequest struct {
	Days int `json:"days"`
}

func (s *Server) handleGrantVIP(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req vipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	ent, err := s.entitlements.GrantVIP(r.Context(), userID, req.Days)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toUserResponse(ent, 0))
}

func (s *Server) handleClearVIP(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	ent, err := s.entitlements.ClearVIP(r.Context(), userID)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toUserResponse(ent, 0))
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	ids, err := s.entitlements.ListUserIDs(ctx)
	if err != nil {
		s.internalError(w, err)
		return
	}

	count := 0
	for _, id := range ids {
		if err := s.pusher.Push(ctx, id, req.Message); err != nil {
			s.log.Error("send broadcast", "user", id, "err", err)
			continue
		}
		count++
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"sent":  count,
		"total": len(ids),
	})
}

func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.referrals.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toCodeResponses(codes))
}

type codeRequest struct {
	Code    string `json:"code"`
	Bonus   int    `json:"bonus"`
	MaxUses int    `json:"max_uses"`
}

func (s *Server) handleCreateCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	code, err := s.referrals.Create(r.Context(), req.Code, req.Bonus, req.MaxUses)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toCodeResponse(*code))
}

type codeUpdateRequest struct {
	Code    *string `json:"code"`
	Bonus   *int    `json:"bonus"`
	MaxUses *int    `json:"max_uses"`
	Uses    *int    `json:"uses"`
}

func (s *Server) handleUpdateCode(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req codeUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	existing, err := s.referrals.GetByID(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if existing == nil {
		http.Error(w, "referral code not found", http.StatusNotFound)
		return
	}
	code := existing.Code
	if req.Code != nil && *req.Code != "" {
		code = *req.Code
	}
	bonus := existing.Bonus
	if req.Bonus != nil && *req.Bonus > 0 {
		bonus = *req.Bonus
	}
	maxUses := existing.MaxUses
	if req.MaxUses != nil && *req.MaxUses > 0 {
		maxUses = *req.MaxUses
	}
	uses := existing.Uses
	if req.Uses != nil && *req.Uses >= 0 {
		uses = *req.Uses
	}
	updated, err := s.referrals.Update(r.Context(), id, code, bonus, maxUses, uses)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toCodeResponse(*updated))
}

func (s *Server) handleDeleteCode(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.referrals.Delete(r.Context(), id); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="captionbot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func toUserResponse(ent *models.Entitlement, captionsToday int) userResponse {
	resp := userResponse{
		UserID:        ent.UserID,
		DailyLimit:    ent.DailyLimit,
		UsedToday:     ent.UsedToday,
		Remaining:     quota.RemainingToday(ent),
		LastReset:     ent.LastReset.Format("2006-01-02"),
		ReferralBonus: ent.ReferralBonus,
		ServiceBonus:  ent.ServiceBonus,
		RewardBonus:   ent.RewardBonus,
		CaptionsToday: captionsToday,
	}
	if ent.VIPExpiry != nil {
		resp.VIPExpiry = ent.VIPExpiry.Format("2006-01-02")
	}
	return resp
}

type codeResponse struct {
	ID      int64  `json:"id"`
	Code    string `json:"code"`
	Bonus   int    `json:"bonus"`
	MaxUses int    `json:"max_uses"`
	Uses    int    `json:"uses"`
}

func toCodeResponse(code models.ReferralCode) codeResponse {
	return codeResponse{
		ID:      code.ID,
		Code:    code.Code,
		Bonus:   code.Bonus,
		MaxUses: code.MaxUses,
		Uses:    code.Uses,
	}
}

func toCodeResponses(codes []models.ReferralCode) []codeResponse {
	out := make([]codeResponse, 0, len(codes))
	for _, code := range codes {
		out = append(out, toCodeResponse(code))
	}
	return out
}
