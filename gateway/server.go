package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"boxchain/core"
	"boxchain/native/mint"
	"boxchain/native/referral"
	"boxchain/native/reward"
)

// Server exposes the engine's read-only query surface over HTTP. Mutations
// never travel this path; they belong to the transaction host.
type Server struct {
	node *core.Node
	log  *slog.Logger
}

// NewServer builds the query server around a node.
func NewServer(node *core.Node, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{node: node, log: log}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(newObservability().middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/config", s.handleConfig)
		v1.Get("/quote", s.handleQuote)
		v1.Get("/levels/{level}", s.handleLevel)
		v1.Get("/boxes/{id}", s.handleBox)
		v1.Get("/codes/{code}", s.handleCode)
		v1.Get("/referrers/{addr}", s.handleReferrer)
		v1.Get("/referrers/{addr}/records", s.handleRecords)
		v1.Get("/referrers/{addr}/claimable", s.handleClaimable)
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, referral.ErrCodeNotFound),
		errors.Is(err, reward.ErrBoxNotFound),
		errors.Is(err, mint.ErrLevelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, referral.ErrQuantityZero),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

var errBadRequest = errors.New("bad request")

func parseAddr(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != len(addr) {
		return addr, errBadRequest
	}
	copy(addr[:], decoded)
	return addr, nil
}

type tierResponse struct {
	Index               uint32            `json:"index"`
	MinVolume           string            `json:"minVolume"`
	MaxVolume           string            `json:"maxVolume"`
	InviterRewardRate   uint64            `json:"inviterRewardRate"`
	InviteeDiscountRate uint64            `json:"inviteeDiscountRate"`
	RewardBoxTable      map[string]uint64 `json:"rewardBoxTable"`
	RecommendedQuantity string            `json:"recommendedQuantity"`
}

func renderTier(t referral.Tier) tierResponse {
	table := make(map[string]uint64, len(t.RewardBoxTable))
	for level, qty := range t.RewardBoxTable {
		table[strconv.FormatUint(uint64(level), 10)] = qty
	}
	return tierResponse{
		Index:               t.Index,
		MinVolume:           bigString(t.MinVolume),
		MaxVolume:           bigString(t.MaxVolume),
		InviterRewardRate:   t.InviterRewardRate,
		InviteeDiscountRate: t.InviteeDiscountRate,
		RewardBoxTable:      table,
		RecommendedQuantity: bigString(t.RecommendedQuantity),
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	tiers, err := s.node.Tiers()
	if err != nil {
		s.writeError(w, err)
		return
	}
	totals, err := s.node.GlobalTotals()
	if err != nil {
		s.writeError(w, err)
		return
	}
	rendered := make([]tierResponse, len(tiers))
	for i, t := range tiers {
		rendered[i] = renderTier(t)
	}
	boxTotals := make(map[string]uint64, len(totals.RewardBoxTotals))
	for level, qty := range totals.RewardBoxTotals {
		boxTotals[strconv.FormatUint(uint64(level), 10)] = qty
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"rateBase":        referral.RateBase,
		"tiers":           rendered,
		"totalBaseReward": bigString(totals.TotalBaseReward),
		"rewardBoxTotals": boxTotals,
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	level, err := parseUint32(r.URL.Query().Get("level"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	quantity, err := strconv.ParseUint(r.URL.Query().Get("quantity"), 10, 64)
	if err != nil {
		s.writeError(w, errBadRequest)
		return
	}
	quote, err := s.node.QuoteMint(level, quantity, r.URL.Query().Get("code"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]interface{}{
		"level":        quote.Level,
		"quantity":     quote.Quantity,
		"unitPrice":    bigString(quote.UnitPrice),
		"total":        bigString(quote.Total),
		"paidAmount":   bigString(quote.PaidAmount),
		"discountRate": quote.DiscountRate,
	}
	if quote.HasReferrer {
		resp["referrer"] = "0x" + hex.EncodeToString(quote.Referrer[:])
		resp["tierNow"] = quote.TierNow
		resp["tierProjected"] = quote.TierProjected
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	level, err := parseUint32(chi.URLParam(r, "level"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	cfg, ok, err := s.node.LevelInfo(level)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		s.writeError(w, mint.ErrLevelNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"index":          cfg.Index,
		"price":          bigString(cfg.Price),
		"totalCap":       cfg.TotalCap,
		"mintedCount":    cfg.MintedCount,
		"receivedAmount": bigString(cfg.ReceivedAmount),
		"randomPool":     cfg.RandomPool,
	})
}

func (s *Server) handleBox(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, errBadRequest)
		return
	}
	box, opened, err := s.node.BoxInfo(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]interface{}{
		"id":         box.ID,
		"level":      box.Level,
		"price":      bigString(box.Price),
		"mintBlock":  box.MintBlock,
		"randomPool": box.RandomPool,
		"rewardBox":  box.RewardBox,
		"opened":     opened != nil,
	}
	if opened != nil {
		resp["open"] = map[string]interface{}{
			"opener":     "0x" + hex.EncodeToString(opened.Opener[:]),
			"payout":     bigString(opened.Payout),
			"openTime":   opened.OpenTime,
			"poolKind":   string(opened.PoolKind),
			"claimIndex": opened.ClaimIndex,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCode(w http.ResponseWriter, r *http.Request) {
	exists, err := s.node.CodeExists(chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (s *Server) handleReferrer(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddr(chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	account, err := s.node.ReferrerInfo(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entitlement := make(map[string]uint64, len(account.Entitlement))
	for level, qty := range account.Entitlement {
		entitlement[strconv.FormatUint(uint64(level), 10)] = qty
	}
	resp := map[string]interface{}{
		"code":             account.Code,
		"inviteeCount":     account.InviteeCount,
		"cumulativeVolume": bigString(account.CumulativeVolume),
		"baseReward":       bigString(account.BaseReward),
		"currentTier":      account.CurrentTier,
		"entitlement":      entitlement,
	}
	if account.HasInviter {
		resp["inviter"] = "0x" + hex.EncodeToString(account.Inviter[:])
		resp["usedCode"] = account.UsedCode
		resp["discountRate"] = account.DiscountRate
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddr(chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, errBadRequest)
			return
		}
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, errBadRequest)
			return
		}
	}
	records, next, err := s.node.ListReferralRecords(addr, after, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rendered := make([]map[string]interface{}, len(records))
	for i, rec := range records {
		rendered[i] = map[string]interface{}{
			"invitee":      "0x" + hex.EncodeToString(rec.Invitee[:]),
			"boxIds":       rec.BoxIDs,
			"mintTime":     rec.MintTime,
			"tierAtMint":   rec.TierAtMint,
			"sequenceNo":   rec.SequenceNo,
			"price":        bigString(rec.Price),
			"paidAmount":   bigString(rec.PaidAmount),
			"rewardAmount": bigString(rec.RewardAmount),
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"records":    rendered,
		"nextCursor": next,
	})
}

func (s *Server) handleClaimable(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddr(chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	tokens, err := s.node.ClaimableTokens(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]interface{}{"tokens": bigString(tokens)}
	if raw := r.URL.Query().Get("level"); raw != "" {
		level, err := parseUint32(raw)
		if err != nil {
			s.writeError(w, err)
			return
		}
		boxes, err := s.node.ClaimableBoxes(addr, level)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp["boxes"] = boxes
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func parseUint32(raw string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, errBadRequest
	}
	return uint32(v), nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
