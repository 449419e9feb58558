package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	nativevault "stakevault/native/vault"
	"stakevault/services/vaultd/journal"
	vaultstate "stakevault/state/vault"
)

const maxBodyBytes = 1 << 16

var errBadAmount = errors.New("amount must be a base-10 unsigned integer")

type amountRequest struct {
	Assets string `json:"assets,omitempty"`
	Shares string `json:"shares,omitempty"`
	Amount string `json:"amount,omitempty"`
}

type durationRequest struct {
	Seconds uint64 `json:"seconds"`
}

type transferRequest struct {
	Admin string `json:"admin"`
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type summaryResponse struct {
	TotalAssets      string   `json:"totalAssets"`
	EffectiveAssets  string   `json:"effectiveAssets"`
	Unvested         string   `json:"unvested"`
	ShareSupply      string   `json:"shareSupply"`
	VestingAmount    string   `json:"vestingAmount"`
	LastDistribution uint64   `json:"lastDistribution"`
	VestingPeriod    uint64   `json:"vestingPeriod"`
	Cooldown         uint64   `json:"cooldown"`
	MaxCooldown      uint64   `json:"maxCooldown"`
	MinShares        string   `json:"minShares"`
	Offset           uint8    `json:"offset"`
	Paused           bool     `json:"paused"`
	Admin            string   `json:"admin"`
	Rewarders        []string `json:"rewarders"`
}

type entryResponse struct {
	Assets   string `json:"assets"`
	Maturity uint64 `json:"maturity"`
}

type positionResponse struct {
	Address      string          `json:"address"`
	Shares       string          `json:"shares"`
	ShareValue   string          `json:"shareValue"`
	Available    string          `json:"available"`
	Pending      string          `json:"pending"`
	Balance      string          `json:"balance"`
	NextMaturity uint64          `json:"nextMaturity"`
	Entries      []entryResponse `json:"entries"`
}

type eventResponse struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Account    string            `json:"account,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"createdAt"`
}

func toEventResponse(record journal.Record) (eventResponse, error) {
	attrs, err := record.Decoded()
	if err != nil {
		return eventResponse{}, err
	}
	return eventResponse{
		ID:         record.ID.String(),
		Sequence:   record.Sequence,
		Type:       record.Type,
		Account:    record.Account,
		Attributes: attrs,
		CreatedAt:  record.CreatedAt.Unix(),
	}, nil
}

func formatAmount(v uint64) string { return strconv.FormatUint(v, 10) }

func parseAmount(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, errBadAmount
	}
	value, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, errBadAmount
	}
	return value, nil
}

func decodeBody(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func pathAddress(r *http.Request) (common.Address, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "address"))
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// movedAssets extracts the asset amount an event moved, if any.
func movedAssets(ev nativevault.Event) uint64 {
	for _, key := range []string{"assets", "amount", "released"} {
		if raw, ok := ev.Attributes[key]; ok {
			if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
				return v
			}
		}
	}
	return 0
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	now := uint64(s.now().Unix())
	var resp summaryResponse
	err := s.store.View(func(tx *vaultstate.Tx) error {
		engine, registry := tx.Bind(nil)
		summary, err := engine.Summary(now)
		if err != nil {
			return err
		}
		resp = summaryResponse{
			TotalAssets:      formatAmount(summary.TotalAssets),
			EffectiveAssets:  formatAmount(summary.EffectiveAssets),
			Unvested:         formatAmount(summary.Unvested),
			ShareSupply:      formatAmount(summary.ShareSupply),
			VestingAmount:    formatAmount(summary.VestingAmount),
			LastDistribution: summary.LastDistribution,
			VestingPeriod:    summary.VestingPeriod,
			Cooldown:         summary.Cooldown,
			MaxCooldown:      summary.MaxCooldown,
			MinShares:        formatAmount(summary.MinShares),
			Offset:           summary.Offset,
			Paused:           registry.IsPaused(),
		}
		admin, err := registry.Admin()
		if err != nil {
			return err
		}
		resp.Admin = admin.Hex()
		rewarders, err := registry.Rewarders()
		if err != nil {
			return err
		}
		resp.Rewarders = make([]string, 0, len(rewarders))
		for _, addr := range rewarders {
			resp.Rewarders = append(resp.Rewarders, addr.Hex())
		}
		return nil
	})
	if err != nil {
		s.writeVaultError(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreviewStake(w http.ResponseWriter, r *http.Request) {
	s.preview(w, r, "assets", "shares", (*nativevault.Engine).PreviewStake)
}

func (s *Server) handlePreviewUnstake(w http.ResponseWriter, r *http.Request) {
	s.preview(w, r, "shares", "assets", (*nativevault.Engine).PreviewUnstake)
}

// preview converts the query amount named in through fn without persisting
// anything.
func (s *Server) preview(w http.ResponseWriter, r *http.Request, in, out string, fn func(*nativevault.Engine, uint64, uint64) (uint64, error)) {
	amount, err := parseAmount(r.URL.Query().Get(in))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	now := uint64(s.now().Unix())
	var result uint64
	err = s.store.View(func(tx *vaultstate.Tx) error {
		engine, _ := tx.Bind(nil)
		var err error
		result, err = fn(engine, amount, now)
		return err
	})
	if err != nil {
		s.writeVaultError(w, "preview_"+in, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{in: formatAmount(amount), out: formatAmount(result)})
}

func (s *Server) handleStateRoot(w http.ResponseWriter, _ *http.Request) {
	root, entries, err := s.store.StateRoot()
	if err != nil {
		s.writeVaultError(w, "state_root", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"root": root.Hex(), "entries": entries})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	now := uint64(s.now().Unix())
	var resp positionResponse
	err := s.store.View(func(tx *vaultstate.Tx) error {
		engine, _ := tx.Bind(nil)
		position, err := engine.Position(addr, now)
		if err != nil {
			return err
		}
		balance, err := tx.AssetBalance(addr)
		if err != nil {
			return err
		}
		resp = positionResponse{
			Address:      position.Address.Hex(),
			Shares:       formatAmount(position.Shares),
			ShareValue:   formatAmount(position.ShareValue),
			Available:    formatAmount(position.Available),
			Pending:      formatAmount(position.Pending),
			Balance:      formatAmount(balance),
			NextMaturity: position.NextMaturity,
			Entries:      make([]entryResponse, 0, len(position.Entries)),
		}
		for _, entry := range position.Entries {
			resp.Entries = append(resp.Entries, entryResponse{Assets: formatAmount(entry.Amount), Maturity: entry.Maturity})
		}
		return nil
	})
	if err != nil {
		s.writeVaultError(w, "position", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "event journal disabled")
		return
	}
	query := r.URL.Query()
	filter := journal.Filter{Type: strings.TrimSpace(query.Get("type"))}
	if raw := strings.TrimSpace(query.Get("account")); raw != "" {
		if !common.IsHexAddress(raw) {
			writeError(w, http.StatusBadRequest, "invalid account")
			return
		}
		filter.Account = common.HexToAddress(raw).Hex()
	}
	if raw := query.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after cursor")
			return
		}
		filter.AfterSequence = after
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	records, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("journal list failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]eventResponse, 0, len(records))
	for _, record := range records {
		resp, err := toEventResponse(record)
		if err != nil {
			s.logger.Error("journal decode failed", "error", err.Error())
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

// caller returns the authenticated address. The auth middleware guarantees
// it is present on protected routes.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addr, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller")
	}
	return addr, ok
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	assets, err := parseAmount(req.Assets)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var result *nativevault.StakeResult
	err = s.execute(r.Context(), "stake", addr, func(engine *nativevault.Engine, _ *nativevault.AccessRegistry, caller nativevault.Caller, now uint64) ([]nativevault.Event, error) {
		var err error
		result, err = engine.Stake(caller, assets, now)
		return nil, err
	})
	if err != nil {
		s.writeVaultError(w, "stake", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"assets":      formatAmount(result.Assets),
		"shares":      formatAmount(result.Shares),
		"totalAssets": formatAmount(result.TotalAssets),
	})
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	shares, err := parseAmount(req.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var result *nativevault.UnstakeResult
	err = s.execute(r.Context(), "unstake", addr, func(engine *nativevault.Engine, _ *nativevault.AccessRegistry, caller nativevault.Caller, now uint64) ([]nativevault.Event, error) {
		var err error
		result, err = engine.StartUnstake(caller, shares, now)
		return nil, err
	})
	if err != nil {
		s.writeVaultError(w, "unstake", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"shares":      formatAmount(result.Shares),
		"assets":      formatAmount(result.Assets),
		"maturity":    result.Maturity,
		"totalAssets": formatAmount(result.TotalAssets),
	})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.caller(w, r)
	if !ok {
		return
	}
	var available uint64
	err := s.execute(r.Context(), "settle", addr, func(engine *nativevault.Engine, _ *nativevault.AccessRegistry, caller nativevault.Caller, now uint64) ([]nativevault.Event, error) {
		var err error
		available, err = engine.Settle(caller.Address, now)
		return nil, err
	})
	if err != nil {
		s.writeVaultError(w, "settle", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"available": formatAmount(available)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := parseAmount(req.Assets)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var result *nativevault.WithdrawResult
	err = s.execute(r.Context(), "withdraw", addr, func(engine *nativevault.Engine, _ *nativevault.AccessRegistry, caller nativevault.Caller, now uint64) ([]nativevault.Event, error) {
		var err error
		result, err = engine.Withdraw(caller, amount, now)
		return nil, err
	})
	if err != nil {
		s.writeVaultError(w, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"assets":    formatAmount(result.Assets),
		"available": formatAmount(result.Available),
	})
}

func (s *Server) handleReward(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = s.execute(r.Context(), "reward", addr, func(engine *nativevault.Engine, _ *nativevault.AccessRegistry, caller nativevault.Caller, now uint64) ([]nativevault.Event, error) {
		return nil, engine.Reward(caller, amount, now)
	})
	if err != nil {
		s.writeVaultError(w, "reward", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetCooldown(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req durationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.execute(r.Context(), "set_cooldown", addr, func(engine *nativevault.Engine, _ *nativevault.AccessRegistry, caller nativevault.Caller, _ uint64) ([]nativevault.Event, error) {
		return nil, engine.SetCooldown(caller, req.Seconds)
	})
	if err != nil {
		s.writeVaultError(w, "set_cooldown", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetVestingPeriod(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req durationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.execute(r.Context(), "set_vesting_period", addr, func(engine *nativevault.Engine, _ *nativevault.AccessRegistry, caller nativevault.Caller, now uint64) ([]nativevault.Event, error) {
		return nil, engine.SetVestingPeriod(caller, req.Seconds, now)
	})
	if err != nil {
		s.writeVaultError(w, "set_vesting_period", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshCooldowns(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.caller(w, r)
	if !ok {
		return
	}
	account, ok := pathAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	var updated int
	err := s.execute(r.Context(), "refresh_cooldowns", addr, func(engine *nativevault.Engine, _ *nativevault.AccessRegistry, caller nativevault.Caller, now uint64) ([]nativevault.Event, error) {
		var err error
		updated, err = engine.RefreshCooldowns(caller, account, now)
		return nil, err
	})
	if err != nil {
		s.writeVaultError(w, "refresh_cooldowns", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// registryHandler adapts a single-subject access registry mutation.
func (s *Server) registryHandler(name, kind string, apply func(*nativevault.AccessRegistry, common.Address, common.Address) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := s.caller(w, r)
		if !ok {
			return
		}
		subject, ok := pathAddress(r)
		if !ok || subject == (common.Address{}) {
			writeError(w, http.StatusBadRequest, "invalid address")
			return
		}
		err := s.execute(r.Context(), name, addr, func(_ *nativevault.Engine, registry *nativevault.AccessRegistry, caller nativevault.Caller, _ uint64) ([]nativevault.Event, error) {
			if err := apply(registry, caller.Address, subject); err != nil {
				return nil, err
			}
			return []nativevault.Event{nativevault.AccessUpdated{Kind: kind, Admin: caller.Address, Subject: subject}.Event()}, nil
		})
		if err != nil {
			s.writeVaultError(w, name, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleAddRewarder(w http.ResponseWriter, r *http.Request) {
	s.registryHandler("add_rewarder", nativevault.TypeRewarderAdded, (*nativevault.AccessRegistry).AddRewarder)(w, r)
}

func (s *Server) handleRemoveRewarder(w http.ResponseWriter, r *http.Request) {
	s.registryHandler("remove_rewarder", nativevault.TypeRewarderRemoved, (*nativevault.AccessRegistry).RemoveRewarder)(w, r)
}

func (s *Server) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	s.registryHandler("blacklist", nativevault.TypeBlacklisted, (*nativevault.AccessRegistry).Blacklist)(w, r)
}

func (s *Server) handleUnblacklist(w http.ResponseWriter, r *http.Request) {
	s.registryHandler("unblacklist", nativevault.TypeUnblacklisted, (*nativevault.AccessRegistry).Unblacklist)(w, r)
}

func (s *Server) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	raw := strings.TrimSpace(req.Admin)
	if !common.IsHexAddress(raw) || common.HexToAddress(raw) == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "invalid admin address")
		return
	}
	next := common.HexToAddress(raw)
	err := s.execute(r.Context(), "transfer_admin", addr, func(_ *nativevault.Engine, registry *nativevault.AccessRegistry, caller nativevault.Caller, _ uint64) ([]nativevault.Event, error) {
		if err := registry.TransferAdmin(caller.Address, next); err != nil {
			return nil, err
		}
		return []nativevault.Event{nativevault.AccessUpdated{Kind: nativevault.TypeAdminTransferred, Admin: caller.Address, Subject: next}.Event()}, nil
	})
	if err != nil {
		s.writeVaultError(w, "transfer_admin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.execute(r.Context(), "pause", addr, func(_ *nativevault.Engine, registry *nativevault.AccessRegistry, caller nativevault.Caller, _ uint64) ([]nativevault.Event, error) {
		if err := registry.SetPaused(caller.Address, req.Paused); err != nil {
			return nil, err
		}
		return []nativevault.Event{nativevault.AccessUpdated{Kind: nativevault.TypePauseUpdated, Admin: caller.Address, Paused: req.Paused}.Event()}, nil
	})
	if err != nil {
		s.writeVaultError(w, "pause", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
