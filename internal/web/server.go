package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/qvault-labs/qvm/internal/logger"
	"github.com/qvault-labs/qvm/internal/state"
	"github.com/qvault-labs/qvm/internal/types"
	"github.com/qvault-labs/qvm/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

// actorHeader carries the caller identity. Authorization itself is the
// vault's job; the web layer only forwards the identity.
const actorHeader = "X-Qvm-Actor"

// WebServer exposes every vault operation and accessor over HTTP.
type WebServer struct {
	router    *mux.Router
	port      string
	vaultName string
	vault     *vault.Vault
}

// NewWebServer creates a new web server instance around a vault.
func NewWebServer(port, vaultName string, v *vault.Vault) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:    mux.NewRouter(),
		port:      port,
		vaultName: vaultName,
		vault:     v,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api.HandleFunc("/deposit", ws.handleDeposit).Methods("POST")
	api.HandleFunc("/mint", ws.handleMint).Methods("POST")
	api.HandleFunc("/withdraw", ws.handleWithdraw).Methods("POST")
	api.HandleFunc("/redeem", ws.handleRedeem).Methods("POST")
	api.HandleFunc("/complete", ws.handleComplete).Methods("POST")
	api.HandleFunc("/complete-batch", ws.handleCompleteBatch).Methods("POST")
	api.HandleFunc("/update", ws.handleUpdate).Methods("POST")
	api.HandleFunc("/pause", ws.handlePause).Methods("POST")
	api.HandleFunc("/unpause", ws.handleUnpause).Methods("POST")

	api.HandleFunc("/config", ws.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", ws.handlePutConfig).Methods("PUT")
	api.HandleFunc("/scalars", ws.handleGetScalars).Methods("GET")
	api.HandleFunc("/updates/{id}", ws.handleGetUpdateRecord).Methods("GET")
	api.HandleFunc("/requests/{id}", ws.handleGetRequest).Methods("GET")
	api.HandleFunc("/requests", ws.handleGetOwnerRequests).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+actorHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := uuid.New().String()
		next.ServeHTTP(w, r)
		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("trace_id", traceID).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	})
}

// handleHealth reports server and database health.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealthy := state.TestDBConnection() == nil
	scalars := ws.vault.Scalars()

	status := http.StatusOK
	health := "ok"
	if !dbHealthy {
		status = http.StatusServiceUnavailable
		health = "degraded"
	}
	ws.writeJSON(w, status, map[string]interface{}{
		"status":            health,
		"database":          dbHealthy,
		"vault":             ws.vaultName,
		"current_update_id": scalars.CurrentUpdateID,
		"paused":            scalars.Paused,
	})
}

type amountRequest struct {
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

type withdrawRequestBody struct {
	Owner         string `json:"owner"`
	Receiver      string `json:"receiver"`
	Amount        string `json:"amount"`
	MaxLossBps    uint64 `json:"max_loss_bps"`
	SolverEnabled bool   `json:"solver_enabled"`
}

type updateRequestBody struct {
	Rate           string `json:"rate"`
	WithdrawFeeBps uint64 `json:"withdraw_fee_bps"`
	NettingAmount  string `json:"netting_amount"`
}

func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var body amountRequest
	caller, ok := ws.decodeMutation(w, r, &body)
	if !ok {
		return
	}
	assets, ok := ws.parseAmount(w, body.Amount)
	if !ok {
		return
	}
	shares, err := ws.vault.Deposit(caller, body.Receiver, assets)
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]string{"shares": shares.String()})
}

func (ws *WebServer) handleMint(w http.ResponseWriter, r *http.Request) {
	var body amountRequest
	caller, ok := ws.decodeMutation(w, r, &body)
	if !ok {
		return
	}
	shares, ok := ws.parseAmount(w, body.Amount)
	if !ok {
		return
	}
	assets, err := ws.vault.Mint(caller, body.Receiver, shares)
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]string{"assets": assets.String()})
}

func (ws *WebServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var body withdrawRequestBody
	caller, ok := ws.decodeMutation(w, r, &body)
	if !ok {
		return
	}
	assets, ok := ws.parseAmount(w, body.Amount)
	if !ok {
		return
	}
	requestID, err := ws.vault.Withdraw(caller, body.Owner, body.Receiver, assets, body.MaxLossBps, body.SolverEnabled)
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]uint64{"request_id": requestID})
}

func (ws *WebServer) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var body withdrawRequestBody
	caller, ok := ws.decodeMutation(w, r, &body)
	if !ok {
		return
	}
	shares, ok := ws.parseAmount(w, body.Amount)
	if !ok {
		return
	}
	requestID, err := ws.vault.Redeem(caller, body.Owner, body.Receiver, shares, body.MaxLossBps, body.SolverEnabled)
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]uint64{"request_id": requestID})
}

func (ws *WebServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner string `json:"owner"`
	}
	caller, ok := ws.decodeMutation(w, r, &body)
	if !ok {
		return
	}
	if err := ws.vault.CompleteWithdraw(caller, body.Owner); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (ws *WebServer) handleCompleteBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owners []string `json:"owners"`
	}
	caller, ok := ws.decodeMutation(w, r, &body)
	if !ok {
		return
	}
	skipped, err := ws.vault.CompleteWithdraws(caller, body.Owners)
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	skippedMsgs := make(map[string]string, len(skipped))
	for owner, skipErr := range skipped {
		skippedMsgs[owner] = skipErr.Error()
	}
	ws.writeJSON(w, http.StatusOK, map[string]interface{}{
		"completed": len(body.Owners) - len(skipped),
		"skipped":   skippedMsgs,
	})
}

func (ws *WebServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var body updateRequestBody
	caller, ok := ws.decodeMutation(w, r, &body)
	if !ok {
		return
	}
	rate, err := sdkmath.LegacyNewDecFromStr(body.Rate)
	if err != nil {
		ws.writeError(w, http.StatusBadRequest, "invalid rate: "+err.Error())
		return
	}
	netting := sdkmath.ZeroInt()
	if body.NettingAmount != "" {
		var ok bool
		if netting, ok = sdkmath.NewIntFromString(body.NettingAmount); !ok {
			ws.writeError(w, http.StatusBadRequest, "invalid netting amount")
			return
		}
	}
	updateID, err := ws.vault.Update(caller, rate, body.WithdrawFeeBps, netting)
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	if rec, err := ws.vault.UpdateRecord(updateID); err == nil {
		if err := state.SaveUpdateRecord(ws.vaultName, rec); err != nil {
			webLogger.Error().Err(err).Msg("Failed to persist update record")
		}
	}
	ws.writeJSON(w, http.StatusOK, map[string]uint64{"update_id": updateID})
}

func (ws *WebServer) handlePause(w http.ResponseWriter, r *http.Request) {
	caller := r.Header.Get(actorHeader)
	if err := ws.vault.Pause(caller); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (ws *WebServer) handleUnpause(w http.ResponseWriter, r *http.Request) {
	caller := r.Header.Get(actorHeader)
	if err := ws.vault.Unpause(caller); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]string{"status": "unpaused"})
}

func (ws *WebServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, ws.vault.Config())
}

func (ws *WebServer) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var newCfg types.VaultConfig
	caller, ok := ws.decodeMutation(w, r, &newCfg)
	if !ok {
		return
	}
	if err := ws.vault.UpdateConfig(caller, newCfg); err != nil {
		ws.writeVaultError(w, err)
		return
	}
	applied := ws.vault.Config()
	if _, err := state.SaveVaultConfig(ws.vaultName, applied, true); err != nil {
		webLogger.Error().Err(err).Msg("Failed to persist vault config")
	}
	ws.writeJSON(w, http.StatusOK, applied)
}

func (ws *WebServer) handleGetScalars(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, ws.vault.Scalars())
}

func (ws *WebServer) handleGetUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.parseID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	rec, err := ws.vault.UpdateRecord(id)
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSON(w, http.StatusOK, rec)
}

func (ws *WebServer) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.parseID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	req, err := ws.vault.Request(id)
	if err != nil {
		ws.writeVaultError(w, err)
		return
	}
	ws.writeJSON(w, http.StatusOK, req)
}

func (ws *WebServer) handleGetOwnerRequests(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		ws.writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}
	ws.writeJSON(w, http.StatusOK, ws.vault.PendingRequests(owner))
}

func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	events, err := state.RecentEvents(ws.vaultName, kind, limit)
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ws.writeJSON(w, http.StatusOK, events)
}

// decodeMutation decodes a JSON body and extracts the caller identity from
// the actor header. A missing identity is rejected here so handlers can
// assume a non-empty caller.
func (ws *WebServer) decodeMutation(w http.ResponseWriter, r *http.Request, body interface{}) (string, bool) {
	caller := r.Header.Get(actorHeader)
	if caller == "" {
		ws.writeError(w, http.StatusBadRequest, actorHeader+" header is required")
		return "", false
	}
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		ws.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return "", false
	}
	return caller, true
}

func (ws *WebServer) parseAmount(w http.ResponseWriter, raw string) (sdkmath.Int, bool) {
	amount, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		ws.writeError(w, http.StatusBadRequest, "invalid amount: "+raw)
		return sdkmath.ZeroInt(), false
	}
	return amount, true
}

func (ws *WebServer) parseID(w http.ResponseWriter, raw string) (uint64, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		ws.writeError(w, http.StatusBadRequest, "invalid id: "+raw)
		return 0, false
	}
	return id, true
}

// writeVaultError maps the vault error taxonomy onto HTTP status codes so
// API consumers can tell "try again later" from "permanently invalid".
func (ws *WebServer) writeVaultError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, types.ErrNotClaimable):
		status = http.StatusConflict
	case errors.Is(err, types.ErrRequestNotFound), errors.Is(err, types.ErrUpdateNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrUnauthorized),
		errors.Is(err, types.ErrNotStrategist),
		errors.Is(err, types.ErrNotOwner),
		errors.Is(err, types.ErrSolverNotAllowed):
		status = http.StatusForbidden
	case errors.Is(err, types.ErrPaused):
		status = http.StatusServiceUnavailable
	}
	ws.writeError(w, status, err.Error())
}

func (ws *WebServer) writeError(w http.ResponseWriter, status int, message string) {
	ws.writeJSON(w, status, map[string]string{"error": message})
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode response")
	}
}
