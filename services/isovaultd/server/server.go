package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"isovault/core"
	"isovault/core/events"
	"isovault/core/types"
	"isovault/native/isolation/glp"
)

const maxEvents = 256

// Server exposes a read-only view of a wired protocol over HTTP.
type Server struct {
	protocol *core.Protocol
	sink     *core.EventSink
	logger   *slog.Logger

	// mu serializes access to the protocol, which is not safe for concurrent
	// use. Embedders that mutate the protocol lock it through Do.
	mu sync.Mutex

	router http.Handler
}

func New(protocol *core.Protocol, sink *core.EventSink, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{protocol: protocol, sink: sink, logger: logger.With("component", "query-api")}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler { return s.router }

// Do runs fn with exclusive access to the protocol.
func (s *Server) Do(fn func(p *core.Protocol) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.protocol)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(api chi.Router) {
		api.Get("/assets", s.handleAssets)
		api.Get("/assets/{asset}/price", s.handlePrice)
		api.Get("/assets/{asset}/vaults/{owner}", s.handleVault)
		api.Get("/assets/{asset}/quotes/{direction}", s.handleQuote)
		api.Get("/events", s.handleEvents)
	})
	return otelhttp.NewHandler(r, "isovaultd.http")
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

type assetView struct {
	Name         string `json:"name"`
	Factory      string `json:"factory"`
	Underlying   string `json:"underlying"`
	MarketID     uint64 `json:"marketId"`
	Price        string `json:"price"`
	TotalWrapped string `json:"totalWrapped"`
	Vaults       int    `json:"vaults"`
	Unwrapper    string `json:"unwrapper"`
	Wrapper      string `json:"wrapper"`
}

type vaultView struct {
	Asset          string `json:"asset"`
	Owner          string `json:"owner"`
	Vault          string `json:"vault"`
	Initialized    bool   `json:"initialized"`
	Implementation string `json:"implementation"`
	Wrapped        string `json:"wrapped"`
	Underlying     string `json:"underlying"`
	Gmx            string `json:"gmx,omitempty"`
	EsGmx          string `json:"esGmx,omitempty"`
}

type quoteView struct {
	Asset     string `json:"asset"`
	Direction string `json:"direction"`
	Input     string `json:"input"`
	Output    string `json:"output"`
}

type eventView struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAssets(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]assetView, 0, 2)
	for _, asset := range s.protocol.Assets() {
		price, err := s.protocol.Ledger.GetMarketPrice(asset.MarketID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, assetView{
			Name:         asset.Name,
			Factory:      asset.Factory.Address().Hex(),
			Underlying:   asset.Factory.UnderlyingToken().Hex(),
			MarketID:     asset.MarketID,
			Price:        price.String(),
			TotalWrapped: asset.Factory.TotalWrapped().String(),
			Vaults:       len(asset.Factory.Vaults()),
			Unwrapper:    asset.Unwrapper.Address().Hex(),
			Wrapper:      asset.Wrapper.Address().Hex(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, err := s.protocol.Asset(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	price, err := asset.Oracle.GetPrice(asset.Factory.Address())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": asset.Name, "price": price.String()})
}

func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "asset")
	rawOwner := chi.URLParam(r, "owner")
	if !common.IsHexAddress(rawOwner) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid owner %q", rawOwner))
		return
	}
	owner := common.HexToAddress(rawOwner)

	s.mu.Lock()
	defer s.mu.Unlock()
	vault, err := s.protocol.Vault(name, owner)
	switch {
	case errors.Is(err, core.ErrUnknownAsset), errors.Is(err, core.ErrNoVault):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	router := vault.Router()
	view := vaultView{
		Asset:          name,
		Owner:          owner.Hex(),
		Vault:          vault.Address().Hex(),
		Initialized:    router.IsInitialized(),
		Implementation: router.Implementation().Name(),
		Wrapped:        vault.WrappedBalance().String(),
	}
	if !router.IsInitialized() {
		writeJSON(w, http.StatusOK, view)
		return
	}
	underlying, err := vault.UnderlyingBalanceOf()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	view.Underlying = underlying.String()
	if name == core.AssetGLP {
		staking := glp.NewVault(router)
		gmxBalance, err := staking.GmxBalanceOf()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		esGmxBalance, err := staking.EsGmxBalanceOf()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		view.Gmx = gmxBalance.String()
		view.EsGmx = esGmxBalance.String()
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	direction := chi.URLParam(r, "direction")
	amount, ok := new(big.Int).SetString(strings.TrimSpace(r.URL.Query().Get("amount")), 10)
	if !ok || amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("amount must be a positive integer"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	asset, err := s.protocol.Asset(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	usdc := s.protocol.Tokens().USDC
	var out *big.Int
	switch direction {
	case events.DirectionUnwrap:
		out, err = asset.Unwrapper.GetExchangeCost(asset.Factory.Address(), usdc, amount, nil)
	case events.DirectionWrap:
		out, err = asset.Wrapper.GetExchangeCost(usdc, asset.Factory.Address(), amount, nil)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown direction %q", direction))
		return
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteView{Asset: asset.Name, Direction: direction, Input: amount.String(), Output: out.String()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := maxEvents
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}
	out := []eventView{}
	if s.sink != nil {
		for _, evt := range s.sink.Recent(limit) {
			view := eventView{Type: evt.EventType()}
			if typed, ok := evt.(interface{ Event() *types.Event }); ok {
				if payload := typed.Event(); payload != nil {
					view.Attributes = payload.Attributes
				}
			}
			out = append(out, view)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
