// Package paper provides the HTTP handlers and business logic for the
// paper trading engine: multi-leg spread order execution, position
// accounting, and account settlement.
//
// All monetary values use shopspring/decimal — never float64 for money.
package paper

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/optiondesk/paper-engine/internal/contract"
	"github.com/optiondesk/paper-engine/internal/ledger"
	"github.com/optiondesk/paper-engine/internal/metrics"
	"github.com/optiondesk/paper-engine/internal/model"
	"github.com/optiondesk/paper-engine/internal/pricing"
	"github.com/optiondesk/paper-engine/internal/risk"
	"github.com/optiondesk/paper-engine/internal/store"
)

// Supported spread types for complex orders.
var validSpreadTypes = map[string]bool{
	"straddle":    true,
	"strangle":    true,
	"calendar":    true,
	"iron_condor": true,
	"butterfly":   true,
	"vertical":    true,
}

// DefaultSpotPrice is the assumed underlying price when the request
// carries no market price and the leg no strike.
var DefaultSpotPrice = decimal.NewFromInt(100)

// expirationLayout is the wire format for leg expiration dates.
const expirationLayout = "2006-01-02"

// Service handles paper trading operations. Uses a mutex for serialized
// order execution within the process; cross-process safety comes from
// the store transaction wrapping each order.
type Service struct {
	store   store.Store
	limiter *risk.Limiter
	mu      sync.Mutex
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new paper trading service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, limiter *risk.Limiter, hub *WSHub) *Service {
	return &Service{
		store:   st,
		limiter: limiter,
		wsHub:   hub,
	}
}

// --- Request/Response types ---

// SpreadLeg is one buy/sell instruction within a complex order.
// Transient: it exists only for the duration of the request.
type SpreadLeg struct {
	AssetID        int64            `json:"assetId"`
	Side           model.Side       `json:"side"`
	Quantity       int64            `json:"quantity"`
	StrikePrice    decimal.Decimal  `json:"strikePrice"`
	ExpirationDate string           `json:"expirationDate,omitempty"`
	OptionType     model.OptionType `json:"optionType,omitempty"`
}

// ComplexOrderRequest is the JSON body for POST /orders/complex.
type ComplexOrderRequest struct {
	PaperAccountID   int64           `json:"paperAccountId"`
	SpreadType       string          `json:"spreadType"`
	UnderlyingSymbol string          `json:"underlyingSymbol"`
	Legs             []SpreadLeg     `json:"legs"`
	MarketPrice      decimal.Decimal `json:"marketPrice"`
}

// ExecutedLeg summarizes one filled leg in the order response.
type ExecutedLeg struct {
	OrderID        string           `json:"orderId"`
	AssetID        int64            `json:"assetId"`
	Symbol         string           `json:"symbol"`
	ContractSymbol string           `json:"contractSymbol,omitempty"`
	Side           model.Side       `json:"side"`
	Quantity       int64            `json:"quantity"`
	FillPrice      decimal.Decimal  `json:"fillPrice"`
	StrikePrice    decimal.Decimal  `json:"strikePrice"`
	ExpirationDate string           `json:"expirationDate,omitempty"`
	OptionType     model.OptionType `json:"optionType,omitempty"`
	LegCost        decimal.Decimal  `json:"legCost"`
	RealizedPnL    *decimal.Decimal `json:"realizedPnl,omitempty"`
}

// ExecutionSummary is the account-level outcome of a complex order.
// NetCost is signed: negative for credit spreads.
type ExecutionSummary struct {
	NetCost        decimal.Decimal `json:"netCost"`
	IsDebitSpread  bool            `json:"isDebitSpread"`
	TotalCost      decimal.Decimal `json:"totalCost"`
	TotalCredit    decimal.Decimal `json:"totalCredit"`
	NewCashBalance decimal.Decimal `json:"newCashBalance"`
}

// ComplexOrderResponse is the 201 body for a successful complex order.
type ComplexOrderResponse struct {
	Message          string           `json:"message"`
	SpreadType       string           `json:"spreadType"`
	UnderlyingSymbol string           `json:"underlyingSymbol"`
	Legs             []ExecutedLeg    `json:"legs"`
	Execution        ExecutionSummary `json:"execution"`
}

// CreateAccountRequest is the JSON body for POST /accounts.
type CreateAccountRequest struct {
	Name           string          `json:"name"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
}

// CreateAssetRequest is the JSON body for POST /assets.
type CreateAssetRequest struct {
	Symbol string `json:"symbol"`
}

// pricedLeg is the outcome of the pricing phase for one leg. Nothing is
// written to the store until every leg has been priced and the funds
// check has passed.
type pricedLeg struct {
	leg            SpreadLeg
	asset          *model.Asset
	theoretical    decimal.Decimal
	fill           decimal.Decimal
	cost           decimal.Decimal
	contractSymbol string
}

// --- HTTP Handlers ---

// ExecuteComplexOrder handles POST /api/paper-trading/orders/complex.
//
// The order executes in two phases. The pricing phase resolves assets
// and computes every leg's fill price with no side effects; the funds
// and position-limit checks run against those prices, so a rejected
// order leaves no partial writes. The write phase then applies all leg
// orders, position merges, and the account settlement inside one store
// transaction, re-fetching the account and re-checking funds against
// its committed cash first.
func (s *Service) ExecuteComplexOrder(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ComplexOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.reject(w, errMissingFields("invalid request body"))
		return
	}
	if apiErr := validateComplexOrder(&req); apiErr != nil {
		s.reject(w, apiErr)
		return
	}

	ctx := r.Context()

	// Serialize order execution.
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.store.GetAccount(ctx, req.PaperAccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.reject(w, errAccountNotFound())
			return
		}
		slog.Error("account load failed", "account", req.PaperAccountID, "err", err)
		s.reject(w, errInternal())
		return
	}
	if !account.IsActive {
		s.reject(w, errAccountNotActive())
		return
	}

	positions, err := s.store.ListPositions(ctx, account.ID)
	if err != nil {
		slog.Error("position load failed", "account", account.ID, "err", err)
		s.reject(w, errInternal())
		return
	}

	// --- Pricing phase: no writes ---
	priced, apiErr := s.priceLegs(ctx, &req, positions)
	if apiErr != nil {
		s.reject(w, apiErr)
		return
	}

	fills := make([]ledger.LegFill, len(priced))
	for i, pl := range priced {
		fills[i] = ledger.LegFill{
			Side:      pl.leg.Side,
			Quantity:  pl.leg.Quantity,
			FillPrice: pl.fill,
		}
	}
	net := ledger.Net(fills)

	// Pre-flight funds check: runs before any leg is written.
	if err := ledger.CheckFunds(account.CashBalance, net); err != nil {
		var ife *ledger.InsufficientFundsError
		if errors.As(err, &ife) {
			s.reject(w, errInsufficientFunds(ife.Required, ife.Available))
			return
		}
		s.reject(w, errInternal())
		return
	}

	if apiErr := s.checkLimits(priced, positions); apiErr != nil {
		s.reject(w, apiErr)
		return
	}

	// --- Write phase: all-or-nothing ---
	now := time.Now().UTC()
	executed := make([]ExecutedLeg, 0, len(priced))
	var settled ledger.SettlementResult

	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		// Re-fetch inside the transaction: the pre-flight check may have
		// read cash that another process has since debited. The
		// re-check makes the rejection authoritative under the
		// transaction's isolation.
		fresh, err := tx.GetAccount(ctx, account.ID)
		if err != nil {
			return err
		}
		if err := ledger.CheckFunds(fresh.CashBalance, net); err != nil {
			return err
		}

		for _, pl := range priced {
			leg := pl.leg

			order := &model.Order{
				ID:        uuid.New().String(),
				AccountID: account.ID,
				AssetID:   leg.AssetID,
				OrderType: model.OrderTypeMarket,
				Side:      leg.Side,
				Quantity:  leg.Quantity,
				Status:    model.OrderStatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.InsertOrder(ctx, order); err != nil {
				return err
			}
			if err := tx.MarkOrderFilled(ctx, order.ID, leg.Quantity, pl.fill, now); err != nil {
				return err
			}

			existing, err := tx.GetPosition(ctx, account.ID, leg.AssetID)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					return err
				}
				existing = nil
			}

			res, err := ledger.Merge(existing, account.ID, leg.AssetID, leg.Side, leg.Quantity, pl.fill, now)
			if err != nil {
				return err
			}

			switch res.Action {
			case ledger.ActionDelete:
				if err := tx.DeletePosition(ctx, account.ID, leg.AssetID); err != nil {
					return err
				}
			default:
				if err := tx.UpsertPosition(ctx, &res.Position); err != nil {
					return err
				}
			}

			el := ExecutedLeg{
				OrderID:        order.ID,
				AssetID:        leg.AssetID,
				Symbol:         pl.asset.Symbol,
				ContractSymbol: pl.contractSymbol,
				Side:           leg.Side,
				Quantity:       leg.Quantity,
				FillPrice:      pl.fill,
				StrikePrice:    leg.StrikePrice,
				ExpirationDate: leg.ExpirationDate,
				OptionType:     leg.OptionType,
				LegCost:        pl.cost,
			}
			if res.Action == ledger.ActionDelete {
				realized := res.RealizedPnL
				el.RealizedPnL = &realized
			}
			executed = append(executed, el)
		}

		after, err := tx.ListPositions(ctx, account.ID)
		if err != nil {
			return err
		}
		settled = ledger.Settle(fresh.CashBalance, fresh.InitialBalance, net, after)
		return tx.UpdateAccountBalances(ctx, account.ID,
			settled.CashBalance, settled.TotalEquity, settled.TotalPnL, now)
	})
	if err != nil {
		var ife *ledger.InsufficientFundsError
		if errors.As(err, &ife) {
			s.reject(w, errInsufficientFunds(ife.Required, ife.Available))
			return
		}
		slog.Error("complex order failed", "account", account.ID,
			"spread_type", req.SpreadType, "err", err)
		s.reject(w, errInternal())
		return
	}

	resp := ComplexOrderResponse{
		Message:          "complex order executed",
		SpreadType:       req.SpreadType,
		UnderlyingSymbol: req.UnderlyingSymbol,
		Legs:             executed,
		Execution: ExecutionSummary{
			NetCost:        net.NetCost,
			IsDebitSpread:  net.IsDebit,
			TotalCost:      net.TotalCost,
			TotalCredit:    net.TotalCredit,
			NewCashBalance: settled.CashBalance,
		},
	}

	slog.Info("complex order executed",
		"account", account.ID,
		"spread_type", req.SpreadType,
		"underlying", req.UnderlyingSymbol,
		"legs", len(executed),
		"net_cost", net.NetCost.String(),
		"is_debit", net.IsDebit,
		"new_cash", settled.CashBalance.String(),
	)

	metrics.OrdersExecuted.WithLabelValues(req.SpreadType).Inc()
	for _, el := range executed {
		metrics.OrderLegs.WithLabelValues(string(el.Side)).Inc()
	}
	metrics.OrderLatency.WithLabelValues(req.SpreadType).Observe(time.Since(start).Seconds())
	metrics.AccountEquity.WithLabelValues(strconv.FormatInt(account.ID, 10)).
		Set(settled.TotalEquity.InexactFloat64())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:             "order_executed",
			AccountID:        account.ID,
			SpreadType:       req.SpreadType,
			UnderlyingSymbol: req.UnderlyingSymbol,
			NetCost:          net.NetCost.String(),
			IsDebitSpread:    net.IsDebit,
			Legs:             len(executed),
			NewCashBalance:   settled.CashBalance.String(),
		})
	}

	writeJSON(w, http.StatusCreated, resp)
}

// priceLegs resolves each leg's asset and computes its theoretical
// price, fill price, and notional cost. It also simulates position
// deltas leg by leg so that a sell without inventory, or a sell larger
// than the inventory, is rejected before anything is written.
func (s *Service) priceLegs(ctx context.Context, req *ComplexOrderRequest, positions []model.Position) ([]pricedLeg, *Error) {
	held := make(map[int64]int64, len(positions))
	open := make(map[int64]bool, len(positions))
	for _, p := range positions {
		held[p.AssetID] = p.Quantity
		open[p.AssetID] = true
	}

	priced := make([]pricedLeg, 0, len(req.Legs))
	for i, leg := range req.Legs {
		asset, err := s.store.GetAsset(ctx, leg.AssetID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, errAssetNotFound()
			}
			slog.Error("asset load failed", "asset", leg.AssetID, "err", err)
			return nil, errInternal()
		}

		// Sell legs consume existing inventory only.
		if leg.Side == model.SideSell {
			if !open[leg.AssetID] {
				return nil, errNoOpenPosition(legFieldError(i, "sell leg without an open position"))
			}
			if leg.Quantity > held[leg.AssetID] {
				return nil, errNoOpenPosition(legFieldError(i, "sell quantity exceeds open position"))
			}
			held[leg.AssetID] -= leg.Quantity
			if held[leg.AssetID] == 0 {
				open[leg.AssetID] = false
			}
		} else {
			held[leg.AssetID] += leg.Quantity
			open[leg.AssetID] = true
		}

		spot := req.MarketPrice
		if !spot.IsPositive() {
			if leg.StrikePrice.IsPositive() {
				spot = leg.StrikePrice
			} else {
				spot = DefaultSpotPrice
			}
		}
		strike := leg.StrikePrice
		if !strike.IsPositive() {
			strike = spot // at-the-money when no strike given
		}

		theoretical := pricing.Estimate(pricing.EstimateInput{
			SpotPrice:    spot,
			StrikePrice:  strike,
			DaysToExpiry: daysToExpiry(leg.ExpirationDate),
			Volatility:   pricing.DefaultVolatility,
			Type:         leg.OptionType,
		})
		fill := pricing.FillPrice(theoretical, leg.Side)

		pl := pricedLeg{
			leg:         leg,
			asset:       asset,
			theoretical: theoretical,
			fill:        fill,
			cost:        ledger.LegFill{Side: leg.Side, Quantity: leg.Quantity, FillPrice: fill}.Cost(),
		}

		// Display symbol for fully specified option legs.
		if leg.OptionType != "" && leg.StrikePrice.IsPositive() && leg.ExpirationDate != "" {
			if expiry, err := time.Parse(expirationLayout, leg.ExpirationDate); err == nil {
				if sym, err := contract.Format(req.UnderlyingSymbol, expiry, leg.OptionType, leg.StrikePrice); err == nil {
					pl.contractSymbol = sym
				}
			}
		}

		priced = append(priced, pl)
	}
	return priced, nil
}

// daysToExpiry converts a leg expiration date into whole days from now,
// clamped at zero. Legs without a date use the default horizon.
func daysToExpiry(expirationDate string) int {
	if expirationDate == "" {
		return pricing.DefaultDaysToExpiry
	}
	expiry, err := time.Parse(expirationLayout, expirationDate)
	if err != nil {
		return pricing.DefaultDaysToExpiry
	}
	days := int(math.Ceil(time.Until(expiry).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}

// checkLimits applies the risk limiter to the accumulated per-asset
// deltas of all legs.
func (s *Service) checkLimits(priced []pricedLeg, positions []model.Position) *Error {
	open := make(map[int64]int64, len(positions))
	for _, p := range positions {
		open[p.AssetID] = p.Quantity
	}

	for _, pl := range priced {
		delta := pl.leg.Quantity
		if pl.leg.Side == model.SideSell {
			delta = -delta
		}
		if err := s.limiter.Check(pl.leg.AssetID, delta, open); err != nil {
			return errPositionLimit(err.Error())
		}
		open[pl.leg.AssetID] += delta
	}
	return nil
}

// reject writes a structured error and records the rejection metric.
func (s *Service) reject(w http.ResponseWriter, e *Error) {
	metrics.OrderRejections.WithLabelValues(e.Code).Inc()
	writeError(w, e)
}

// validateComplexOrder enforces the request schema before any business
// logic runs.
func validateComplexOrder(req *ComplexOrderRequest) *Error {
	if req.SpreadType == "" || req.UnderlyingSymbol == "" || len(req.Legs) == 0 {
		return errMissingFields("paperAccountId, spreadType, underlyingSymbol, and legs are required")
	}
	if req.PaperAccountID <= 0 {
		return errInvalidAccountID()
	}
	if !validSpreadTypes[req.SpreadType] {
		return errInvalidSpreadType(req.SpreadType)
	}
	for i, leg := range req.Legs {
		if leg.AssetID <= 0 {
			return errInvalidLegData(legFieldError(i, "assetId must be a positive integer"))
		}
		if !leg.Side.Valid() {
			return errInvalidLegData(legFieldError(i, "side must be buy or sell"))
		}
		if leg.Quantity <= 0 {
			return errInvalidLegData(legFieldError(i, "quantity must be a positive integer"))
		}
		if leg.StrikePrice.IsNegative() {
			return errInvalidLegData(legFieldError(i, "strikePrice must not be negative"))
		}
		if leg.OptionType != "" && !leg.OptionType.Valid() {
			return errInvalidLegData(legFieldError(i, "optionType must be call or put"))
		}
		if leg.ExpirationDate != "" {
			if _, err := time.Parse(expirationLayout, leg.ExpirationDate); err != nil {
				return errInvalidLegData(legFieldError(i, "expirationDate must be YYYY-MM-DD"))
			}
		}
	}
	return nil
}

func legFieldError(index int, msg string) string {
	return "leg " + strconv.Itoa(index) + ": " + msg
}

// --- Account and reference data handlers ---

// CreateAccount handles POST /api/paper-trading/accounts.
func (s *Service) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errMissingFields("invalid request body"))
		return
	}
	if req.Name == "" {
		writeError(w, errMissingFields("name is required"))
		return
	}
	if !req.InitialBalance.IsPositive() {
		writeError(w, errMissingFields("initialBalance must be positive"))
		return
	}

	now := time.Now().UTC()
	account := &model.Account{
		Name:           req.Name,
		CashBalance:    req.InitialBalance,
		TotalEquity:    req.InitialBalance,
		TotalPnL:       decimal.Zero,
		InitialBalance: req.InitialBalance,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateAccount(r.Context(), account); err != nil {
		slog.Error("account create failed", "err", err)
		writeError(w, errInternal())
		return
	}

	slog.Info("paper account created",
		"account", account.ID,
		"name", account.Name,
		"initial_balance", account.InitialBalance.String(),
	)

	writeJSON(w, http.StatusCreated, account)
}

// GetAccount handles GET /api/paper-trading/accounts/{accountID}.
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "accountID"))
	if !ok {
		writeError(w, errInvalidAccountID())
		return
	}

	account, err := s.store.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, errAccountNotFound())
			return
		}
		slog.Error("account load failed", "account", id, "err", err)
		writeError(w, errInternal())
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// ListPositions handles GET /api/paper-trading/accounts/{accountID}/positions.
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "accountID"))
	if !ok {
		writeError(w, errInvalidAccountID())
		return
	}

	positions, err := s.store.ListPositions(r.Context(), id)
	if err != nil {
		slog.Error("position load failed", "account", id, "err", err)
		writeError(w, errInternal())
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}

	writeJSON(w, http.StatusOK, positions)
}

// ListOrders handles GET /api/paper-trading/accounts/{accountID}/orders.
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "accountID"))
	if !ok {
		writeError(w, errInvalidAccountID())
		return
	}

	orders, err := s.store.ListOrdersByAccount(r.Context(), id)
	if err != nil {
		slog.Error("order load failed", "account", id, "err", err)
		writeError(w, errInternal())
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}

	writeJSON(w, http.StatusOK, orders)
}

// CreateAsset handles POST /api/paper-trading/assets.
func (s *Service) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errMissingFields("invalid request body"))
		return
	}
	if req.Symbol == "" {
		writeError(w, errMissingFields("symbol is required"))
		return
	}

	asset := &model.Asset{
		Symbol:    req.Symbol,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAsset(r.Context(), asset); err != nil {
		slog.Error("asset create failed", "symbol", req.Symbol, "err", err)
		writeError(w, errInternal())
		return
	}

	writeJSON(w, http.StatusCreated, asset)
}

// ListAssets handles GET /api/paper-trading/assets.
func (s *Service) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.store.ListAssets(r.Context())
	if err != nil {
		slog.Error("asset load failed", "err", err)
		writeError(w, errInternal())
		return
	}
	if assets == nil {
		assets = []model.Asset{}
	}

	writeJSON(w, http.StatusOK, assets)
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
