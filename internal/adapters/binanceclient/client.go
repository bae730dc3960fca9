package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"smcbot/internal/domain"
	"smcbot/internal/id"
	"smcbot/internal/ports"
	"smcbot/internal/risk"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// Order lookups after an uncertain placement get their own deadline so a
	// shutdown does not hide a fill.
	lookupTimeout = 5 * time.Second
)

// Client is the live futures gateway. It implements ports.ExecutionGateway and
// ports.MarketData on top of the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	limiter       *rate.Limiter
	now           func() time.Time
	resync        atomic.Bool // Set by a -1021 timestamp rejection

	mu          sync.Mutex
	instruments map[string]*domain.Instrument
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey             string
	SecretKey          string
	UseTestnet         bool
	Logger             ports.Logger
	MinRequestInterval time.Duration // Spacing between REST calls (e.g., 100 * time.Millisecond)
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		// Public endpoints still work; private ones fail with authentication errors.
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	interval := cfg.MinRequestInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		limiter:       rate.NewLimiter(rate.Every(interval), 1),
		now:           time.Now,
		instruments:   make(map[string]*domain.Instrument),
	}, nil
}

// IsDryRun reports false; every call reaches the exchange.
func (c *Client) IsDryRun() bool {
	return false
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
		if apiErr.Code == -1021 {
			c.resync.Store(true)
		}

		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mapAPICode(apiErr.Code), err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Non-API errors: network, context cancellation, parsing
	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "no such host"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// mapAPICode maps Binance error codes onto the port sentinels.
func mapAPICode(code int64) error {
	switch code {
	case -1001: // Internal error; unable to process your request
		return ports.ErrExchangeUnavailable
	case -1003: // Too many requests
		return ports.ErrRateLimited
	case -1007, -1021: // Timeout waiting for backend / timestamp outside recvWindow
		return ports.ErrTimeout
	case -1022: // Signature for this request is not valid
		return ports.ErrAuthenticationFailed
	case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130:
		return ports.ErrInvalidRequest
	case -2010, -2022: // New order rejected / ReduceOnly order rejected
		return ports.ErrOrderPlacementFailed
	case -4116: // ClientOrderId is duplicated
		return ports.ErrDuplicateOrder
	case -2013: // Order does not exist
		return ports.ErrOrderNotFound
	case -2014, -2015: // API-key format invalid / invalid key, IP or permissions
		return ports.ErrInvalidAPIKeys
	case -2019, -3005, -4047: // Margin insufficient / balance insufficient / position limit at leverage
		return ports.ErrInsufficientFunds
	case -4003, -4014, -4015: // Qty, price or leverage out of range
		return ports.ErrInvalidRequest
	case -4044: // Position not found
		return ports.ErrNotFound
	default:
		return ports.ErrUnknown
	}
}

// wait blocks until the limiter admits another request. A pending clock
// resync runs before the request goes out.
func (c *Client) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return c.handleError(ctx, ctx.Err(), op)
		}
		return c.handleError(ctx, fmt.Errorf("%w: %w", context.DeadlineExceeded, err), op)
	}
	if c.resync.CompareAndSwap(true, false) {
		if err := c.syncTime(ctx); err != nil {
			c.resync.Store(true)
			c.logger.Warn(ctx, "Clock resync failed", map[string]interface{}{"operation": op, "error": err.Error()})
		}
	}
	return nil
}

func (c *Client) syncTime(ctx context.Context) error {
	offset, err := c.futuresClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, "SetServerTime")
	}
	c.logger.Info(ctx, "Clock synchronized with exchange", map[string]interface{}{"offsetMs": offset})
	return nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	return c.syncTime(ctx)
}

// GetPrice returns the mark price for symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetPrice"
	if err := c.wait(ctx, op); err != nil {
		return 0, err
	}
	tickers, err := c.futuresClient.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return 0, c.handleError(ctx, fmt.Errorf("no price data returned for symbol %s", symbol), op)
	}

	price, err := strconv.ParseFloat(tickers[0].MarkPrice, 64)
	if err != nil {
		return 0, c.handleError(ctx, fmt.Errorf("could not parse price '%s': %w", tickers[0].MarkPrice, err), op)
	}
	return price, nil
}

// Instrument returns LOT_SIZE and PRICE_FILTER rules for symbol. Results are
// cached for the life of the client.
func (c *Client) Instrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	op := "Instrument"
	c.mu.Lock()
	cached, ok := c.instruments[symbol]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range info.Symbols {
		c.instruments[s.Symbol] = translateSymbol(s)
	}
	inst, ok := c.instruments[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: symbol %s: %w", op, symbol, ports.ErrNotFound)
	}
	c.logger.Debug(ctx, op+": exchange info loaded", map[string]interface{}{"symbols": len(info.Symbols), "symbol": symbol, "stepSize": inst.StepSize})
	return inst, nil
}

// SetLeverage sets the leverage for a specific symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	op := "SetLeverage"
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	_, err := c.futuresClient.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return nil
}

// OpenPosition sets leverage and sends a market entry order.
func (c *Client) OpenPosition(ctx context.Context, intent domain.OrderIntent) (*domain.Position, error) {
	op := "OpenPosition"
	inst, err := c.Instrument(ctx, intent.Symbol)
	if err != nil {
		return nil, err
	}
	if err := c.SetLeverage(ctx, intent.Symbol, intent.Leverage); err != nil {
		return nil, err
	}

	quantity := risk.FormatToStep(intent.Quantity, inst.StepSize)
	order, err := c.placeMarketOrder(ctx, op, intent.Symbol, intent.Direction.EntrySide(), quantity, intent.ClientOrderID, false)
	if err != nil {
		if intent.ClientOrderID == "" || !fillUncertain(err) {
			return nil, err
		}
		// An earlier attempt may have filled before its response was lost.
		existing, lookupErr := c.filledOrder(ctx, intent.Symbol, intent.ClientOrderID)
		if lookupErr != nil || existing == nil {
			return nil, err
		}
		c.logger.Warn(ctx, op+": entry order already filled", map[string]interface{}{
			"symbol": intent.Symbol, "clientOrderID": intent.ClientOrderID, "orderID": existing.OrderID,
		})
		return c.positionFromFill(ctx, op, intent, existing.OrderID, existing.AvgPrice, existing.ExecutedQuantity), nil
	}
	return c.positionFromFill(ctx, op, intent, order.OrderID, order.AvgPrice, order.ExecutedQuantity), nil
}

func (c *Client) positionFromFill(ctx context.Context, op string, intent domain.OrderIntent, orderID int64, avgPrice, executedQty string) *domain.Position {
	fill := parseOrFallback(avgPrice, intent.EntryPrice)
	qty := parseOrFallback(executedQty, intent.Quantity)

	pos := &domain.Position{
		ID:              id.New(),
		Symbol:          intent.Symbol,
		Direction:       intent.Direction,
		EntryPrice:      fill,
		Quantity:        qty,
		Leverage:        intent.Leverage,
		MarginUSD:       intent.MarginUSD,
		StopLoss:        intent.StopLoss,
		TakeProfit:      intent.TakeProfit,
		OpenedAt:        c.now().UTC(),
		Status:          domain.StatusOpen,
		ExchangeOrderID: strconv.FormatInt(orderID, 10),
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":    pos.Symbol,
		"direction": pos.Direction.Label(),
		"quantity":  qty,
		"avgPrice":  fill,
		"orderID":   orderID,
	})
	return pos
}

// ClosePosition sends a reduce-only market order for the full position size.
// The exit carries a client order id derived from the position, so a retry
// after a lost response finds the earlier fill instead of failing.
func (c *Client) ClosePosition(ctx context.Context, pos *domain.Position, reason domain.CloseReason, price float64) (*domain.TradeRecord, error) {
	op := "ClosePosition"
	inst, err := c.Instrument(ctx, pos.Symbol)
	if err != nil {
		return nil, err
	}

	quantity := risk.FormatToStep(pos.Quantity, inst.StepSize)
	clientID := id.CloseOrderID(pos.ID)
	order, err := c.placeMarketOrder(ctx, op, pos.Symbol, pos.Direction.ExitSide(), quantity, clientID, true)
	if err != nil {
		// A reduce-only rejection is what a resubmitted exit gets once the
		// first one flattened the position.
		if !fillUncertain(err) && !errors.Is(err, ports.ErrOrderPlacementFailed) {
			return nil, err
		}
		existing, lookupErr := c.filledOrder(ctx, pos.Symbol, clientID)
		if lookupErr != nil || existing == nil {
			return nil, err
		}
		c.logger.Warn(ctx, op+": exit order already filled", map[string]interface{}{
			"symbol": pos.Symbol, "clientOrderID": clientID, "orderID": existing.OrderID,
		})
		return c.recordFromFill(ctx, op, pos, reason, parseOrFallback(existing.AvgPrice, price), existing.OrderID, orderTime(existing, c.now())), nil
	}
	return c.recordFromFill(ctx, op, pos, reason, parseOrFallback(order.AvgPrice, price), order.OrderID, c.now()), nil
}

// ReconcileClose reports the exit of pos if one already filled on the
// exchange. It returns nil, nil when no exit order executed.
func (c *Client) ReconcileClose(ctx context.Context, pos *domain.Position) (*domain.TradeRecord, error) {
	op := "ReconcileClose"
	order, err := c.filledOrder(ctx, pos.Symbol, id.CloseOrderID(pos.ID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if order == nil {
		return nil, nil
	}
	fill := parseOrFallback(order.AvgPrice, 0)
	if fill <= 0 {
		return nil, fmt.Errorf("%s: exit order %d of %s has no average price: %w", op, order.OrderID, pos.ID, ports.ErrInvalidRequest)
	}
	reason, hit := pos.ExitTriggered(fill)
	if !hit {
		reason = domain.CloseReasonManual
	}
	return c.recordFromFill(ctx, op, pos, reason, fill, order.OrderID, orderTime(order, c.now())), nil
}

func (c *Client) recordFromFill(ctx context.Context, op string, pos *domain.Position, reason domain.CloseReason, fill float64, orderID int64, closedAt time.Time) *domain.TradeRecord {
	record := domain.NewTradeRecord(pos, fill, reason, closedAt.UTC())
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":   pos.Symbol,
		"reason":   reason,
		"avgPrice": fill,
		"pnlUSD":   record.PNLUSD,
		"orderID":  orderID,
	})
	return record
}

// filledOrder looks up an order by client id. It returns nil, nil when the
// exchange has no such order or none of it executed.
func (c *Client) filledOrder(ctx context.Context, symbol, clientOrderID string) (*futures.Order, error) {
	op := "GetOrder"
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
	defer cancel()

	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	order, err := c.futuresClient.NewGetOrderService().Symbol(symbol).OrigClientOrderID(clientOrderID).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == -2013 {
			return nil, nil
		}
		return nil, c.handleError(ctx, err, op)
	}
	if parseOrFallback(order.ExecutedQuantity, 0) <= 0 {
		return nil, nil
	}
	return order, nil
}

// fillUncertain reports whether a failed placement may still have reached
// the matching engine.
func fillUncertain(err error) bool {
	return errors.Is(err, ports.ErrDuplicateOrder) ||
		errors.Is(err, ports.ErrTimeout) ||
		errors.Is(err, ports.ErrConnectionFailed) ||
		errors.Is(err, ports.ErrContextCanceled) ||
		errors.Is(err, ports.ErrUnknown)
}

func orderTime(order *futures.Order, fallback time.Time) time.Time {
	if order.UpdateTime > 0 {
		return time.UnixMilli(order.UpdateTime)
	}
	return fallback
}

func (c *Client) placeMarketOrder(ctx context.Context, op, symbol string, side domain.OrderSide, quantity, clientOrderID string, reduceOnly bool) (*futures.CreateOrderResponse, error) {
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if clientOrderID != "" {
		svc = svc.NewClientOrderID(clientOrderID)
	}
	if reduceOnly {
		svc = svc.ReduceOnly(true)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return order, nil
}

// GetKlines retrieves the most recent klines for symbol. The still-forming
// candle, if returned, is marked IsFinal=false.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	now := c.now()
	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval, now)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		domainKlines = append(domainKlines, dk)
	}
	return domainKlines, nil
}

// GetKlinesRange fetches all klines for a symbol/interval between start and end time.
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error) {
	op := "GetKlinesRange"
	var allKlines []*domain.Kline
	const maxLimit = 1500
	from := start

	for {
		if err := c.wait(ctx, op); err != nil {
			return nil, err
		}
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		now := c.now()
		for _, bk := range klines {
			dk, err := translateBinanceKline(bk, symbol, interval, now)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w", err), op)
			}
			allKlines = append(allKlines, dk)
		}
		from = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		if from.After(end) || len(klines) < maxLimit {
			break
		}
	}
	return allKlines, nil
}

// --- Translation Helpers ---

func parseOrFallback(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func translateSymbol(s futures.Symbol) *domain.Instrument {
	inst := &domain.Instrument{Symbol: s.Symbol, StepSize: 0.001, TickSize: 0.01}
	for _, f := range s.Filters {
		switch f["filterType"] {
		case "LOT_SIZE":
			if v, ok := f["stepSize"].(string); ok {
				inst.StepSize, _ = strconv.ParseFloat(v, 64)
			}
			if v, ok := f["minQty"].(string); ok {
				inst.MinQty, _ = strconv.ParseFloat(v, 64)
			}
		case "PRICE_FILTER":
			if v, ok := f["tickSize"].(string); ok {
				inst.TickSize, _ = strconv.ParseFloat(v, 64)
			}
		}
	}
	return inst
}

func translateBinanceKline(bk *futures.Kline, symbol, interval string, now time.Time) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	closeTime := time.UnixMilli(bk.CloseTime)
	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: closeTime,
		Symbol:    symbol, // Not carried by futures.Kline
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsFinal:   closeTime.Before(now),
	}, nil
}
