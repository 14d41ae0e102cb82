package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tradingArena/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// PriceMode selects which futures price feeds CurrentPrice.
type PriceMode string

const (
	PriceModeMark PriceMode = "mark" // Premium index mark price
	PriceModeLast PriceMode = "last" // Last traded price from the 24h ticker
)

// Client implements ports.PriceSource on top of Binance futures public endpoints.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	symbol        string
	mode          PriceMode
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Symbol     string
	Mode       PriceMode // Defaults to PriceModeMark
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol is required for Binance client")
	}
	mode := cfg.Mode
	if mode == "" {
		mode = PriceModeMark
	}
	if mode != PriceModeMark && mode != PriceModeLast {
		return nil, fmt.Errorf("unknown price mode %q", mode)
	}

	// Price endpoints are public; keys are only passed through.
	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		symbol:        strings.ToUpper(cfg.Symbol),
		mode:          mode,
	}, nil
}

// apiErrorKinds maps Binance API error codes to ports errors. Unlisted codes
// become ports.ErrUnknown.
var apiErrorKinds = map[int64]error{
	-1003: ports.ErrRateLimited,         // Too many requests
	-1001: ports.ErrExchangeUnavailable, // Disconnected
	-1006: ports.ErrExchangeUnavailable, // Unexpected response
	-1007: ports.ErrExchangeUnavailable, // Backend timeout
	-1021: ports.ErrTimeout,             // Outside recvWindow
	-1022: ports.ErrAuthenticationFailed,
	-2014: ports.ErrAuthenticationFailed,
	-2015: ports.ErrAuthenticationFailed,
	-1100: ports.ErrInvalidRequest,
	-1101: ports.ErrInvalidRequest,
	-1102: ports.ErrInvalidRequest,
	-1103: ports.ErrInvalidRequest,
	-1104: ports.ErrInvalidRequest,
	-1105: ports.ErrInvalidRequest,
	-1106: ports.ErrInvalidRequest,
	-1121: ports.ErrInvalidRequest, // Invalid symbol
}

var connectionFailures = []string{
	"use of closed network connection",
	"connection refused",
	"connection reset by peer",
}

// classify returns the ports error that best describes err.
func classify(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := apiErrorKinds[apiErr.Code]; ok {
			return kind
		}
		return ports.ErrUnknown
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ports.ErrTimeout
	case errors.Is(err, context.Canceled):
		return ports.ErrContextCanceled
	}
	msg := err.Error()
	for _, s := range connectionFailures {
		if strings.Contains(msg, s) {
			return ports.ErrConnectionFailed
		}
	}
	return ports.ErrUnknown
}

// handleError wraps err with its ports classification. Failures are logged at
// Warn; the pricing gate decides whether they are fatal.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	kind := classify(err)

	fields := map[string]interface{}{"operation": operation, "symbol": c.symbol, "kind": kind.Error()}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
	}
	c.logger.Warn(ctx, "Price request failed", fields)

	return fmt.Errorf("%s failed: %w: %w", operation, kind, err)
}

// CurrentPrice returns the configured price for the configured symbol.
func (c *Client) CurrentPrice(ctx context.Context) (float64, error) {
	if c.mode == PriceModeLast {
		return c.GetTickerPrice(ctx, c.symbol)
	}
	return c.GetMarkPrice(ctx, c.symbol)
}

// GetMarkPrice retrieves the current mark price for a given symbol.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetMarkPrice"
	tickers, err := c.futuresClient.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("no price data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}
	return c.parsePrice(ctx, tickers[0].MarkPrice, op)
}

// GetTickerPrice retrieves the last ticker price for a given symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetTickerPrice"
	tickers, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("no ticker data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}
	return c.parsePrice(ctx, tickers[0].LastPrice, op)
}

func (c *Client) parsePrice(ctx context.Context, raw, op string) (float64, error) {
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, c.handleError(ctx, fmt.Errorf("could not parse price '%s': %w", raw, err), op)
	}
	if price <= 0 {
		return 0, c.handleError(ctx, fmt.Errorf("non-positive price %s", raw), op)
	}
	return price, nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	err := c.futuresClient.NewPingService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}
