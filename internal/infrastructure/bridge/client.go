package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crosspay.backend/internal/domain/entities"
	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/pkg/logger"
)

const maxErrorBody = 4096

// Client talks to an Across-style bridge/swap API
type Client struct {
	baseURL      string
	integratorID string
	httpClient   *http.Client

	mu         sync.RWMutex
	spokePools map[int64]string
}

// NewClient creates a bridge API client
func NewClient(baseURL, integratorID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		integratorID: integratorID,
		httpClient:   &http.Client{Timeout: timeout},
		spokePools:   make(map[int64]string),
	}
}

// GetAvailableRoutes lists bridgeable token routes
func (c *Client) GetAvailableRoutes(ctx context.Context, filter RouteFilter) ([]entities.BridgeRoute, error) {
	q := url.Values{}
	setChain(q, "originChainId", filter.OriginChainID)
	setChain(q, "destinationChainId", filter.DestinationChainID)
	setString(q, "originToken", filter.OriginToken)
	setString(q, "destinationToken", filter.DestinationToken)

	var resp []routeResponse
	if err := c.getJSON(ctx, "/available-routes", q, &resp); err != nil {
		return nil, err
	}

	routes := make([]entities.BridgeRoute, 0, len(resp))
	for _, r := range resp {
		routes = append(routes, entities.BridgeRoute{
			OriginChainID:          r.OriginChainID,
			DestinationChainID:     r.DestinationChainID,
			OriginToken:            r.OriginToken,
			DestinationToken:       r.DestinationToken,
			OriginTokenSymbol:      r.OriginTokenSymbol,
			DestinationTokenSymbol: r.DestinationTokenSymbol,
			IsNative:               r.IsNative,
		})
	}
	return routes, nil
}

// GetSwapTokens returns the swap-token index for the given chains (all chains when empty)
func (c *Client) GetSwapTokens(ctx context.Context, chainIDs []int64) ([]entities.SwapToken, error) {
	q := url.Values{}
	for _, id := range chainIDs {
		q.Add("chainId", strconv.FormatInt(id, 10))
	}

	var resp []swapTokenResponse
	if err := c.getJSON(ctx, "/swap/tokens", q, &resp); err != nil {
		return nil, err
	}

	tokens := make([]entities.SwapToken, 0, len(resp))
	for _, t := range resp {
		token := entities.SwapToken{
			TokenConfig: entities.TokenConfig{
				Address:  t.Address,
				Symbol:   t.Symbol,
				Name:     t.Name,
				Decimals: t.Decimals,
				ChainID:  t.ChainID,
				LogoURL:  t.LogoURL,
			},
		}
		if t.PriceUSD != nil {
			if price, err := decimal.NewFromString(*t.PriceUSD); err == nil {
				token.PriceUSD = decimal.NewNullDecimal(price)
			}
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// GetLimits returns deposit limits for a route
func (c *Client) GetLimits(ctx context.Context, req RouteRequest) (*entities.DepositLimits, error) {
	var resp limitsResponse
	if err := c.getJSON(ctx, "/limits", routeQuery(req), &resp); err != nil {
		return nil, err
	}
	limits := resp.toEntity()
	return &limits, nil
}

// GetQuote prices a bridge deposit of req.Amount
func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("quote amount must be positive: %w", domainerrors.ErrInvalidInput)
	}
	q := routeQuery(req.RouteRequest)
	q.Set("amount", req.Amount.String())
	setString(q, "recipient", req.Recipient)
	setString(q, "depositor", req.Depositor)

	var resp suggestedFeesResponse
	raw, err := c.getRaw(ctx, "/suggested-fees", q)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode suggested fees: %w", err)
	}

	if resp.SpokePoolAddress != "" {
		c.rememberSpokePool(req.OriginChainID, resp.SpokePoolAddress)
	}

	output := resp.OutputAmount.Big()
	totalFee := resp.TotalRelayFee.toFee()
	if output == nil {
		output = new(big.Int).Sub(req.Amount, totalFee.Total)
		if output.Sign() < 0 {
			output = new(big.Int)
		}
	}

	return &Quote{
		InputAmount:          new(big.Int).Set(req.Amount),
		OutputAmount:         output,
		RelayerCapitalFee:    resp.RelayerCapitalFee.toFee(),
		RelayerGasFee:        resp.RelayerGasFee.toFee(),
		LpFee:                resp.LpFee.toFee(),
		TotalRelayFee:        totalFee,
		QuoteTimestamp:       int64OrZero(resp.Timestamp.Big()),
		FillDeadline:         int64OrZero(resp.FillDeadline.Big()),
		EstimatedFillTimeSec: resp.EstimatedFillTimeSec,
		SpokePoolAddress:     resp.SpokePoolAddress,
		IsAmountTooLow:       resp.IsAmountTooLow,
		Limits:               resp.Limits.toEntity(),
		Raw:                  raw,
	}, nil
}

// GetSwapQuote prices a swap-then-bridge route
func (c *Client) GetSwapQuote(ctx context.Context, req SwapQuoteRequest) (*SwapQuote, error) {
	if req.Depositor == "" {
		return nil, domainerrors.ErrWalletNotConnected
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("swap amount must be positive: %w", domainerrors.ErrInvalidInput)
	}
	tradeType := req.TradeType
	if tradeType == "" {
		tradeType = "minOutput"
	}
	q := routeQuery(req.RouteRequest)
	q.Set("amount", req.Amount.String())
	q.Set("tradeType", tradeType)
	q.Set("depositor", req.Depositor)
	setString(q, "recipient", req.Recipient)
	if req.SlippageTolerance > 0 {
		q.Set("slippageTolerance", strconv.FormatFloat(req.SlippageTolerance, 'f', -1, 64))
	}

	raw, err := c.getRaw(ctx, "/swap/approval", q)
	if err != nil {
		return nil, err
	}
	var resp swapApprovalResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode swap quote: %w", err)
	}

	approvals := make([]entities.ApprovalTxn, 0, len(resp.ApprovalTxns))
	for _, tx := range resp.ApprovalTxns {
		approvals = append(approvals, entities.ApprovalTxn{ChainID: tx.ChainID, To: tx.To, Data: tx.Data})
	}

	origin, dest := resp.InputToken.ChainID, resp.OutputToken.ChainID
	if origin == 0 {
		origin = req.OriginChainID
	}
	if dest == 0 {
		dest = req.DestinationChainID
	}

	return &SwapQuote{
		InputAmount:          resp.InputAmount.Big(),
		RequiredInputAmount:  resp.Checks.Balance.Expected.Big(),
		ExpectedOutputAmount: resp.ExpectedOutputAmount.Big(),
		MinOutputAmount:      resp.MinOutputAmount.Big(),
		ApprovalTxns:         approvals,
		OriginChainID:        origin,
		DestinationChainID:   dest,
		ExpectedFillTimeSec:  resp.ExpectedFillTime,
		FillDeadline:         int64OrZero(resp.FillDeadline.Big()),
		QuoteExpiryTimestamp: resp.QuoteExpiryTimestamp,
		Raw:                  raw,
	}, nil
}

// GetSpokePoolAddress returns the deposit contract of a chain, either configured or learned from an earlier quote
func (c *Client) GetSpokePoolAddress(_ context.Context, chainID int64) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	addr, ok := c.spokePools[chainID]
	if !ok {
		return "", fmt.Errorf("spoke pool for chain %d: %w", chainID, domainerrors.ErrNotFound)
	}
	return addr, nil
}

// SetSpokePool registers a known spoke pool address
func (c *Client) SetSpokePool(chainID int64, address string) {
	c.rememberSpokePool(chainID, address)
}

// GetDeposit looks a deposit up by origin chain and deposit id (or tx hash)
func (c *Client) GetDeposit(ctx context.Context, lookup DepositLookup) (*DepositStatus, error) {
	q := url.Values{}
	setChain(q, "originChainId", lookup.OriginChainID)
	switch {
	case lookup.DepositID != nil:
		q.Set("depositId", lookup.DepositID.String())
	case lookup.DepositTxHash != "":
		q.Set("depositTxHash", lookup.DepositTxHash)
	default:
		return nil, fmt.Errorf("deposit id or tx hash required: %w", domainerrors.ErrInvalidInput)
	}
	return c.depositStatus(ctx, q)
}

// GetFillByDepositTx resolves the fill of the deposit made in txHash
func (c *Client) GetFillByDepositTx(ctx context.Context, originChainID int64, txHash string) (*DepositStatus, error) {
	if txHash == "" {
		return nil, fmt.Errorf("deposit tx hash required: %w", domainerrors.ErrInvalidInput)
	}
	q := url.Values{}
	setChain(q, "originChainId", originChainID)
	q.Set("depositTxHash", txHash)
	return c.depositStatus(ctx, q)
}

func (c *Client) depositStatus(ctx context.Context, q url.Values) (*DepositStatus, error) {
	var resp depositStatusResponse
	if err := c.getJSON(ctx, "/deposit/status", q, &resp); err != nil {
		return nil, err
	}
	return &DepositStatus{
		Status:             resp.Status,
		OriginChainID:      resp.OriginChainID,
		DestinationChainID: resp.DestinationChainID,
		DepositID:          resp.DepositID.Big(),
		DepositTxHash:      resp.DepositTxHash,
		FillTxHash:         resp.FillTx,
	}, nil
}

func (c *Client) rememberSpokePool(chainID int64, address string) {
	c.mu.Lock()
	c.spokePools[chainID] = address
	c.mu.Unlock()
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	raw, err := c.getRaw(ctx, path, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if c.baseURL == "" {
		return nil, domainerrors.ErrBridgeUnavailable
	}
	if c.integratorID != "" {
		q.Set("integratorId", c.integratorID)
	}
	endpoint := c.baseURL + path
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	logger.Debug(ctx, "bridge api call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("bridge %s: %w", path, domainerrors.ErrNotFound)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newAPIError(path, resp.StatusCode, body)
	}
	return body, nil
}

func newAPIError(path string, status int, body []byte) error {
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		return fmt.Errorf("bridge %s: %d %s: %s: %w", path, status, apiErr.Code, apiErr.Message, domainerrors.ErrQuoteUnavailable)
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Errorf("bridge %s: %d %s: %w", path, status, strings.TrimSpace(string(body)), domainerrors.ErrQuoteUnavailable)
}

func routeQuery(req RouteRequest) url.Values {
	q := url.Values{}
	setString(q, "inputToken", req.InputToken)
	setString(q, "outputToken", req.OutputToken)
	setChain(q, "originChainId", req.OriginChainID)
	setChain(q, "destinationChainId", req.DestinationChainID)
	return q
}

func setChain(q url.Values, key string, chainID int64) {
	if chainID != 0 {
		q.Set(key, strconv.FormatInt(chainID, 10))
	}
}

func setString(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func int64OrZero(v *big.Int) int64 {
	if v == nil || !v.IsInt64() {
		return 0
	}
	return v.Int64()
}
