package bridge

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "crosspay.backend/internal/domain/errors"
)

const (
	usdcOP   = "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"
	usdcBase = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
)

func newBridgeAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/available-routes", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "8453", r.URL.Query().Get("destinationChainId"))
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{{
			"originChainId": 10, "originToken": usdcOP, "destinationChainId": 8453,
			"destinationToken": usdcBase, "originTokenSymbol": "USDC", "destinationTokenSymbol": "USDC", "isNative": false,
		}})
	})
	mux.HandleFunc("/swap/tokens", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"10", "8453"}, r.URL.Query()["chainId"])
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"chainId": 10, "address": "0x4200000000000000000000000000000000000042", "name": "Optimism", "symbol": "OP", "decimals": 18, "priceUsd": "1.85"},
			{"chainId": 10, "address": "0x1111111111111111111111111111111111111111", "name": "Mystery", "symbol": "MYS", "decimals": 6, "priceUsd": nil},
		})
	})
	mux.HandleFunc("/limits", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"minDeposit":"500000","maxDeposit":"1000000000000","maxDepositInstant":"250000000000"}`))
	})
	mux.HandleFunc("/suggested-fees", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "integrator-1", r.URL.Query().Get("integratorId"))
		if r.URL.Query().Get("amount") == "1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"type":"AcrossApiError","code":"AMOUNT_TOO_LOW","message":"Sent amount is too low relative to fees"}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"estimatedFillTimeSec": 4,
			"timestamp": "1718000000",
			"fillDeadline": "1718021600",
			"isAmountTooLow": false,
			"spokePoolAddress": "0x6f26Bf09B1C792e3228e5467807a900A503c0281",
			"totalRelayFee": {"pct": "1000000000000000", "total": "10000"},
			"relayerCapitalFee": {"pct": "100", "total": "4000"},
			"relayerGasFee": {"pct": "100", "total": "5000"},
			"lpFee": {"pct": "100", "total": "1000"},
			"limits": {"minDeposit": "500000", "maxDeposit": "1000000000000"}
		}`))
	})
	mux.HandleFunc("/swap/approval", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "exactInput", r.URL.Query().Get("tradeType"))
		_, _ = w.Write([]byte(`{
			"checks": {"balance": {"actual": "5000000000000000000", "expected": "2000000000000000000"}},
			"approvalTxns": [{"chainId": 10, "to": "0x4200000000000000000000000000000000000042", "data": "0x095ea7b3"}],
			"inputToken": {"chainId": 10, "address": "0x4200000000000000000000000000000000000042"},
			"outputToken": {"chainId": 8453, "address": "` + usdcBase + `"},
			"inputAmount": "2000000000000000000",
			"expectedOutputAmount": "3600000",
			"minOutputAmount": "3550000",
			"expectedFillTime": 6,
			"fillDeadline": 1718021600,
			"quoteExpiryTimestamp": 1718000300
		}`))
	})
	mux.HandleFunc("/deposit/status", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("depositId") == "404" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "filled", "originChainId": 10, "destinationChainId": 8453,
			"depositId": "777", "depositTxHash": "0xdep", "fillTx": "0xfill",
		})
	})
	return httptest.NewServer(mux)
}

func TestClient_RoutesTokensAndLimits(t *testing.T) {
	srv := newBridgeAPIServer(t)
	defer srv.Close()
	c := NewClient(srv.URL+"/", "integrator-1", time.Second)
	ctx := context.Background()

	routes, err := c.GetAvailableRoutes(ctx, RouteFilter{DestinationChainID: 8453})
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, int64(10), routes[0].OriginChainID)
	assert.Equal(t, "USDC", routes[0].OriginTokenSymbol)

	tokens, err := c.GetSwapTokens(ctx, []int64{10, 8453})
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.True(t, tokens[0].PriceUSD.Valid)
	assert.Equal(t, "1.85", tokens[0].PriceUSD.Decimal.String())
	assert.False(t, tokens[1].PriceUSD.Valid)

	limits, err := c.GetLimits(ctx, RouteRequest{InputToken: usdcOP, OutputToken: usdcBase, OriginChainID: 10, DestinationChainID: 8453})
	require.NoError(t, err)
	assert.Equal(t, "500000", limits.MinDeposit.String())
	assert.Equal(t, "1000000000000", limits.MaxDeposit.String())
}

func TestClient_GetQuoteDerivesOutputAndLearnsSpokePool(t *testing.T) {
	srv := newBridgeAPIServer(t)
	defer srv.Close()
	c := NewClient(srv.URL, "integrator-1", time.Second)
	ctx := context.Background()

	_, err := c.GetSpokePoolAddress(ctx, 10)
	require.ErrorIs(t, err, domainerrors.ErrNotFound)

	quote, err := c.GetQuote(ctx, QuoteRequest{
		RouteRequest: RouteRequest{InputToken: usdcOP, OutputToken: usdcBase, OriginChainID: 10, DestinationChainID: 8453},
		Amount:       big.NewInt(1_000_000),
	})
	require.NoError(t, err)
	assert.Equal(t, "990000", quote.OutputAmount.String())
	assert.Equal(t, "4000", quote.RelayerCapitalFee.Total.String())
	assert.Equal(t, int64(1718000000), quote.QuoteTimestamp)
	assert.Equal(t, int64(1718021600), quote.FillDeadline)
	assert.Equal(t, int64(4), quote.EstimatedFillTimeSec)
	assert.NotEmpty(t, quote.Raw)

	pool, err := c.GetSpokePoolAddress(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "0x6f26Bf09B1C792e3228e5467807a900A503c0281", pool)

	_, err = c.GetQuote(ctx, QuoteRequest{Amount: big.NewInt(1)})
	require.ErrorIs(t, err, domainerrors.ErrQuoteUnavailable)
	assert.Contains(t, err.Error(), "AMOUNT_TOO_LOW")

	_, err = c.GetQuote(ctx, QuoteRequest{Amount: big.NewInt(0)})
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestClient_GetSwapQuote(t *testing.T) {
	srv := newBridgeAPIServer(t)
	defer srv.Close()
	c := NewClient(srv.URL, "integrator-1", time.Second)

	_, err := c.GetSwapQuote(context.Background(), SwapQuoteRequest{Amount: big.NewInt(1)})
	require.ErrorIs(t, err, domainerrors.ErrWalletNotConnected)

	quote, err := c.GetSwapQuote(context.Background(), SwapQuoteRequest{
		RouteRequest: RouteRequest{InputToken: "0x4200000000000000000000000000000000000042", OutputToken: usdcBase, OriginChainID: 10, DestinationChainID: 8453},
		Amount:       big.NewInt(2_000_000_000_000_000_000),
		TradeType:    "exactInput",
		Depositor:    "0x3333333333333333333333333333333333333333",
	})
	require.NoError(t, err)
	assert.Equal(t, "3600000", quote.ExpectedOutputAmount.String())
	assert.Equal(t, "2000000000000000000", quote.RequiredInputAmount.String())
	require.Len(t, quote.ApprovalTxns, 1)
	assert.Equal(t, int64(8453), quote.DestinationChainID)
	assert.Equal(t, int64(1718021600), quote.FillDeadline)
}

func TestClient_DepositStatus(t *testing.T) {
	srv := newBridgeAPIServer(t)
	defer srv.Close()
	c := NewClient(srv.URL, "", time.Second)
	ctx := context.Background()

	status, err := c.GetDeposit(ctx, DepositLookup{OriginChainID: 10, DepositID: big.NewInt(777)})
	require.NoError(t, err)
	assert.True(t, status.IsFilled())
	assert.Equal(t, "0xfill", status.FillTxHash)
	assert.Equal(t, int64(777), status.DepositID.Int64())

	status, err = c.GetFillByDepositTx(ctx, 10, "0xdep")
	require.NoError(t, err)
	assert.Equal(t, "0xdep", status.DepositTxHash)

	_, err = c.GetDeposit(ctx, DepositLookup{OriginChainID: 10, DepositID: big.NewInt(404)})
	require.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = c.GetDeposit(ctx, DepositLookup{OriginChainID: 10})
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)
	_, err = c.GetFillByDepositTx(ctx, 10, "")
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)

	var nilStatus *DepositStatus
	assert.False(t, nilStatus.IsFilled())
}

func TestClient_Unconfigured(t *testing.T) {
	c := NewClient("", "", 0)
	_, err := c.GetAvailableRoutes(context.Background(), RouteFilter{})
	require.ErrorIs(t, err, domainerrors.ErrBridgeUnavailable)

	c.SetSpokePool(1, "0x5c7BCd6E7De5423a257D81B442095A1a6ced35C5")
	pool, err := c.GetSpokePoolAddress(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "0x5c7BCd6E7De5423a257D81B442095A1a6ced35C5", pool)
}
