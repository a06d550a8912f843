package indexer

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
	"time"

	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/pkg/utils"
)

// DefaultRemoteLimit caps deposits fetched per depositor
const DefaultRemoteLimit = 50

// Deposit is one deposit as reported by the indexer
type Deposit struct {
	OriginChainID      int64
	DestinationChainID int64
	InputToken         string
	OutputToken        string
	InputAmount        *big.Int
	OutputAmount       *big.Int
	DepositID          *big.Int
	DepositTxHash      string
	FillTxHash         string
	Status             string
	QuoteTimestamp     int64 // seconds
	Depositor          string
	Recipient          string
}

// IsFilled reports whether the indexer saw the fill
func (d Deposit) IsFilled() bool {
	return d.FillTxHash != "" || strings.EqualFold(d.Status, "filled")
}

// Query finds a single deposit; DepositID wins over DepositTxHash
type Query struct {
	OriginChainID      int64
	DestinationChainID int64
	DepositID          *big.Int
	DepositTxHash      string
}

type depositResponse struct {
	OriginChainID      utils.FlexBigInt `json:"originChainId"`
	DestinationChainID utils.FlexBigInt `json:"destinationChainId"`
	InputToken         string           `json:"inputToken"`
	OutputToken        string           `json:"outputToken"`
	InputAmount        utils.FlexBigInt `json:"inputAmount"`
	OutputAmount       utils.FlexBigInt `json:"outputAmount"`
	DepositID          utils.FlexBigInt `json:"depositId"`
	DepositTxHash      string           `json:"depositTxHash"`
	FillTxHash         string           `json:"fillTxHash"`
	Status             string           `json:"status"`
	QuoteTimestamp     json.RawMessage  `json:"quoteTimestamp"`
	Depositor          string           `json:"depositor"`
	Recipient          string           `json:"recipient"`
}

type depositsResponse struct {
	Deposits []depositResponse `json:"deposits"`
}

// Client queries the deposit indexer REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an indexer client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetDepositsByDepositor lists the most recent deposits made by depositor
func (c *Client) GetDepositsByDepositor(ctx context.Context, depositor string, limit int) ([]Deposit, error) {
	if depositor == "" {
		return nil, fmt.Errorf("depositor required: %w", domainerrors.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultRemoteLimit
	}
	q := url.Values{}
	q.Set("depositor", depositor)
	q.Set("limit", strconv.Itoa(limit))
	return c.fetch(ctx, q)
}

// FindDeposit returns the single deposit matching q or ErrNotFound
func (c *Client) FindDeposit(ctx context.Context, query Query) (*Deposit, error) {
	q := url.Values{}
	q.Set("originChainId", strconv.FormatInt(query.OriginChainID, 10))
	q.Set("destinationChainId", strconv.FormatInt(query.DestinationChainID, 10))
	q.Set("limit", "1")
	switch {
	case query.DepositID != nil:
		q.Set("depositId", query.DepositID.String())
	case query.DepositTxHash != "":
		q.Set("depositTxHash", query.DepositTxHash)
	default:
		return nil, fmt.Errorf("deposit id or tx hash required: %w", domainerrors.ErrInvalidInput)
	}

	deposits, err := c.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(deposits) == 0 {
		return nil, domainerrors.ErrNotFound
	}
	return &deposits[0], nil
}

func (c *Client) fetch(ctx context.Context, q url.Values) ([]Deposit, error) {
	if c.baseURL == "" {
		return nil, domainerrors.ErrIndexerUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/deposits?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer: %w: %v", domainerrors.ErrIndexerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read indexer response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("indexer returned %d: %w", resp.StatusCode, domainerrors.ErrIndexerUnavailable)
	}

	var payload depositsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode indexer response: %w", err)
	}

	deposits := make([]Deposit, 0, len(payload.Deposits))
	for _, d := range payload.Deposits {
		deposits = append(deposits, d.toDeposit())
	}
	return deposits, nil
}

func (d depositResponse) toDeposit() Deposit {
	return Deposit{
		OriginChainID:      chainOrZero(d.OriginChainID.Big()),
		DestinationChainID: chainOrZero(d.DestinationChainID.Big()),
		InputToken:         d.InputToken,
		OutputToken:        d.OutputToken,
		InputAmount:        utils.BigOrZero(d.InputAmount.Big()),
		OutputAmount:       utils.BigOrZero(d.OutputAmount.Big()),
		DepositID:          d.DepositID.Big(),
		DepositTxHash:      d.DepositTxHash,
		FillTxHash:         d.FillTxHash,
		Status:             d.Status,
		QuoteTimestamp:     parseTimestamp(d.QuoteTimestamp),
		Depositor:          d.Depositor,
		Recipient:          d.Recipient,
	}
}

func chainOrZero(v *big.Int) int64 {
	if v == nil || !v.IsInt64() {
		return 0
	}
	return v.Int64()
}

// parseTimestamp accepts unix seconds (string or number) or an RFC3339 string
func parseTimestamp(raw json.RawMessage) int64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return secs
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix()
	}
	return 0
}
