package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"crosspay.backend/internal/domain/entities"
	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/interfaces/http/response"
)

type tokenResolver interface {
	ResolveToken(ctx context.Context, address string, chainID int64) entities.TokenConfig
}

// ChainHandler handles chain and token endpoints
type ChainHandler struct {
	chains   []entities.ChainConfig
	wrapped  entities.WrappedTokenMap
	resolver tokenResolver
}

// NewChainHandler creates a new chain handler
func NewChainHandler(chains []entities.ChainConfig, wrapped entities.WrappedTokenMap, resolver tokenResolver) *ChainHandler {
	return &ChainHandler{chains: chains, wrapped: wrapped, resolver: resolver}
}

// ListChains lists the configured chains without their RPC endpoints
// GET /api/v1/chains
func (h *ChainHandler) ListChains(c *gin.Context) {
	type chainResponse struct {
		ID           int64                 `json:"id"`
		CAIP2        string                `json:"caip2"`
		Name         string                `json:"name"`
		ExplorerURL  string                `json:"explorerUrl,omitempty"`
		NativeToken  entities.TokenConfig  `json:"nativeToken"`
		WrappedToken *entities.TokenConfig `json:"wrappedToken,omitempty"`
	}

	items := make([]chainResponse, 0, len(h.chains))
	for _, chain := range h.chains {
		item := chainResponse{
			ID:          chain.ChainID,
			CAIP2:       "eip155:" + strconv.FormatInt(chain.ChainID, 10),
			Name:        chain.Name,
			ExplorerURL: chain.ExplorerURL,
			NativeToken: chain.NativeToken(),
		}
		if pair, ok := h.wrapped.Lookup(chain.ChainID, chain.NativeCurrency.Symbol); ok {
			wrapped := pair.Wrapped
			item.WrappedToken = &wrapped
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{"chains": items})
}

// ResolveToken returns the metadata of a token, reading it on chain when it is not cached
// GET /api/v1/tokens/resolve?chainId=10&address=0x...
func (h *ChainHandler) ResolveToken(c *gin.Context) {
	chainID, err := strconv.ParseInt(c.Query("chainId"), 10, 64)
	if err != nil || chainID <= 0 {
		response.Error(c, domainerrors.BadRequest("Invalid chainId"))
		return
	}
	address := strings.TrimSpace(c.Query("address"))
	if address == "" {
		response.Error(c, domainerrors.BadRequest("address is required"))
		return
	}
	if !h.isConfigured(chainID) {
		response.Error(c, domainerrors.NotFound("chain not configured"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": h.resolver.ResolveToken(c.Request.Context(), address, chainID)})
}

func (h *ChainHandler) isConfigured(chainID int64) bool {
	for _, chain := range h.chains {
		if chain.ChainID == chainID {
			return true
		}
	}
	return false
}
