package usecases

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"crosspay.backend/internal/domain/entities"
)

// RouteInput describes what the builder enumerates candidates for
type RouteInput struct {
	Target          entities.TokenConfig
	TargetAmount    *big.Int
	SupportedChains []int64
	Routes          []entities.BridgeRoute
	SwapTokens      []entities.SwapToken
	PriceOverrides  map[string]decimal.Decimal
}

// CandidateSet is the unpriced option list plus the USD price map it was built with
type CandidateSet struct {
	Options []entities.PaymentOption
	Prices  map[string]decimal.Decimal
}

// RouteBuilder enumerates direct, bridge and swap candidates for a payment target
type RouteBuilder struct {
	wrapped entities.WrappedTokenMap
}

func NewRouteBuilder(wrapped entities.WrappedTokenMap) *RouteBuilder {
	if wrapped == nil {
		wrapped = entities.WrappedTokenMap{}
	}
	return &RouteBuilder{wrapped: wrapped}
}

// Build returns exactly one direct candidate, bridge candidates for every usable route
// (plus a wrap-then-bridge variant where a native pairing exists) and swap candidates.
func (b *RouteBuilder) Build(in RouteInput) CandidateSet {
	prices := b.PriceMap(in.SwapTokens, in.PriceOverrides)
	supported := make(map[int64]bool, len(in.SupportedChains))
	for _, id := range in.SupportedChains {
		supported[id] = true
	}

	var options []entities.PaymentOption
	seen := make(map[string]bool)
	covered := make(map[string]bool)
	add := func(opt entities.PaymentOption) {
		if seen[opt.ID] {
			return
		}
		seen[opt.ID] = true
		opt.PriceUSD = priceOf(prices, opt.DisplayToken)
		options = append(options, opt)
	}

	targetKey := in.Target.Key()
	add(entities.PaymentOption{
		ID:           entities.OptionID(entities.PaymentModeDirect, in.Target.ChainID, in.Target.Address, false),
		Mode:         entities.PaymentModeDirect,
		DisplayToken: in.Target,
	})
	covered[targetKey] = true

	for _, route := range in.Routes {
		if !supported[route.OriginChainID] ||
			route.DestinationChainID != in.Target.ChainID ||
			!strings.EqualFold(route.DestinationToken, in.Target.Address) ||
			route.OriginChainID == in.Target.ChainID {
			continue
		}
		r := route
		input := entities.TokenConfig{
			Address: route.OriginToken,
			Symbol:  route.OriginTokenSymbol,
			ChainID: route.OriginChainID,
		}
		add(entities.PaymentOption{
			ID:           entities.OptionID(entities.PaymentModeBridge, route.OriginChainID, route.OriginToken, false),
			Mode:         entities.PaymentModeBridge,
			DisplayToken: input,
			Route:        &r,
		})
		covered[input.Key()] = true

		pair, ok := b.wrapped.Lookup(route.OriginChainID, route.OriginTokenSymbol)
		if !ok || !strings.EqualFold(pair.Wrapped.Address, route.OriginToken) {
			continue
		}
		wrappedToken := pair.Wrapped
		add(entities.PaymentOption{
			ID:           entities.OptionID(entities.PaymentModeBridge, route.OriginChainID, pair.Native.Address, true),
			Mode:         entities.PaymentModeBridge,
			DisplayToken: pair.Native,
			WrappedToken: &wrappedToken,
			RequiresWrap: true,
			Route:        &r,
		})
		covered[pair.Native.Key()] = true
	}

	for _, st := range in.SwapTokens {
		token := st.TokenConfig
		if !supported[token.ChainID] || covered[token.Key()] {
			continue
		}
		add(entities.PaymentOption{
			ID:           entities.OptionID(entities.PaymentModeSwap, token.ChainID, token.Address, false),
			Mode:         entities.PaymentModeSwap,
			DisplayToken: token,
			SwapRoute: &entities.SwapRoute{
				OriginChainID:      token.ChainID,
				DestinationChainID: in.Target.ChainID,
				InputToken:         token,
				OutputToken:        in.Target,
			},
		})
	}

	return CandidateSet{Options: options, Prices: prices}
}

// PriceMap builds chainId:address -> USD price. Overrides win over the swap index and
// a price known for only one side of a native/wrapped pair is copied to the other.
func (b *RouteBuilder) PriceMap(swapTokens []entities.SwapToken, overrides map[string]decimal.Decimal) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(swapTokens)+len(overrides))
	for _, st := range swapTokens {
		if st.PriceUSD.Valid {
			prices[st.Key()] = st.PriceUSD.Decimal
		}
	}
	for key, price := range overrides {
		prices[normalizePriceKey(key)] = price
	}

	for _, bySymbol := range b.wrapped {
		for _, pair := range bySymbol {
			nativeKey, wrappedKey := pair.Native.Key(), pair.Wrapped.Key()
			nativePrice, hasNative := prices[nativeKey]
			wrappedPrice, hasWrapped := prices[wrappedKey]
			switch {
			case hasNative && !hasWrapped:
				prices[wrappedKey] = nativePrice
			case hasWrapped && !hasNative:
				prices[nativeKey] = wrappedPrice
			}
		}
	}
	return prices
}

// EstimateUSD values amount (smallest unit) of token at price
func EstimateUSD(amount *big.Int, decimals int, price decimal.NullDecimal) decimal.NullDecimal {
	if amount == nil || !price.Valid {
		return decimal.NullDecimal{}
	}
	units := decimal.NewFromBigInt(amount, int32(-decimals))
	return decimal.NewNullDecimal(units.Mul(price.Decimal))
}

func priceOf(prices map[string]decimal.Decimal, token entities.TokenConfig) decimal.NullDecimal {
	if price, ok := prices[token.Key()]; ok {
		return decimal.NewNullDecimal(price)
	}
	return decimal.NullDecimal{}
}

// override keys arrive as chainId:address in any case
func normalizePriceKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
