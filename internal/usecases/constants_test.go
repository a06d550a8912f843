package usecases

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstants(t *testing.T) {
	t.Run("storage key is versioned", func(t *testing.T) {
		assert.Equal(t, "across-payment-history-v1", HistoryStorageKey)
	})

	t.Run("usd shortfall buffer is 98 percent", func(t *testing.T) {
		assert.Equal(t, 0.98, float64(USDShortfallBufferBps)/float64(BpsDenominator))
	})

	t.Run("refinement is bounded", func(t *testing.T) {
		assert.Equal(t, 6, MaxRefinementIterations)
		assert.Equal(t, 300, QuoteValiditySeconds)
	})
}
