package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"crosspay.backend/pkg/logger"
)

const (
	AccountHeader = "X-Account"
	AccountKey    = "account"
)

// AccountMiddleware tags the request with the wallet account from the X-Account header.
// The account is not authenticated; it only scopes logs, persistence metadata and idempotency keys.
func AccountMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := strings.ToLower(strings.TrimSpace(c.GetHeader(AccountHeader)))
		if account != "" {
			c.Set(AccountKey, account)
			c.Request = c.Request.WithContext(logger.WithAccount(c.Request.Context(), account))
		}
		c.Next()
	}
}

// GetAccount returns the account set by AccountMiddleware
func GetAccount(c *gin.Context) (string, bool) {
	account := c.GetString(AccountKey)
	return account, account != ""
}
