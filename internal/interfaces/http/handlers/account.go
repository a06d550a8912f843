package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/interfaces/http/middleware"
	"crosspay.backend/internal/interfaces/http/response"
)

// requireAccount returns the X-Account of the request. A body account, when given, must name the same wallet.
func requireAccount(c *gin.Context, bodyAccount string) (string, bool) {
	account, ok := middleware.GetAccount(c)
	if !ok {
		response.Error(c, domainerrors.ErrNoAccountConfigured)
		return "", false
	}
	if body := strings.TrimSpace(bodyAccount); body != "" && !strings.EqualFold(body, account) {
		response.Error(c, domainerrors.BadRequest("account does not match "+middleware.AccountHeader))
		return "", false
	}
	return account, true
}
