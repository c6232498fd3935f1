// internal/handlers/token.go
package handlers

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

// TokenHandler serves the currency token ledger.
type TokenHandler struct {
	tokenService *services.TokenService
}

func NewTokenHandler(tokenService *services.TokenService) *TokenHandler {
	return &TokenHandler{
		tokenService: tokenService,
	}
}

type transferCurrencyRequest struct {
	To     common.Address `json:"to" binding:"required"`
	Amount uint64         `json:"amount" binding:"required"`
}

// GET /tokens/:token/balances/:account
func (h *TokenHandler) GetBalance(c *gin.Context) {
	token, ok := addressParam(c, "token")
	if !ok {
		return
	}
	account, ok := addressParam(c, "account")
	if !ok {
		return
	}

	balance, err := h.tokenService.BalanceOf(c.Request.Context(), token, account)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"token":   token,
		"account": account,
		"balance": balance,
	})
}

// POST /tokens/:token/transfer
func (h *TokenHandler) Transfer(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	token, ok := addressParam(c, "token")
	if !ok {
		return
	}

	var req transferCurrencyRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.tokenService.Transfer(c.Request.Context(), caller, token, req.To, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"token":  token,
		"from":   caller,
		"to":     req.To,
		"amount": req.Amount,
	})
}
