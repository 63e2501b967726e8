package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gridmesh/gpumarket/internal/api/dto"
)

// Deposit handles POST /api/v1/accounts/deposit
// Funds the caller's account so job bounties can be escrowed against it
func (h *MarketHandler) Deposit(c *gin.Context) {
	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}

	h.bank.Deposit(caller(c), req.Amount)
	h.logger.Info("Deposit accepted",
		slog.String("account", caller(c)),
		slog.Int64("amount", req.Amount),
	)

	c.JSON(http.StatusOK, dto.BalanceResponse{
		Account: caller(c),
		Balance: h.bank.Balance(caller(c)),
	})
}

// Balance handles GET /api/v1/accounts/balance
func (h *MarketHandler) Balance(c *gin.Context) {
	c.JSON(http.StatusOK, dto.BalanceResponse{
		Account: caller(c),
		Balance: h.bank.Balance(caller(c)),
	})
}
