package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"opinion-market/internal/auth"
	"opinion-market/internal/services"
)

type AdminHandler struct {
	userService *services.UserService
}

func NewAdminHandler(userService *services.UserService) *AdminHandler {
	return &AdminHandler{
		userService: userService,
	}
}

// ListUsers retrieves all accounts for the admin panel
// GET /api/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	actingUserID, ok := auth.GetWalletAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet address required"})
		return
	}

	users, err := h.userService.ListUsers(c.Request.Context(), actingUserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"total": len(users),
	})
}

// SetUserRole toggles another account's admin flag
// PUT /api/admin/users
func (h *AdminHandler) SetUserRole(c *gin.Context) {
	actingUserID, ok := auth.GetWalletAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet address required"})
		return
	}

	var req struct {
		TargetWalletAddress string `json:"target_wallet_address" binding:"required"`
		IsAdmin             *bool  `json:"is_admin" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_wallet_address and is_admin are required"})
		return
	}

	user, err := h.userService.SetAdmin(c.Request.Context(), actingUserID, req.TargetWalletAddress, *req.IsAdmin)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "User role updated successfully",
		"user":    user,
	})
}
