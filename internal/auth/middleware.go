package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Identity verification is out of scope for this service; callers are
// fronted by a gateway that authenticates wallets. These middlewares only
// read the wallet address header the gateway forwards and normalize it.

const walletHeader = "X-Wallet-Address"

// IdentityMiddleware requires a wallet address header and places its
// lower-cased form in the request context.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := strings.TrimSpace(c.GetHeader(walletHeader))
		if address == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "X-Wallet-Address header required",
			})
			c.Abort()
			return
		}

		c.Set("wallet_address", strings.ToLower(address))
		c.Next()
	}
}

// OptionalIdentityMiddleware records the wallet address when present but
// lets anonymous requests through.
func OptionalIdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if address := strings.TrimSpace(c.GetHeader(walletHeader)); address != "" {
			c.Set("wallet_address", strings.ToLower(address))
		}
		c.Next()
	}
}

// GetWalletAddress retrieves the caller's wallet address from the context
func GetWalletAddress(c *gin.Context) (string, bool) {
	address, exists := c.Get("wallet_address")
	if !exists {
		return "", false
	}
	s, ok := address.(string)
	return s, ok && s != ""
}
