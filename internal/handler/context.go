package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ami-audit-api/internal/middleware"
	"github.com/noah-isme/ami-audit-api/internal/models"
)

// currentClaims extracts the authenticated JWT claims from the request
// context. Returns nil when the route was not protected.
func currentClaims(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// currentPrincipal derives the policy principal from the request claims.
func currentPrincipal(c *gin.Context) (models.Principal, bool) {
	claims := currentClaims(c)
	if claims == nil {
		return models.Principal{}, false
	}
	return claims.Principal(), true
}

// requestMeta captures client metadata for trail records.
func requestMeta(c *gin.Context) models.LoginRequest {
	return models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

// pageParams parses the standard pagination query parameters.
func pageParams(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil && v > 0 {
		pageSize = v
	}
	return page, pageSize
}
