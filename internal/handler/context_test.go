package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ami-audit-api/internal/middleware"
	"github.com/noah-isme/ami-audit-api/internal/models"
)

func testContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestCurrentPrincipalMissingClaims(t *testing.T) {
	c, _ := testContext(t)

	_, ok := currentPrincipal(c)
	assert.False(t, ok)
}

func TestCurrentPrincipalFromClaims(t *testing.T) {
	c, _ := testContext(t)
	dept := "Teknik Informatika"
	c.Set(middleware.ContextUserKey, &models.JWTClaims{
		UserID:     "u-1",
		Role:       models.RoleDeptHead,
		Department: &dept,
	})

	p, ok := currentPrincipal(c)
	require.True(t, ok)
	assert.Equal(t, "u-1", p.UserID)
	assert.Equal(t, models.RoleDeptHead, p.Role)
	require.NotNil(t, p.Department)
	assert.Equal(t, dept, *p.Department)
}

func TestPageParamsDefaults(t *testing.T) {
	c, _ := testContext(t)

	page, pageSize := pageParams(c)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, pageSize)
}

func TestPageParamsParsed(t *testing.T) {
	c, _ := testContext(t)
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=3&page_size=50", nil)

	page, pageSize := pageParams(c)
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, pageSize)
}

func TestPageParamsRejectsGarbage(t *testing.T) {
	c, _ := testContext(t)
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=-1&page_size=abc", nil)

	page, pageSize := pageParams(c)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, pageSize)
}

func TestAuthHandlerMeUnauthorized(t *testing.T) {
	c, rec := testContext(t)
	handler := NewAuthHandler(nil)

	handler.Me(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerMeReturnsClaims(t *testing.T) {
	c, rec := testContext(t)
	dept := "Teknik Informatika"
	c.Set(middleware.ContextUserKey, &models.JWTClaims{
		UserID:     "u-1",
		Username:   "kaprodi.ti",
		FullName:   "Kepala Prodi TI",
		Role:       models.RoleDeptHead,
		Department: &dept,
	})
	handler := NewAuthHandler(nil)

	handler.Me(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data models.UserInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "kaprodi.ti", envelope.Data.Username)
	assert.Equal(t, models.RoleDeptHead, envelope.Data.Role)
}
