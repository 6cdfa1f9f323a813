package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	identitydomain "github.com/haulboard/gatehouse/internal/identity/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.identitySvc.Login(c.Request.Context(), identitydomain.LoginRequest{
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      result.RawToken,
		"expires_at": result.ExpiresAt,
		"user": gin.H{
			"id":                result.User.ID.String(),
			"email":             result.User.Email,
			"name":              result.User.Name,
			"is_platform_admin": result.User.IsPlatformAdmin,
		},
	})
}

// Logout revokes the presented token. An absent or unknown token still
// answers success so the call is idempotent.
func (s *Server) Logout(c *gin.Context) {
	raw := bearerToken(c)
	if raw != "" {
		if err := s.identitySvc.Logout(c.Request.Context(), raw); err != nil {
			AbortWithError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) Me(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	user, err := s.identitySvc.WhoAmI(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                user.ID.String(),
		"email":             user.Email,
		"name":              user.Name,
		"is_platform_admin": user.IsPlatformAdmin,
		"status":            user.Status,
	})
}
