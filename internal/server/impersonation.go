package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	impersonationdomain "github.com/haulboard/gatehouse/internal/impersonation/domain"
)

func (s *Server) StartImpersonation(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req impersonationdomain.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.impersonationSvc.Start(c.Request.Context(), principal, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": session})
}

// ValidateImpersonation answers 200 for every session-state outcome; only
// authentication and authorization failures surface as error statuses. The
// reason code tells the caller why access is denied.
func (s *Server) ValidateImpersonation(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	result, err := s.impersonationSvc.Validate(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) RevokeImpersonation(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.impersonationSvc.Revoke(c.Request.Context(), principal, c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) ListImpersonationSessions(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	sessions, err := s.impersonationSvc.ListActive(c.Request.Context(), principal)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sessions})
}
