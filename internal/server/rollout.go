package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	rolloutdomain "github.com/haulboard/gatehouse/internal/rollout/domain"
)

func (s *Server) ListFlags(c *gin.Context) {
	var query rolloutdomain.ListFlagsRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	flags, err := s.rolloutSvc.ListFlags(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": flags})
}

func (s *Server) SetChannelDefault(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req rolloutdomain.SetChannelDefaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ActorID = principal.UserID

	resp, err := s.rolloutSvc.SetChannelDefault(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"feature_flag_id": resp.FeatureFlagID,
		"release_channel": resp.ReleaseChannel,
		"enabled":         resp.Enabled,
	})
}

func (s *Server) SetTenantOverride(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req rolloutdomain.SetTenantOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ActorID = principal.UserID

	resp, err := s.rolloutSvc.SetTenantOverride(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"feature_flag_id": resp.FeatureFlagID,
		"tenant_id":       resp.TenantID,
		"enabled":         resp.Enabled,
	})
}

// RemoveTenantOverride deletes the override named by query params. Query
// params rather than a body: DELETE bodies do not survive every proxy.
func (s *Server) RemoveTenantOverride(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	flagID := strings.TrimSpace(c.Query("feature_flag_id"))
	tenantID := strings.TrimSpace(c.Query("tenant_id"))
	if flagID == "" {
		AbortWithError(c, newValidationError("feature_flag_id", "required", "feature_flag_id is required"))
		return
	}
	if tenantID == "" {
		AbortWithError(c, newValidationError("tenant_id", "required", "tenant_id is required"))
		return
	}

	resp, err := s.rolloutSvc.RemoveTenantOverride(c.Request.Context(), rolloutdomain.RemoveTenantOverrideRequest{
		FeatureFlagID: flagID,
		TenantID:      tenantID,
		ActorID:       principal.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"feature_flag_id": resp.FeatureFlagID,
		"tenant_id":       resp.TenantID,
	})
}
