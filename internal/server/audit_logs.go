package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/haulboard/gatehouse/internal/audit/domain"
	"github.com/haulboard/gatehouse/pkg/db/pagination"
)

type listAuditEntriesQuery struct {
	PageToken     string `form:"page_token"`
	PageSize      int    `form:"page_size"`
	Action        string `form:"action"`
	TenantID      string `form:"tenant_id"`
	ChangedBy     string `form:"changed_by"`
	FeatureFlagID string `form:"feature_flag_id"`
	StartAt       string `form:"start_at"`
	EndAt         string `form:"end_at"`
}

func (s *Server) ListAuditEntries(c *gin.Context) {
	var query listAuditEntriesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startAt, err := parseOptionalTime(query.StartAt, false)
	if err != nil {
		AbortWithError(c, newValidationError("start_at", "invalid_start_at", "invalid start_at"))
		return
	}
	endAt, err := parseOptionalTime(query.EndAt, true)
	if err != nil {
		AbortWithError(c, newValidationError("end_at", "invalid_end_at", "invalid end_at"))
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListEntriesRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Action:        strings.TrimSpace(query.Action),
		TenantID:      strings.TrimSpace(query.TenantID),
		ChangedBy:     strings.TrimSpace(query.ChangedBy),
		FeatureFlagID: strings.TrimSpace(query.FeatureFlagID),
		StartAt:       startAt,
		EndAt:         endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}
