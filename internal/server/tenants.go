package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	"github.com/haulboard/gatehouse/pkg/db/pagination"
)

type listTenantsQuery struct {
	pagination.Pagination
	Query          string `form:"q"`
	ReleaseChannel string `form:"release_channel"`
	Status         string `form:"status"`
}

func (s *Server) ListTenants(c *gin.Context) {
	var query listTenantsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.List(c.Request.Context(), tenantdomain.ListTenantsRequest{
		Pagination:     query.Pagination,
		Query:          strings.TrimSpace(query.Query),
		ReleaseChannel: strings.TrimSpace(query.ReleaseChannel),
		Status:         strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Tenants, "page_info": resp.PageInfo})
}

func (s *Server) CreateTenant(c *gin.Context) {
	var req tenantdomain.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenant, err := s.tenantSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tenant)
}

func (s *Server) GetTenant(c *gin.Context) {
	tenantID, err := s.requireTenantAccess(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tenant, err := s.tenantSvc.GetByID(c.Request.Context(), tenantID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

type setTenantChannelRequest struct {
	ReleaseChannel string `json:"release_channel"`
}

func (s *Server) SetTenantChannel(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req setTenantChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenant, err := s.tenantSvc.SetReleaseChannel(c.Request.Context(), tenantdomain.SetReleaseChannelRequest{
		TenantID: c.Param("id"),
		Channel:  strings.TrimSpace(req.ReleaseChannel),
		ActorID:  principal.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

func (s *Server) ListTenantMembers(c *gin.Context) {
	tenantID, err := s.requireTenantAccess(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	members, err := s.tenantSvc.ListMembers(c.Request.Context(), tenantID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": members})
}

func (s *Server) AddTenantMember(c *gin.Context) {
	var req tenantdomain.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.TenantID = c.Param("id")

	member, err := s.tenantSvc.AddMember(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, member)
}

// GetTenantCapabilities resolves every cataloged flag for the tenant, the
// payload tenant-side clients bootstrap from.
func (s *Server) GetTenantCapabilities(c *gin.Context) {
	tenantID, err := s.requireTenantAccess(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	capabilities, err := s.rolloutSvc.ResolveAll(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenant_id":    tenantID.String(),
		"capabilities": capabilities,
	})
}

// requireTenantAccess parses the :id path param and checks the caller may
// touch that tenant: platform admins always, everyone else via an active
// membership.
func (s *Server) requireTenantAccess(c *gin.Context) (snowflake.ID, error) {
	principal, ok := principalFromContext(c)
	if !ok {
		return 0, ErrUnauthorized
	}

	tenantID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || tenantID == 0 {
		return 0, tenantdomain.ErrTenantNotFound
	}

	if err := s.authzSvc.RequireTenantAccess(c.Request.Context(), principal, tenantID); err != nil {
		return 0, err
	}
	return tenantID, nil
}
