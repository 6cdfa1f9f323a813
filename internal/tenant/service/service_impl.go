package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/haulboard/gatehouse/internal/audit/domain"
	"github.com/haulboard/gatehouse/internal/observability/metrics"
	"github.com/haulboard/gatehouse/internal/platformmetrics"
	"github.com/haulboard/gatehouse/internal/tenant/domain"
	"github.com/haulboard/gatehouse/internal/tenant/event"
	"github.com/haulboard/gatehouse/pkg/db"
	"github.com/haulboard/gatehouse/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Audit     auditdomain.Service
	Publisher event.EventPublisher
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	audit     auditdomain.Service
	publisher event.EventPublisher
}

func NewService(p Params) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("tenant.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		audit:     p.Audit,
		publisher: p.Publisher,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateTenantRequest) (*domain.TenantResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	channel := domain.ChannelGeneral
	if raw := strings.TrimSpace(req.ReleaseChannel); raw != "" {
		channel = domain.ReleaseChannel(strings.ToLower(raw))
		if !channel.Valid() {
			return nil, domain.ErrInvalidReleaseChannel
		}
	}

	var ownerID snowflake.ID
	if raw := strings.TrimSpace(req.OwnerUserID); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			return nil, domain.ErrInvalidUser
		}
		ownerID = parsed
	}

	now := time.Now().UTC()
	tenant := domain.Tenant{
		ID:             s.genID.Generate(),
		Name:           name,
		Slug:           slug.Make(name),
		ReleaseChannel: channel,
		Status:         domain.TenantStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, tenant); err != nil {
			return err
		}
		if ownerID != 0 {
			member := domain.Membership{
				ID:        s.genID.Generate(),
				TenantID:  tenant.ID,
				UserID:    ownerID,
				Role:      domain.RoleAdmin,
				Status:    domain.MembershipStatusActive,
				CreatedAt: now,
			}
			if err := repo.AddMember(ctx, member); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}

	s.emitTenantEvent(ctx, event.TenantCreatedTopic, map[string]string{
		"tenant_id":       tenant.ID.String(),
		"release_channel": string(channel),
		"created_at":      now.Format(time.RFC3339),
	})

	resp := toResponse(&tenant)
	return &resp, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*domain.TenantResponse, error) {
	tenantID, err := parseTenantID(id)
	if err != nil {
		return nil, err
	}

	tenant, err := s.repo.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrTenantNotFound
	}

	resp := toResponse(tenant)
	return &resp, nil
}

func (s *service) List(ctx context.Context, req domain.ListTenantsRequest) (domain.ListTenantsResponse, error) {
	filter := domain.ListFilter{
		Query: strings.TrimSpace(req.Query),
	}
	if raw := strings.TrimSpace(req.ReleaseChannel); raw != "" {
		channel := domain.ReleaseChannel(strings.ToLower(raw))
		if !channel.Valid() {
			return domain.ListTenantsResponse{}, domain.ErrInvalidReleaseChannel
		}
		filter.ReleaseChannel = channel
	}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		filter.Status = domain.TenantStatus(strings.ToLower(raw))
	}

	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListTenantsResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListTenantsResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return domain.ListTenantsResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = &domain.TenantCursor{
			ID:        id,
			CreatedAt: createdAt,
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > 250 {
		pageSize = 250
	}
	filter.Limit = pageSize

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.ListTenantsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.Tenant) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	tenants := make([]domain.TenantResponse, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		tenants = append(tenants, toResponse(item))
	}

	resp := domain.ListTenantsResponse{Tenants: tenants}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *service) SetReleaseChannel(ctx context.Context, req domain.SetReleaseChannelRequest) (*domain.TenantResponse, error) {
	resp, err := s.setReleaseChannel(ctx, req)
	metrics.Access().IncRolloutMutation(auditdomain.ActionTenantChannelChange, err)
	if err == nil {
		platformmetrics.RecordRolloutMutation(auditdomain.ActionTenantChannelChange)
	}
	return resp, err
}

func (s *service) setReleaseChannel(ctx context.Context, req domain.SetReleaseChannelRequest) (*domain.TenantResponse, error) {
	tenantID, err := parseTenantID(req.TenantID)
	if err != nil {
		return nil, err
	}

	channel := domain.ReleaseChannel(strings.ToLower(strings.TrimSpace(req.Channel)))
	if !channel.Valid() {
		return nil, domain.ErrInvalidReleaseChannel
	}

	tenant, err := s.repo.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrTenantNotFound
	}
	oldChannel := tenant.ReleaseChannel

	now := time.Now().UTC()
	if err := s.repo.UpdateReleaseChannel(ctx, tenantID, channel, now); err != nil {
		return nil, err
	}
	tenant.ReleaseChannel = channel
	tenant.UpdatedAt = now

	// Best-effort: the audit service logs its own failures.
	_ = s.audit.Append(ctx, auditdomain.Record{
		Action:    auditdomain.ActionTenantChannelChange,
		ChangedBy: req.ActorID,
		TenantID:  &tenantID,
		OldValue:  map[string]any{"release_channel": string(oldChannel)},
		NewValue:  map[string]any{"release_channel": string(channel)},
	})

	s.emitTenantEvent(ctx, event.TenantChannelChangedTopic, map[string]string{
		"tenant_id":       tenantID.String(),
		"release_channel": string(channel),
	})

	resp := toResponse(tenant)
	return &resp, nil
}

func (s *service) AddMember(ctx context.Context, req domain.AddMemberRequest) (*domain.MemberResponse, error) {
	tenantID, err := parseTenantID(req.TenantID)
	if err != nil {
		return nil, err
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if !domain.AppRoleValid(role) {
		return nil, domain.ErrInvalidRole
	}

	tenant, err := s.repo.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrTenantNotFound
	}

	member := domain.Membership{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		UserID:    userID,
		Role:      role,
		Status:    domain.MembershipStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrMemberExists
		}
		return nil, err
	}

	resp := toMemberResponse(member)
	return &resp, nil
}

func (s *service) ListMembers(ctx context.Context, tenantID string) ([]domain.MemberResponse, error) {
	id, err := parseTenantID(tenantID)
	if err != nil {
		return nil, err
	}

	tenant, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrTenantNotFound
	}

	members, err := s.repo.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.MemberResponse, 0, len(members))
	for _, member := range members {
		resp = append(resp, toMemberResponse(member))
	}
	return resp, nil
}

func (s *service) emitTenantEvent(ctx context.Context, topic string, payload map[string]string) {
	if s.publisher == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal tenant event payload", zap.String("topic", topic), zap.Error(err))
		return
	}

	if err := s.publisher.Publish(ctx, topic, data); err != nil {
		s.log.Warn("failed to publish tenant event", zap.String("topic", topic), zap.Error(err))
	}
}

func parseTenantID(raw string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, domain.ErrInvalidTenant
	}
	id, err := snowflake.ParseString(trimmed)
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidTenant
	}
	return id, nil
}

func toResponse(tenant *domain.Tenant) domain.TenantResponse {
	return domain.TenantResponse{
		ID:             tenant.ID.String(),
		Name:           tenant.Name,
		Slug:           tenant.Slug,
		ReleaseChannel: string(tenant.ReleaseChannel),
		Status:         string(tenant.Status),
		CreatedAt:      tenant.CreatedAt,
	}
}

func toMemberResponse(member domain.Membership) domain.MemberResponse {
	return domain.MemberResponse{
		ID:        member.ID.String(),
		TenantID:  member.TenantID.String(),
		UserID:    member.UserID.String(),
		Role:      member.Role,
		Status:    string(member.Status),
		CreatedAt: member.CreatedAt,
	}
}
