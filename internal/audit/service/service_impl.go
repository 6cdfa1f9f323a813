package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/haulboard/gatehouse/internal/audit/domain"
	"github.com/haulboard/gatehouse/internal/auditcontext"
	"github.com/haulboard/gatehouse/internal/observability/metrics"
	"github.com/haulboard/gatehouse/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Append(ctx context.Context, rec auditdomain.Record) error {
	action := strings.TrimSpace(rec.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	if rec.ChangedBy == 0 {
		return auditdomain.ErrInvalidActor
	}

	metadata := map[string]any{}
	if requestID := auditcontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}
	if sessionID := auditcontext.ImpersonationSessionIDFromContext(ctx); sessionID != "" {
		metadata["impersonation_session_id"] = sessionID
	}

	entry := auditdomain.AuditEntry{
		ID:            s.genID.Generate(),
		FeatureFlagID: rec.FeatureFlagID,
		Action:        action,
		ChangedBy:     rec.ChangedBy,
		TenantID:      rec.TenantID,
		CreatedAt:     time.Now().UTC(),
	}
	if rec.OldValue != nil {
		entry.OldValue = datatypes.JSONMap(rec.OldValue)
	}
	if rec.NewValue != nil {
		entry.NewValue = datatypes.JSONMap(rec.NewValue)
	}
	if len(metadata) > 0 {
		entry.Metadata = datatypes.JSONMap(metadata)
	}
	if ipAddress := auditcontext.IPAddressFromContext(ctx); ipAddress != "" {
		entry.IPAddress = &ipAddress
	}
	if userAgent := auditcontext.UserAgentFromContext(ctx); userAgent != "" {
		entry.UserAgent = &userAgent
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit entry",
			zap.String("action", action),
			zap.String("changed_by", rec.ChangedBy.String()),
			zap.Error(err),
		)
		metrics.Access().IncAuditWriteFailure()
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListEntriesRequest) (auditdomain.ListEntriesResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListEntriesResponse{}, auditdomain.ErrInvalidTimeRange
	}

	filter := auditdomain.ListFilter{
		Action:  req.Action,
		StartAt: req.StartAt,
		EndAt:   req.EndAt,
	}
	if raw := strings.TrimSpace(req.TenantID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return auditdomain.ListEntriesResponse{}, auditdomain.ErrInvalidFilter
		}
		filter.TenantID = &id
	}
	if raw := strings.TrimSpace(req.ChangedBy); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return auditdomain.ListEntriesResponse{}, auditdomain.ErrInvalidFilter
		}
		filter.ChangedBy = &id
	}
	if raw := strings.TrimSpace(req.FeatureFlagID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return auditdomain.ListEntriesResponse{}, auditdomain.ErrInvalidFilter
		}
		filter.FeatureFlagID = &id
	}

	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.ListEntriesResponse{}, auditdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return auditdomain.ListEntriesResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return auditdomain.ListEntriesResponse{}, auditdomain.ErrInvalidPageToken
		}
		filter.Cursor = &auditdomain.EntryCursor{
			ID:        id,
			CreatedAt: createdAt,
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}
	filter.Limit = pageSize

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return auditdomain.ListEntriesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *auditdomain.AuditEntry) string {
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

	entries := make([]auditdomain.AuditEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	resp := auditdomain.ListEntriesResponse{Entries: entries}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}
