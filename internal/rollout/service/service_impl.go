package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/haulboard/gatehouse/internal/audit/domain"
	"github.com/haulboard/gatehouse/internal/observability/metrics"
	"github.com/haulboard/gatehouse/internal/platformmetrics"
	"github.com/haulboard/gatehouse/internal/rollout/domain"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	"github.com/haulboard/gatehouse/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Tenants tenantdomain.Repository
	Audit   auditdomain.Service
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	tenants tenantdomain.Repository
	audit   auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("rollout.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		tenants: p.Tenants,
		audit:   p.Audit,
	}
}

// Resolve walks the precedence chain for one flag: tenant override, then the
// default for the tenant's release channel, then false. Absence at every
// layer is a denial.
func (s *service) Resolve(ctx context.Context, tenantID snowflake.ID, flagKey string) (bool, error) {
	if tenantID == 0 {
		return false, tenantdomain.ErrInvalidTenant
	}
	key := strings.TrimSpace(flagKey)
	if key == "" {
		return false, domain.ErrInvalidKey
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if tenant == nil {
		return false, tenantdomain.ErrTenantNotFound
	}

	flag, err := s.repo.FindFlagByKey(ctx, s.db, key)
	if err != nil {
		return false, err
	}
	if flag == nil {
		metrics.Access().IncFlagResolution(domain.SourceDefaultClosed)
		return false, nil
	}

	override, err := s.repo.FindTenantOverride(ctx, s.db, tenantID, flag.ID)
	if err != nil {
		return false, err
	}
	if override != nil {
		metrics.Access().IncFlagResolution(domain.SourceTenantOverride)
		return override.Enabled, nil
	}

	def, err := s.repo.FindChannelDefault(ctx, s.db, flag.ID, tenant.ReleaseChannel)
	if err != nil {
		return false, err
	}
	if def != nil {
		metrics.Access().IncFlagResolution(domain.SourceChannelDefault)
		return def.Enabled, nil
	}

	metrics.Access().IncFlagResolution(domain.SourceDefaultClosed)
	return false, nil
}

func (s *service) ResolveAll(ctx context.Context, tenantID snowflake.ID) (map[string]bool, error) {
	if tenantID == 0 {
		return nil, tenantdomain.ErrInvalidTenant
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, tenantdomain.ErrTenantNotFound
	}

	flags, err := s.repo.ListFlags(ctx, s.db, domain.ListFlagsFilter{})
	if err != nil {
		return nil, err
	}

	flagIDs := make([]snowflake.ID, 0, len(flags))
	for _, flag := range flags {
		flagIDs = append(flagIDs, flag.ID)
	}

	defaults, err := s.repo.ListChannelDefaults(ctx, s.db, flagIDs)
	if err != nil {
		return nil, err
	}
	defaultsByFlag := make(map[snowflake.ID]bool, len(defaults))
	for _, def := range defaults {
		if def.Channel == tenant.ReleaseChannel {
			defaultsByFlag[def.FeatureFlagID] = def.Enabled
		}
	}

	overrides, err := s.repo.ListTenantOverrides(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	overridesByFlag := make(map[snowflake.ID]bool, len(overrides))
	for _, override := range overrides {
		overridesByFlag[override.FeatureFlagID] = override.Enabled
	}

	resolved := make(map[string]bool, len(flags))
	for _, flag := range flags {
		if enabled, ok := overridesByFlag[flag.ID]; ok {
			resolved[flag.Key] = enabled
			continue
		}
		if enabled, ok := defaultsByFlag[flag.ID]; ok {
			resolved[flag.Key] = enabled
			continue
		}
		resolved[flag.Key] = false
	}
	return resolved, nil
}

func (s *service) CreateFlag(ctx context.Context, req domain.CreateFlagRequest) (*domain.FlagResponse, error) {
	key := strings.TrimSpace(req.Key)
	if key == "" {
		return nil, domain.ErrInvalidKey
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	flag := domain.FeatureFlag{
		ID:          s.genID.Generate(),
		Key:         key,
		Name:        name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateFlag(ctx, s.db, &flag); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrFlagExists
		}
		return nil, err
	}

	resp := toFlagResponse(flag, nil)
	return &resp, nil
}

func (s *service) ListFlags(ctx context.Context, req domain.ListFlagsRequest) ([]domain.FlagResponse, error) {
	flags, err := s.repo.ListFlags(ctx, s.db, domain.ListFlagsFilter{
		Query:   strings.TrimSpace(req.Query),
		SortBy:  strings.TrimSpace(req.SortBy),
		OrderBy: strings.TrimSpace(req.OrderBy),
	})
	if err != nil {
		return nil, err
	}

	flagIDs := make([]snowflake.ID, 0, len(flags))
	for _, flag := range flags {
		flagIDs = append(flagIDs, flag.ID)
	}
	defaults, err := s.repo.ListChannelDefaults(ctx, s.db, flagIDs)
	if err != nil {
		return nil, err
	}
	defaultsByFlag := make(map[snowflake.ID]map[string]bool, len(flags))
	for _, def := range defaults {
		if defaultsByFlag[def.FeatureFlagID] == nil {
			defaultsByFlag[def.FeatureFlagID] = make(map[string]bool, 3)
		}
		defaultsByFlag[def.FeatureFlagID][string(def.Channel)] = def.Enabled
	}

	resp := make([]domain.FlagResponse, 0, len(flags))
	for _, flag := range flags {
		resp = append(resp, toFlagResponse(flag, defaultsByFlag[flag.ID]))
	}
	return resp, nil
}

func (s *service) SetChannelDefault(ctx context.Context, req domain.SetChannelDefaultRequest) (*domain.ChannelDefaultResponse, error) {
	resp, err := s.setChannelDefault(ctx, req)
	metrics.Access().IncRolloutMutation(auditdomain.ActionChannelDefaultChange, err)
	if err == nil {
		platformmetrics.RecordRolloutMutation(auditdomain.ActionChannelDefaultChange)
	}
	return resp, err
}

func (s *service) setChannelDefault(ctx context.Context, req domain.SetChannelDefaultRequest) (*domain.ChannelDefaultResponse, error) {
	flagID, err := parseFlagID(req.FeatureFlagID)
	if err != nil {
		return nil, err
	}
	channel := tenantdomain.ReleaseChannel(strings.ToLower(strings.TrimSpace(req.ReleaseChannel)))
	if !channel.Valid() {
		return nil, tenantdomain.ErrInvalidReleaseChannel
	}

	flag, err := s.repo.FindFlagByID(ctx, s.db, flagID)
	if err != nil {
		return nil, err
	}
	if flag == nil {
		return nil, domain.ErrFlagNotFound
	}

	// Read-before-write so the audit entry carries the prior value.
	prior, err := s.repo.FindChannelDefault(ctx, s.db, flagID, channel)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	def := domain.ReleaseChannelDefault{
		ID:            s.genID.Generate(),
		FeatureFlagID: flagID,
		Channel:       channel,
		Enabled:       req.Enabled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.UpsertChannelDefault(ctx, s.db, &def); err != nil {
		return nil, err
	}

	var oldValue map[string]any
	if prior != nil {
		oldValue = map[string]any{"enabled": prior.Enabled, "channel": string(channel)}
	}
	// Best-effort: the audit service logs its own failures.
	_ = s.audit.Append(ctx, auditdomain.Record{
		Action:        auditdomain.ActionChannelDefaultChange,
		ChangedBy:     req.ActorID,
		FeatureFlagID: &flagID,
		OldValue:      oldValue,
		NewValue:      map[string]any{"enabled": req.Enabled, "channel": string(channel)},
	})

	return &domain.ChannelDefaultResponse{
		FeatureFlagID:  flagID.String(),
		ReleaseChannel: string(channel),
		Enabled:        req.Enabled,
	}, nil
}

func (s *service) SetTenantOverride(ctx context.Context, req domain.SetTenantOverrideRequest) (*domain.TenantOverrideResponse, error) {
	resp, err := s.setTenantOverride(ctx, req)
	metrics.Access().IncRolloutMutation(auditdomain.ActionTenantOverrideChange, err)
	if err == nil {
		platformmetrics.RecordRolloutMutation(auditdomain.ActionTenantOverrideChange)
	}
	return resp, err
}

func (s *service) setTenantOverride(ctx context.Context, req domain.SetTenantOverrideRequest) (*domain.TenantOverrideResponse, error) {
	flagID, err := parseFlagID(req.FeatureFlagID)
	if err != nil {
		return nil, err
	}
	tenantID, err := parseTenantID(req.TenantID)
	if err != nil {
		return nil, err
	}

	flag, err := s.repo.FindFlagByID(ctx, s.db, flagID)
	if err != nil {
		return nil, err
	}
	if flag == nil {
		return nil, domain.ErrFlagNotFound
	}
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, tenantdomain.ErrTenantNotFound
	}

	prior, err := s.repo.FindTenantOverride(ctx, s.db, tenantID, flagID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	override := domain.TenantOverride{
		ID:            s.genID.Generate(),
		TenantID:      tenantID,
		FeatureFlagID: flagID,
		Enabled:       req.Enabled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.UpsertTenantOverride(ctx, s.db, &override); err != nil {
		return nil, err
	}

	var oldValue map[string]any
	if prior != nil {
		oldValue = map[string]any{"enabled": prior.Enabled, "tenant_id": tenantID.String()}
	}
	_ = s.audit.Append(ctx, auditdomain.Record{
		Action:        auditdomain.ActionTenantOverrideChange,
		ChangedBy:     req.ActorID,
		FeatureFlagID: &flagID,
		TenantID:      &tenantID,
		OldValue:      oldValue,
		NewValue:      map[string]any{"enabled": req.Enabled, "tenant_id": tenantID.String()},
	})

	return &domain.TenantOverrideResponse{
		FeatureFlagID: flagID.String(),
		TenantID:      tenantID.String(),
		Enabled:       req.Enabled,
	}, nil
}

func (s *service) RemoveTenantOverride(ctx context.Context, req domain.RemoveTenantOverrideRequest) (*domain.TenantOverrideResponse, error) {
	resp, err := s.removeTenantOverride(ctx, req)
	metrics.Access().IncRolloutMutation(auditdomain.ActionTenantOverrideRemoved, err)
	if err == nil {
		platformmetrics.RecordRolloutMutation(auditdomain.ActionTenantOverrideRemoved)
	}
	return resp, err
}

func (s *service) removeTenantOverride(ctx context.Context, req domain.RemoveTenantOverrideRequest) (*domain.TenantOverrideResponse, error) {
	flagID, err := parseFlagID(req.FeatureFlagID)
	if err != nil {
		return nil, err
	}
	tenantID, err := parseTenantID(req.TenantID)
	if err != nil {
		return nil, err
	}

	prior, err := s.repo.FindTenantOverride(ctx, s.db, tenantID, flagID)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		// No mutation happened, so no audit entry either.
		return nil, domain.ErrOverrideNotFound
	}

	if err := s.repo.DeleteTenantOverride(ctx, s.db, tenantID, flagID); err != nil {
		return nil, err
	}

	_ = s.audit.Append(ctx, auditdomain.Record{
		Action:        auditdomain.ActionTenantOverrideRemoved,
		ChangedBy:     req.ActorID,
		FeatureFlagID: &flagID,
		TenantID:      &tenantID,
		OldValue:      map[string]any{"enabled": prior.Enabled, "tenant_id": tenantID.String()},
		NewValue:      nil,
	})

	return &domain.TenantOverrideResponse{
		FeatureFlagID: flagID.String(),
		TenantID:      tenantID.String(),
		Enabled:       prior.Enabled,
	}, nil
}

func parseFlagID(raw string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, domain.ErrInvalidFlag
	}
	id, err := snowflake.ParseString(trimmed)
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidFlag
	}
	return id, nil
}

func parseTenantID(raw string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, tenantdomain.ErrInvalidTenant
	}
	id, err := snowflake.ParseString(trimmed)
	if err != nil || id == 0 {
		return 0, tenantdomain.ErrInvalidTenant
	}
	return id, nil
}

func toFlagResponse(flag domain.FeatureFlag, defaults map[string]bool) domain.FlagResponse {
	if defaults == nil {
		defaults = map[string]bool{}
	}
	return domain.FlagResponse{
		ID:              flag.ID.String(),
		Key:             flag.Key,
		Name:            flag.Name,
		Description:     flag.Description,
		ChannelDefaults: defaults,
		CreatedAt:       flag.CreatedAt,
	}
}
