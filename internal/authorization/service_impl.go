package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) CanAccessTenant(ctx context.Context, principal Principal, tenantID snowflake.ID) (bool, error) {
	if principal.UserID == 0 {
		return false, ErrInvalidPrincipal
	}
	if tenantID == 0 {
		return false, ErrInvalidTenant
	}
	if principal.IsPlatformAdmin {
		return true, nil
	}

	status, err := s.membershipStatus(ctx, tenantID, principal.UserID)
	if err != nil {
		return false, err
	}
	return status == string(tenantdomain.MembershipStatusActive), nil
}

func (s *ServiceImpl) HasPermission(ctx context.Context, principal Principal, permission string) (bool, error) {
	if principal.UserID == 0 {
		return false, ErrInvalidPrincipal
	}
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return false, ErrInvalidPermission
	}

	roles, err := s.activeRoles(ctx, principal.UserID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if role == tenantdomain.RoleAdmin {
			return true, nil
		}
	}

	subject := userSubject(principal.UserID)
	if err := s.syncRoleLinks(subject, roles); err != nil {
		return false, err
	}
	return s.enforcer.Enforce(subject, permission)
}

func (s *ServiceImpl) RequireTenantAccess(ctx context.Context, principal Principal, tenantID snowflake.ID) error {
	ok, err := s.CanAccessTenant(ctx, principal, tenantID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) RequirePermission(ctx context.Context, principal Principal, permission string) error {
	ok, err := s.HasPermission(ctx, principal, permission)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) RequirePlatformAdmin(ctx context.Context, principal Principal) (Principal, error) {
	if principal.UserID == 0 {
		return Principal{}, ErrInvalidPrincipal
	}
	if !principal.IsPlatformAdmin {
		return Principal{}, ErrPlatformAdminRequired
	}
	return principal, nil
}

func (s *ServiceImpl) GrantRole(ctx context.Context, userID snowflake.ID, role string) error {
	if userID == 0 {
		return ErrInvalidPrincipal
	}
	roleName, err := customRoleName(role)
	if err != nil {
		return err
	}
	_, err = s.enforcer.AddGroupingPolicy(userSubject(userID), roleName)
	return err
}

func (s *ServiceImpl) RevokeRole(ctx context.Context, userID snowflake.ID, role string) error {
	if userID == 0 {
		return ErrInvalidPrincipal
	}
	roleName, err := customRoleName(role)
	if err != nil {
		return err
	}
	_, err = s.enforcer.RemoveGroupingPolicy(userSubject(userID), roleName)
	return err
}

func (s *ServiceImpl) GrantPermission(ctx context.Context, role string, permission string) error {
	roleName, err := customRoleName(role)
	if err != nil {
		return err
	}
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return ErrInvalidPermission
	}
	_, err = s.enforcer.AddPolicy(roleName, permission)
	return err
}

func (s *ServiceImpl) RevokePermission(ctx context.Context, role string, permission string) error {
	roleName, err := customRoleName(role)
	if err != nil {
		return err
	}
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return ErrInvalidPermission
	}
	_, err = s.enforcer.RemovePolicy(roleName, permission)
	return err
}

// membershipStatus reads the membership row fresh on every call. Returns an
// empty string when no membership exists.
func (s *ServiceImpl) membershipStatus(ctx context.Context, tenantID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Status string `gorm:"column:status"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT status
		 FROM tenant_members
		 WHERE tenant_id = ? AND user_id = ?
		 LIMIT 1`,
		tenantID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}
	return strings.TrimSpace(row.Status), nil
}

func (s *ServiceImpl) activeRoles(ctx context.Context, userID snowflake.ID) ([]string, error) {
	var rows []struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT role
		 FROM tenant_members
		 WHERE user_id = ? AND status = ?`,
		userID,
		string(tenantdomain.MembershipStatusActive),
	).Scan(&rows).Error; err != nil {
		return nil, err
	}

	roles := make([]string, 0, len(rows))
	for _, row := range rows {
		role := strings.ToLower(strings.TrimSpace(row.Role))
		if role == "" {
			continue
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// syncRoleLinks mirrors the user's current membership roles into the policy
// store. Only builtin role links are synced; custom-role links granted
// through GrantRole are left alone.
func (s *ServiceImpl) syncRoleLinks(subject string, roles []string) error {
	want := make(map[string]bool, len(roles))
	for _, role := range roles {
		want[fmt.Sprintf("role:%s", role)] = true
	}

	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		roleName := rule[1]
		if !isBuiltinRole(roleName) || want[roleName] {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	for roleName := range want {
		if !isBuiltinRole(roleName) {
			continue
		}
		has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := s.enforcer.AddGroupingPolicy(subject, roleName); err != nil {
			return err
		}
	}
	return nil
}

func userSubject(userID snowflake.ID) string {
	return fmt.Sprintf("user:%s", userID.String())
}

func customRoleName(role string) (string, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return "", ErrInvalidRole
	}
	roleName := fmt.Sprintf("role:%s", role)
	if isBuiltinRole(roleName) {
		return "", ErrInvalidRole
	}
	return roleName, nil
}

func isBuiltinRole(roleName string) bool {
	switch roleName {
	case "role:admin", "role:dispatcher", "role:driver", "role:viewer":
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", PermTenantView},
		{"role:admin", PermTenantManageMembers},
		{"role:admin", PermDispatchView},
		{"role:admin", PermDispatchAssign},
		{"role:admin", PermFleetView},
		{"role:admin", PermFleetManage},
		{"role:admin", PermRolloutView},
		{"role:admin", PermAuditLogView},

		{"role:dispatcher", PermTenantView},
		{"role:dispatcher", PermDispatchView},
		{"role:dispatcher", PermDispatchAssign},
		{"role:dispatcher", PermFleetView},

		{"role:driver", PermDispatchView},

		{"role:viewer", PermTenantView},
		{"role:viewer", PermDispatchView},
		{"role:viewer", PermFleetView},
	}

	for _, policy := range policies {
		if len(policy) < 2 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
