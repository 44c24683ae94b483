package security

import (
	"context"
	"log/slog"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/observability/requestid"
)

// AuthorizationService decides whether a user may act on a tenant.
// A tenant is only reachable by the user it is linked to.
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{logger: logger}
}

// ValidateTenantAccess returns domain.ErrForbidden unless userID owns the tenant.
// Unlinked tenants are owned by nobody.
func (as *AuthorizationService) ValidateTenantAccess(ctx context.Context, userID string, tenant *domain.Tenant) error {
	if userID != "" && tenant.UserID == userID {
		return nil
	}
	as.logger.Warn("tenant access denied",
		slog.String("user_id", userID),
		slog.String("tenant_id", tenant.ID),
		slog.String("owner_id", tenant.UserID),
		slog.String("request_id", requestid.FromContext(ctx)),
	)
	return domain.Errorf(domain.ErrForbidden, "you do not have access to this store")
}

// CanLink reports whether userID may claim the tenant: it is unlinked or
// already theirs.
func (as *AuthorizationService) CanLink(userID string, tenant *domain.Tenant) bool {
	return tenant.UserID == "" || tenant.UserID == userID
}
