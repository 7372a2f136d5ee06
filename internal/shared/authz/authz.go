package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Role is the closed set of permission levels recognized by billing-core
// components. Zero value means unauthorized.
type Role uint8

const (
	RoleNone Role = iota
	RoleLedgerWriter
	RoleCustomerService
	RoleDeveloper
	RoleOracle
	RoleOwner
)

var (
	ErrUnauthorized     = errors.New("principal is not authorized for this operation")
	ErrInvalidPrincipal = errors.New("invalid principal")
	ErrInvalidRole      = errors.New("invalid role")
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleLedgerWriter:
		return "ledger-writer"
	case RoleCustomerService:
		return "customer-service"
	case RoleDeveloper:
		return "developer"
	case RoleOracle:
		return "oracle"
	case RoleOwner:
		return "owner"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func ParseRole(value string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "none", "":
		return RoleNone, nil
	case "ledger-writer":
		return RoleLedgerWriter, nil
	case "customer-service":
		return RoleCustomerService, nil
	case "developer":
		return RoleDeveloper, nil
	case "oracle":
		return RoleOracle, nil
	case "owner":
		return RoleOwner, nil
	default:
		return RoleNone, ErrInvalidRole
	}
}

// LevelStore persists principal -> role assignments for one registry instance.
type LevelStore interface {
	GetLevel(ctx context.Context, principal string) (Role, bool, error)
	SetLevel(ctx context.Context, principal string, role Role) error
}

// Registry gates mutating entry points of a single component. The owner is
// fixed at construction and always holds RoleOwner; roles never get deleted,
// revocation is re-authorizing to RoleNone.
type Registry struct {
	owner     string
	levels    LevelStore
	component string
	logger    *slog.Logger
}

func NewRegistry(owner string, levels LevelStore, component string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		owner:     strings.TrimSpace(owner),
		levels:    levels,
		component: component,
		logger:    logger,
	}
}

func (r *Registry) Owner() string {
	return r.owner
}

// Authorized returns the principal's current role, RoleNone when absent.
func (r *Registry) Authorized(ctx context.Context, principal string) (Role, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return RoleNone, ErrInvalidPrincipal
	}
	if principal == r.owner {
		return RoleOwner, nil
	}
	role, found, err := r.levels.GetLevel(ctx, principal)
	if err != nil {
		return RoleNone, err
	}
	if !found {
		return RoleNone, nil
	}
	return role, nil
}

// Authorize sets principal's role. Only the owner may call it. Re-setting the
// same role is a no-op.
func (r *Registry) Authorize(ctx context.Context, actor string, principal string, role Role) error {
	if err := r.Require(ctx, actor, RoleOwner); err != nil {
		return err
	}
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return ErrInvalidPrincipal
	}
	if role > RoleOwner {
		return ErrInvalidRole
	}
	if err := r.levels.SetLevel(ctx, principal, role); err != nil {
		return err
	}
	r.logger.Info("principal authorized",
		"event", "authz_principal_authorized",
		"module", "internal/shared/authz",
		"layer", "domain",
		"component", r.component,
		"principal", principal,
		"role", role.String(),
	)
	return nil
}

// Require is the uniform authorization check. The owner role is a superset of
// every other role; any other role must match the required one exactly.
func (r *Registry) Require(ctx context.Context, principal string, required Role) error {
	role, err := r.Authorized(ctx, principal)
	if err != nil {
		return err
	}
	if role == RoleOwner || required == RoleNone {
		return nil
	}
	if role != required {
		return ErrUnauthorized
	}
	return nil
}
