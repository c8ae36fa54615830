package permission

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a referenced user, role or permission is missing.
var ErrNotFound = errors.New("permission: not found")

// Store is the record access the resolver needs. *store.Store implements it.
type Store interface {
	UserHasPermission(ctx context.Context, userID, resource, action string) (bool, error)
	AssignPermissionToRole(ctx context.Context, roleID, permissionID string) error
	RemovePermissionFromRole(ctx context.Context, roleID, permissionID string) error
	AssignRoleToUser(ctx context.Context, userID, roleID string) error
	RemoveRoleFromUser(ctx context.Context, userID, roleID string) error
	RoleUserIDs(ctx context.Context, roleID string) ([]string, error)
}

// Resolver answers authorization queries and applies role mutations.
type Resolver struct {
	store  Store
	cache  Cache
	logger *zap.Logger
}

// NewResolver returns a Resolver. A nil cache disables caching and a nil
// logger discards output.
func NewResolver(st Store, cache Cache, logger *zap.Logger) *Resolver {
	if cache == nil {
		cache = NopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: st, cache: cache, logger: logger}
}

// UserHasPermission reports whether userID holds action on resource, either
// exactly or through the manage wildcard.
func (r *Resolver) UserHasPermission(ctx context.Context, userID, resource, action string) (bool, error) {
	key := K(resource, action)
	if err := key.Validate(); err != nil {
		return false, err
	}

	entry, err := r.cache.Get(ctx, userID, key)
	if err != nil {
		r.logger.Warn("permission: cache read failed",
			zap.String("user_id", userID),
			zap.String("permission", key.String()),
			zap.Error(err),
		)
	} else if entry.Hit {
		return entry.Allowed, nil
	}

	allowed, err := r.store.UserHasPermission(ctx, userID, resource, action)
	if err != nil {
		return false, err
	}

	if entry.Stamp != "" {
		if err := r.cache.Set(ctx, entry, allowed); err != nil {
			r.logger.Warn("permission: cache write failed",
				zap.String("user_id", userID),
				zap.String("permission", key.String()),
				zap.Error(err),
			)
		}
	}
	return allowed, nil
}

// UserHasAll reports whether userID holds every key. An empty list is true.
func (r *Resolver) UserHasAll(ctx context.Context, userID string, keys ...Key) (bool, error) {
	for _, k := range keys {
		ok, err := r.UserHasPermission(ctx, userID, k.Resource, k.Action)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// UserHasAny reports whether userID holds at least one key. An empty list is false.
func (r *Resolver) UserHasAny(ctx context.Context, userID string, keys ...Key) (bool, error) {
	for _, k := range keys {
		ok, err := r.UserHasPermission(ctx, userID, k.Resource, k.Action)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// AssignPermissionToRole grants permissionID to roleID. Repeating it is a no-op.
func (r *Resolver) AssignPermissionToRole(ctx context.Context, roleID, permissionID string) error {
	if err := r.store.AssignPermissionToRole(ctx, roleID, permissionID); err != nil {
		return mapStoreErr(err)
	}
	r.invalidateRole(ctx, roleID)
	return nil
}

// RemovePermissionFromRole withdraws permissionID from roleID. Repeating it is a no-op.
func (r *Resolver) RemovePermissionFromRole(ctx context.Context, roleID, permissionID string) error {
	if err := r.store.RemovePermissionFromRole(ctx, roleID, permissionID); err != nil {
		return mapStoreErr(err)
	}
	r.invalidateRole(ctx, roleID)
	return nil
}

// AssignRoleToUser adds roleID to userID. Repeating it is a no-op.
func (r *Resolver) AssignRoleToUser(ctx context.Context, userID, roleID string) error {
	if err := r.store.AssignRoleToUser(ctx, userID, roleID); err != nil {
		return mapStoreErr(err)
	}
	r.invalidateUsers(ctx, userID)
	return nil
}

// RemoveRoleFromUser removes roleID from userID. Repeating it is a no-op.
func (r *Resolver) RemoveRoleFromUser(ctx context.Context, userID, roleID string) error {
	if err := r.store.RemoveRoleFromUser(ctx, userID, roleID); err != nil {
		return mapStoreErr(err)
	}
	r.invalidateUsers(ctx, userID)
	return nil
}

// InvalidateUser drops cached decisions for userID, for example after the
// account is deactivated.
func (r *Resolver) InvalidateUser(ctx context.Context, userID string) {
	r.invalidateUsers(ctx, userID)
}

func (r *Resolver) invalidateRole(ctx context.Context, roleID string) {
	ids, err := r.store.RoleUserIDs(ctx, roleID)
	if err != nil {
		r.logger.Warn("permission: role members lookup failed, invalidating all",
			zap.String("role_id", roleID),
			zap.Error(err),
		)
		if err := r.cache.InvalidateAll(ctx); err != nil {
			r.logger.Error("permission: cache invalidation failed",
				zap.String("role_id", roleID),
				zap.Error(err),
			)
		}
		return
	}
	r.invalidateUsers(ctx, ids...)
}

func (r *Resolver) invalidateUsers(ctx context.Context, userIDs ...string) {
	if err := r.cache.InvalidateUsers(ctx, userIDs...); err != nil {
		r.logger.Error("permission: cache invalidation failed",
			zap.Strings("user_ids", userIDs),
			zap.Error(err),
		)
	}
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
