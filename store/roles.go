package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ManageAction is the wildcard action granting every action on a resource.
const ManageAction = "manage"

// EnsureRole returns the role called name, creating it when missing.
func (s *Store) EnsureRole(ctx context.Context, name string) (*Role, error) {
	role := Role{Name: name}
	err := s.db.WithContext(ctx).Where(Role{Name: name}).FirstOrCreate(&role).Error
	if err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

// FindRoleByName returns the role called name.
func (s *Store) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

// EnsurePermission returns the (resource, action) permission, creating it when missing.
func (s *Store) EnsurePermission(ctx context.Context, resource, action string) (*Permission, error) {
	perm := Permission{Resource: resource, Action: action}
	err := s.db.WithContext(ctx).
		Where(Permission{Resource: resource, Action: action}).
		FirstOrCreate(&perm).Error
	if err != nil {
		return nil, translate(err)
	}
	return &perm, nil
}

// FindPermission returns the (resource, action) permission.
func (s *Store) FindPermission(ctx context.Context, resource, action string) (*Permission, error) {
	var perm Permission
	err := s.db.WithContext(ctx).
		Where("resource = ? AND action = ?", resource, action).
		First(&perm).Error
	if err != nil {
		return nil, translate(err)
	}
	return &perm, nil
}

// AssignPermissionToRole links a role to a permission. Assigning an existing
// link is a no-op. A missing role or permission yields ErrNotFound.
func (s *Store) AssignPermissionToRole(ctx context.Context, roleID, permissionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &Role{}, roleID); err != nil {
			return err
		}
		if err := exists(tx, &Permission{}, permissionID); err != nil {
			return err
		}
		link := RolePermission{RoleID: roleID, PermissionID: permissionID}
		return translate(tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error)
	})
}

// RemovePermissionFromRole deletes the link if present.
func (s *Store) RemovePermissionFromRole(ctx context.Context, roleID, permissionID string) error {
	err := s.db.WithContext(ctx).
		Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		Delete(&RolePermission{}).Error
	return translate(err)
}

// AssignRoleToUser links a user to a role. Assigning an existing link is a
// no-op. A missing user or role yields ErrNotFound.
func (s *Store) AssignRoleToUser(ctx context.Context, userID, roleID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &User{}, userID); err != nil {
			return err
		}
		if err := exists(tx, &Role{}, roleID); err != nil {
			return err
		}
		link := UserRole{UserID: userID, RoleID: roleID}
		return translate(tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error)
	})
}

// RemoveRoleFromUser deletes the link if present.
func (s *Store) RemoveRoleFromUser(ctx context.Context, userID, roleID string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&UserRole{}).Error
	return translate(err)
}

// RoleUserIDs lists the users currently holding roleID.
func (s *Store) RoleUserIDs(ctx context.Context, roleID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&UserRole{}).
		Where("role_id = ?", roleID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, translate(err)
	}
	return ids, nil
}

// UserRoleNames lists the names of the roles held by userID, sorted.
func (s *Store) UserRoleNames(ctx context.Context, userID string) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&Role{}).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name").
		Pluck("roles.name", &names).Error
	if err != nil {
		return nil, translate(err)
	}
	return names, nil
}

// UserHasPermission walks User→UserRole→Role→RolePermission→Permission and
// reports whether any held permission on resource matches action exactly or
// is the manage wildcard.
func (s *Store) UserHasPermission(ctx context.Context, userID, resource, action string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Table("user_roles").
		Joins("JOIN role_permissions ON role_permissions.role_id = user_roles.role_id").
		Joins("JOIN permissions ON permissions.id = role_permissions.permission_id").
		Where("user_roles.user_id = ? AND permissions.resource = ?", userID, resource).
		Where("(permissions.action = ? OR permissions.action = ?)", action, ManageAction).
		Count(&count).Error
	if err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

func exists(tx *gorm.DB, model any, id string) error {
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return translate(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

