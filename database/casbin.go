package database

import (
	"fmt"

	"realty-messenger/config"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

// Role names carried in the access token "role" claim.
const (
	RoleBuyer     = "buyer"
	RoleAgent     = "agent"
	RoleAdmin     = "admin"
	RoleMessenger = "messenger"
)

var defaultPolicies = [][]string{
	{RoleMessenger, "/v1/conversations*", "(GET)|(POST)|(DELETE)"},
	{RoleMessenger, "/v1/messages*", "(GET)"},
}

var defaultGroupings = [][]string{
	{RoleBuyer, RoleMessenger},
	{RoleAgent, RoleMessenger},
	{RoleAdmin, RoleMessenger},
}

// Casbin builds an enforcer whose policies persist through gorm and seeds the
// default messenger policy. The synced enforcer lets LoadPolicy run while
// requests are being enforced.
func Casbin(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize casbin adapter: %w", err)
	}

	m, err := model.NewModelFromString(config.RBACModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}

	e, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if err := SeedPolicies(e); err != nil {
		return nil, err
	}

	return e, nil
}

// SeedPolicies adds the default role policies if missing.
func SeedPolicies(e *casbin.SyncedEnforcer) error {
	for _, p := range defaultPolicies {
		has, err := e.HasPolicy(p[0], p[1], p[2])
		if err != nil {
			return fmt.Errorf("checking policy: %w", err)
		}
		if !has {
			if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
				return fmt.Errorf("adding policy: %w", err)
			}
		}
	}

	for _, g := range defaultGroupings {
		has, err := e.HasGroupingPolicy(g[0], g[1])
		if err != nil {
			return fmt.Errorf("checking grouping policy: %w", err)
		}
		if !has {
			if _, err := e.AddGroupingPolicy(g[0], g[1]); err != nil {
				return fmt.Errorf("adding grouping policy: %w", err)
			}
		}
	}

	return nil
}
