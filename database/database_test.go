package database

import (
	"testing"

	"realty-messenger/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory_UniqueConversationTriple(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)

	first := model.Conversation{PropertyID: 1, BuyerID: 2, AgentID: 3}
	require.NoError(t, db.Create(&first).Error)

	dup := model.Conversation{PropertyID: 1, BuyerID: 2, AgentID: 3}
	assert.Error(t, db.Create(&dup).Error)

	other := model.Conversation{PropertyID: 1, BuyerID: 4, AgentID: 3}
	assert.NoError(t, db.Create(&other).Error)
}

func TestCasbin_DefaultPolicies(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)

	e, err := Casbin(db)
	require.NoError(t, err)

	cases := []struct {
		role, path, method string
		allowed            bool
	}{
		{RoleBuyer, "/v1/conversations", "POST", true},
		{RoleAgent, "/v1/conversations/4/messages", "GET", true},
		{RoleAdmin, "/v1/conversations/4/messages/9", "DELETE", true},
		{RoleBuyer, "/v1/messages/unread-count", "GET", true},
		{RoleBuyer, "/v1/messages/unread-count", "POST", false},
		{"suspended", "/v1/conversations", "GET", false},
		{RoleAgent, "/v1/admin/users", "GET", false},
	}

	for _, tc := range cases {
		ok, err := e.Enforce(tc.role, tc.path, tc.method)
		require.NoError(t, err)
		assert.Equal(t, tc.allowed, ok, "%s %s %s", tc.role, tc.method, tc.path)
	}

	// seeding twice must not duplicate rules
	require.NoError(t, SeedPolicies(e))
	assert.Len(t, e.GetModel()["p"]["p"].Policy, len(defaultPolicies))
}
