package access

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gym-snapshot/internal/logging"
	"gym-snapshot/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	policy, err := NewPolicy(DefaultConfig(), logging.NewNopLogger())
	require.NoError(t, err)

	tests := []struct {
		role    string
		action  snapshot.Action
		allowed bool
	}{
		{RoleAdmin, snapshot.ActionRestore, true},
		{RoleAdmin, snapshot.ActionDelete, true},
		{RoleOperator, snapshot.ActionCreate, true},
		{RoleOperator, snapshot.ActionDownload, true},
		{RoleOperator, snapshot.ActionRestore, false},
		{RoleOperator, snapshot.ActionDelete, false},
		{RoleViewer, snapshot.ActionList, true},
		{RoleViewer, snapshot.ActionCreate, false},
		{"", snapshot.ActionList, true},
		{"", snapshot.ActionRestore, false},
		{"intruder", snapshot.ActionList, false},
		{RoleAdmin, snapshot.Action("truncate"), false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+string(tt.action), func(t *testing.T) {
			allowed, err := policy.Authorize(context.Background(), snapshot.Caller{ID: "u-1", Role: tt.role}, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func TestPolicyRequiresCallerID(t *testing.T) {
	policy, err := NewPolicy(DefaultConfig(), nil)
	require.NoError(t, err)

	allowed, err := policy.Authorize(context.Background(), snapshot.Caller{Role: RoleAdmin}, snapshot.ActionList)
	assert.Error(t, err)
	assert.False(t, allowed)
}

func TestPolicyActions(t *testing.T) {
	policy, err := NewPolicy(DefaultConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, snapshot.AllActions(), policy.Actions(RoleAdmin))
	assert.Equal(t, []snapshot.Action{snapshot.ActionList, snapshot.ActionCreate, snapshot.ActionDownload}, policy.Actions(RoleOperator))
	assert.Empty(t, policy.Actions("intruder"))
	assert.Equal(t, []string{RoleAdmin, RoleOperator, RoleViewer}, policy.Roles())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		field  string
	}{
		{
			name:   "no roles",
			config: Config{},
			field:  "access.roles",
		},
		{
			name:   "unknown action",
			config: Config{Roles: map[string][]string{"coach": {"list", "truncate"}}},
			field:  "access.roles.coach",
		},
		{
			name:   "undefined default role",
			config: Config{DefaultRole: "guest", Roles: map[string][]string{"coach": {"list"}}},
			field:  "access.default_role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			require.Error(t, err)

			validationErrs, ok := err.(snapshot.ValidationErrors)
			require.True(t, ok, "expected ValidationErrors, got %T", err)
			assert.Equal(t, tt.field, validationErrs[0].Field)
		})
	}

	_, err := NewPolicy(Config{Roles: map[string][]string{"coach": {"nuke"}}}, nil)
	assert.Equal(t, snapshot.ErrorTypeConfiguration, snapshot.ErrorTypeOf(err))
}

func TestParseAction(t *testing.T) {
	action, err := ParseAction(" Restore ")
	require.NoError(t, err)
	assert.Equal(t, snapshot.ActionRestore, action)

	_, err = ParseAction("truncate")
	assert.Error(t, err)
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
access:
  default_role: coach
  roles:
    coach: [list, download]
    owner: ["*"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	policy, err := LoadPolicy(path, nil)
	require.NoError(t, err)

	allowed, err := policy.Authorize(context.Background(), snapshot.Caller{ID: "u-2"}, snapshot.ActionDownload)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = policy.Authorize(context.Background(), snapshot.Caller{ID: "u-2", Role: "coach"}, snapshot.ActionCreate)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = policy.Authorize(context.Background(), snapshot.Caller{ID: "u-3", Role: "owner"}, snapshot.ActionRestore)
	require.NoError(t, err)
	assert.True(t, allowed)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestPolicyGatesService(t *testing.T) {
	policy, err := NewPolicy(DefaultConfig(), nil)
	require.NoError(t, err)

	var gate snapshot.AccessGate = policy
	allowed, err := gate.Authorize(context.Background(), snapshot.Caller{ID: "u-1", Role: RoleViewer}, snapshot.ActionDelete)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GYM_SNAPSHOT_ACCESS_DEFAULT_ROLE", " operator ")

	config := DefaultConfig()
	config.LoadFromEnvironment()
	assert.Equal(t, RoleOperator, config.DefaultRole)
	assert.NoError(t, config.Validate())
}
