// Package access provides the role-policy access gate used in front of the
// snapshot service.
package access

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gym-snapshot/internal/logging"
	"gym-snapshot/internal/snapshot"

	"gopkg.in/yaml.v3"
)

// Wildcard grants every action to a role.
const Wildcard = "*"

// Built-in roles used when no policy is configured
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Config maps roles to the snapshot actions they may perform
type Config struct {
	DefaultRole string              `mapstructure:"default_role" yaml:"default_role"`
	Roles       map[string][]string `mapstructure:"roles" yaml:"roles"`
}

// DefaultConfig returns a policy where only admins may delete or restore.
func DefaultConfig() Config {
	return Config{
		DefaultRole: RoleViewer,
		Roles: map[string][]string{
			RoleAdmin:    {Wildcard},
			RoleOperator: {"list", "create", "download"},
			RoleViewer:   {"list"},
		},
	}
}

// SetDefaults fills an empty role table with the built-in policy
func (c *Config) SetDefaults() {
	if len(c.Roles) == 0 {
		c.Roles = DefaultConfig().Roles
		if c.DefaultRole == "" {
			c.DefaultRole = RoleViewer
		}
	}
}

// LoadFromEnvironment overrides the default role from GYM_SNAPSHOT_ACCESS_DEFAULT_ROLE
func (c *Config) LoadFromEnvironment() {
	if role := os.Getenv("GYM_SNAPSHOT_ACCESS_DEFAULT_ROLE"); role != "" {
		c.DefaultRole = strings.TrimSpace(role)
	}
}

// Validate reports every unknown action and a default role that is not defined
func (c Config) Validate() error {
	var errs snapshot.ValidationErrors

	if len(c.Roles) == 0 {
		errs.Add("access.roles", "at least one role is required", nil)
	}

	for _, role := range sortedRoles(c.Roles) {
		if strings.TrimSpace(role) == "" {
			errs.Add("access.roles", "role name cannot be empty", role)
			continue
		}
		for _, action := range c.Roles[role] {
			if action == Wildcard {
				continue
			}
			if _, err := ParseAction(action); err != nil {
				errs.Add(fmt.Sprintf("access.roles.%s", role), err.Error(), action)
			}
		}
	}

	if c.DefaultRole != "" {
		if _, ok := c.Roles[c.DefaultRole]; !ok {
			errs.Add("access.default_role", "default role is not defined in roles", c.DefaultRole)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ParseAction converts a configured action name to a snapshot action
func ParseAction(value string) (snapshot.Action, error) {
	normalized := snapshot.Action(strings.ToLower(strings.TrimSpace(value)))
	for _, action := range snapshot.AllActions() {
		if action == normalized {
			return action, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", value)
}

// Policy is an AccessGate backed by a static role table. Unknown roles and
// unknown actions are denied.
type Policy struct {
	defaultRole string
	grants      map[string]map[snapshot.Action]bool
	logger      *logging.Logger
}

// NewPolicy validates the config and builds the grant table
func NewPolicy(config Config, logger *logging.Logger) (*Policy, error) {
	if err := config.Validate(); err != nil {
		return nil, snapshot.NewConfigurationError("invalid access policy", err)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	grants := make(map[string]map[snapshot.Action]bool, len(config.Roles))
	for role, actions := range config.Roles {
		allowed := make(map[snapshot.Action]bool)
		for _, name := range actions {
			if name == Wildcard {
				for _, action := range snapshot.AllActions() {
					allowed[action] = true
				}
				continue
			}
			action, _ := ParseAction(name)
			allowed[action] = true
		}
		grants[role] = allowed
	}

	return &Policy{
		defaultRole: config.DefaultRole,
		grants:      grants,
		logger:      logger,
	}, nil
}

// LoadPolicy reads a YAML policy file with an `access` section
func LoadPolicy(path string, logger *logging.Logger) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, snapshot.NewConfigurationError(fmt.Sprintf("failed to read access policy %s", path), err)
	}

	var file struct {
		Access Config `yaml:"access"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, snapshot.NewConfigurationError(fmt.Sprintf("failed to parse access policy %s", path), err)
	}
	file.Access.SetDefaults()

	return NewPolicy(file.Access, logger)
}

// Authorize implements snapshot.AccessGate
func (p *Policy) Authorize(ctx context.Context, caller snapshot.Caller, action snapshot.Action) (bool, error) {
	if strings.TrimSpace(caller.ID) == "" {
		return false, fmt.Errorf("caller id is required")
	}

	role := p.roleOf(caller)
	allowed := p.grants[role][action]

	p.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"caller":  caller.ID,
		"role":    role,
		"action":  string(action),
		"allowed": allowed,
	}).Debug("Access decision")

	return allowed, nil
}

// Actions lists what a role may do, in gate order
func (p *Policy) Actions(role string) []snapshot.Action {
	var actions []snapshot.Action
	for _, action := range snapshot.AllActions() {
		if p.grants[role][action] {
			actions = append(actions, action)
		}
	}
	return actions
}

// Roles returns the configured role names sorted
func (p *Policy) Roles() []string {
	roles := make([]string, 0, len(p.grants))
	for role := range p.grants {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

func (p *Policy) roleOf(caller snapshot.Caller) string {
	if caller.Role == "" {
		return p.defaultRole
	}
	return caller.Role
}

func sortedRoles(roles map[string][]string) []string {
	names := make([]string, 0, len(roles))
	for name := range roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
