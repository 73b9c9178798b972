package rbac

import (
	"CampaignClinic/apperrors"
	"CampaignClinic/models"

	casbin "github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const gateModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

// DenialRecorder is notified of every refused check.
type DenialRecorder interface {
	AuthorizationDenied(capability string)
}

// Gate answers whether a user's current role holds a capability.
type Gate struct {
	enforcer *casbin.Enforcer
	policy   Policy
	logger   zerolog.Logger
	denials  DenialRecorder
}

// NewGate loads policy into an in-memory casbin enforcer.
func NewGate(policy Policy, logger zerolog.Logger, denials DenialRecorder) (*Gate, error) {
	m, err := model.NewModelFromString(gateModel)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse access model")
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create enforcer")
	}
	for _, c := range policy.Capabilities() {
		for _, role := range policy.RolesFor(c) {
			if _, err := e.AddPolicy(string(role), string(c)); err != nil {
				return nil, errors.Wrapf(err, "failed to add policy %s/%s", role, c)
			}
		}
	}
	return &Gate{enforcer: e, policy: policy, logger: logger, denials: denials}, nil
}

// Allowed reports whether role holds c.
func (g *Gate) Allowed(role models.Role, c Capability) bool {
	if role == "" {
		return false
	}
	ok, err := g.enforcer.Enforce(string(role), string(c))
	if err != nil {
		g.logger.Error().Err(err).Str("role", string(role)).Str("capability", string(c)).Msg("access check failed")
		return false
	}
	return ok
}

// Require refuses with an authorization error naming the allowed roles when
// the actor's current role lacks c. Inactive accounts are always refused.
func (g *Gate) Require(actor *models.User, c Capability) error {
	if actor != nil && actor.IsActive && g.Allowed(actor.Role, c) {
		g.logger.Debug().Int64("actor_id", actor.ID).Str("capability", string(c)).Msg("access granted")
		return nil
	}

	ev := g.logger.Warn().Str("capability", string(c))
	if actor != nil {
		ev = ev.Int64("actor_id", actor.ID).Str("role", string(actor.Role))
	}
	ev.Msg("access denied")
	if g.denials != nil {
		g.denials.AuthorizationDenied(string(c))
	}
	return apperrors.Authorization(string(c), g.roleNames(c))
}

// RequireOwnerOrAdmin allows the record owner or an administrator.
func (g *Gate) RequireOwnerOrAdmin(actor *models.User, ownerID int64, entity string) error {
	if actor == nil {
		return apperrors.NotOwner(entity)
	}
	if actor.ID == ownerID || actor.Role == models.RoleAdmin {
		return nil
	}
	g.logger.Warn().Int64("actor_id", actor.ID).Int64("owner_id", ownerID).Str("entity", entity).Msg("edit refused for non-owner")
	if g.denials != nil {
		g.denials.AuthorizationDenied("owner:" + entity)
	}
	return apperrors.NotOwner(entity)
}

// RolesWith lists the roles granted c.
func (g *Gate) RolesWith(c Capability) []models.Role {
	return g.policy.RolesFor(c)
}

func (g *Gate) roleNames(c Capability) []string {
	roles := g.policy.RolesFor(c)
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return names
}
