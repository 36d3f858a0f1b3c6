package models

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// scopeIDPattern covers PocketBase record ids and tenant slugs. The "::"
// separator used by ServiceScope.ID is not representable in it.
var scopeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ServiceScope identifies one independent queue: a tenant, optionally
// narrowed to a single server (agent/counter) within that tenant. Construct
// it with NewServiceScope and pass it by value; two scopes with different
// ServerID under the same tenant share nothing.
type ServiceScope struct {
	TenantID string `json:"tenant_id"`
	ServerID string `json:"server_id,omitempty"`
}

func NewServiceScope(tenantID, serverID string) (ServiceScope, error) {
	scope := ServiceScope{
		TenantID: strings.TrimSpace(tenantID),
		ServerID: strings.TrimSpace(serverID),
	}
	if err := scope.Validate(); err != nil {
		return ServiceScope{}, err
	}
	return scope, nil
}

func (s ServiceScope) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.TenantID,
			validation.Required,
			validation.Length(1, 64),
			validation.Match(scopeIDPattern),
		),
		validation.Field(&s.ServerID,
			validation.Length(0, 64),
			validation.When(s.ServerID != "", validation.Match(scopeIDPattern)),
		),
	)
}

// ID returns the canonical scope key: "tenant" for a tenant-wide scope or
// "tenant::server" when narrowed to one server.
func (s ServiceScope) ID() string {
	if s.ServerID == "" {
		return s.TenantID
	}
	return s.TenantID + "::" + s.ServerID
}

// PerServer reports whether the scope is narrowed to a single server.
func (s ServiceScope) PerServer() bool {
	return s.ServerID != ""
}

func (s ServiceScope) String() string {
	return s.ID()
}
