// Package session carries the authenticated client identity through the
// engine so no component reaches for process-global user state.
package session

import (
	"github.com/google/uuid"

	"github.com/example/ridelink/internal/auth"
	"github.com/example/ridelink/internal/ride/domain"
)

// Context bundles the token with the identity parsed from it. One Context
// exists per client session and is handed to every component at construction.
type Context struct {
	Token  string
	UserID uuid.UUID
	Role   domain.Role
}

// New builds a session context from a server-issued token.
func New(token string) (*Context, error) {
	id, err := auth.ParseIdentity(token)
	if err != nil {
		return nil, err
	}
	return &Context{Token: token, UserID: id.UserID, Role: id.Role}, nil
}

// Driver reports whether this session belongs to the driver side.
func (c *Context) Driver() bool { return c.Role == domain.RoleDriver }
