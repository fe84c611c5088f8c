// Package identity wraps the Keycloak admin REST API. The provider is an
// unreliable remote dependency: every failure surfaces as
// auth.ErrUpstreamUnavailable, never as an authorization denial.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/Nerzal/gocloak/v13"

	"github.com/clinichub/scheduling/internal/auth"
)

type AdminClient struct {
	gc          *gocloak.GoCloak
	realm       string
	clientID    string // the backend client whose roles are assigned
	adminID     string
	adminSecret string
	mu          sync.Mutex
	clientUUID  string
	roleCache   map[string]*gocloak.Role
}

func NewAdminClient(baseURL, realm, clientID, adminID, adminSecret string) (*AdminClient, error) {
	if adminID == "" || adminSecret == "" {
		return nil, fmt.Errorf("admin client credentials are required")
	}
	return &AdminClient{
		gc:          gocloak.NewClient(baseURL),
		realm:       realm,
		clientID:    clientID,
		adminID:     adminID,
		adminSecret: adminSecret,
		roleCache:   make(map[string]*gocloak.Role),
	}, nil
}

// serviceToken obtains a fresh admin token via the client-credentials grant.
func (c *AdminClient) serviceToken(ctx context.Context) (string, error) {
	jwt, err := c.gc.LoginClient(ctx, c.adminID, c.adminSecret, c.realm)
	if err != nil {
		return "", fmt.Errorf("%w: obtain service token: %v", auth.ErrUpstreamUnavailable, err)
	}
	return jwt.AccessToken, nil
}

// backendClientUUID resolves (once) the internal id of the backend client.
func (c *AdminClient) backendClientUUID(ctx context.Context, token string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clientUUID != "" {
		return c.clientUUID, nil
	}

	clients, err := c.gc.GetClients(ctx, token, c.realm, gocloak.GetClientsParams{
		ClientID: gocloak.StringP(c.clientID),
	})
	if err != nil {
		return "", fmt.Errorf("%w: lookup backend client: %v", auth.ErrUpstreamUnavailable, err)
	}
	if len(clients) == 0 || clients[0].ID == nil {
		return "", fmt.Errorf("%w: backend client %q not found in realm", auth.ErrUpstreamUnavailable, c.clientID)
	}

	c.clientUUID = *clients[0].ID
	return c.clientUUID, nil
}

func (c *AdminClient) clientRole(ctx context.Context, token, clientUUID, name string) (*gocloak.Role, error) {
	c.mu.Lock()
	if cached, ok := c.roleCache[name]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	role, err := c.gc.GetClientRole(ctx, token, c.realm, clientUUID, name)
	if err != nil {
		return nil, fmt.Errorf("%w: role %q not found: %v", auth.ErrUpstreamUnavailable, name, err)
	}

	c.mu.Lock()
	c.roleCache[name] = role
	c.mu.Unlock()
	return role, nil
}

// setTenantAttribute writes the tenant_id attribute on the user, the claim
// the token verifier later reads back.
func (c *AdminClient) setTenantAttribute(ctx context.Context, token, userID, tenantID string) error {
	user, err := c.gc.GetUserByID(ctx, token, c.realm, userID)
	if err != nil {
		return fmt.Errorf("%w: lookup user: %v", auth.ErrUpstreamUnavailable, err)
	}

	attrs := map[string][]string{}
	if user.Attributes != nil {
		attrs = *user.Attributes
	}
	attrs["tenant_id"] = []string{tenantID}
	user.Attributes = &attrs

	if err := c.gc.UpdateUser(ctx, token, c.realm, *user); err != nil {
		return fmt.Errorf("%w: update user attributes: %v", auth.ErrUpstreamUnavailable, err)
	}
	return nil
}

// AssignMember binds a user to a tenant and grants the named client role.
func (c *AdminClient) AssignMember(ctx context.Context, userID, tenantID, role string) error {
	token, err := c.serviceToken(ctx)
	if err != nil {
		return err
	}

	clientUUID, err := c.backendClientUUID(ctx, token)
	if err != nil {
		return err
	}

	if err := c.setTenantAttribute(ctx, token, userID, tenantID); err != nil {
		return err
	}

	roleRep, err := c.clientRole(ctx, token, clientUUID, role)
	if err != nil {
		return err
	}

	if err := c.gc.AddClientRolesToUser(ctx, token, c.realm, clientUUID, userID, []gocloak.Role{*roleRep}); err != nil {
		return fmt.Errorf("%w: assign client role: %v", auth.ErrUpstreamUnavailable, err)
	}
	return nil
}
