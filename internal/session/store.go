// Package session keeps per-session client state: the credential pair issued
// by the forms API and the last-used table filters. Stores are injected so the
// BFF can keep sessions in memory or Redis and the CLI can keep them on disk.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xaviermatuz/formdesk/internal/apiclient"
)

// Keys stored per session.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyFilterState  = "filter_state"
)

// ErrNoSession is returned when a session holds no credentials.
var ErrNoSession = errors.New("session: not found")

// Store holds string values per session. Implementations must be safe for
// concurrent use and expire idle sessions after their TTL.
type Store interface {
	// Get returns the value stored under key. found is false when the
	// session or key does not exist or has expired.
	Get(ctx context.Context, sessionID, key string) (value string, found bool, err error)

	// Set stores value under key and extends the session's lifetime.
	Set(ctx context.Context, sessionID, key, value string) error

	// Remove deletes keys from the session. Missing keys are ignored.
	Remove(ctx context.Context, sessionID string, keys ...string) error

	// Clear deletes the whole session.
	Clear(ctx context.Context, sessionID string) error

	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}

// SaveCredentials stores a fresh credential pair.
func SaveCredentials(ctx context.Context, s Store, sessionID string, creds apiclient.Credentials) error {
	if err := s.Set(ctx, sessionID, KeyAccessToken, creds.Access); err != nil {
		return err
	}
	return s.Set(ctx, sessionID, KeyRefreshToken, creds.Refresh)
}

// LoadCredentials returns the session's credential pair, or ErrNoSession
// when no access token is stored.
func LoadCredentials(ctx context.Context, s Store, sessionID string) (apiclient.Credentials, error) {
	access, found, err := s.Get(ctx, sessionID, KeyAccessToken)
	if err != nil {
		return apiclient.Credentials{}, err
	}
	if !found || access == "" {
		return apiclient.Credentials{}, ErrNoSession
	}
	refresh, _, err := s.Get(ctx, sessionID, KeyRefreshToken)
	if err != nil {
		return apiclient.Credentials{}, err
	}
	return apiclient.Credentials{Access: access, Refresh: refresh}, nil
}

// Credentials binds a Store to one session for the API client.
type Credentials struct {
	store     Store
	sessionID string
}

// CredentialsFor returns the credential view of one session.
func CredentialsFor(s Store, sessionID string) *Credentials {
	return &Credentials{store: s, sessionID: sessionID}
}

// Credentials implements apiclient.CredentialStore. A missing session yields
// empty credentials so the client reports the absent refresh token.
func (c *Credentials) Credentials(ctx context.Context) (apiclient.Credentials, error) {
	creds, err := LoadCredentials(ctx, c.store, c.sessionID)
	if errors.Is(err, ErrNoSession) {
		return apiclient.Credentials{}, nil
	}
	return creds, err
}

// SaveAccess implements apiclient.CredentialStore.
func (c *Credentials) SaveAccess(ctx context.Context, access string) error {
	return c.store.Set(ctx, c.sessionID, KeyAccessToken, access)
}

// FilterState maps a resource name to its persisted filter values.
type FilterState map[string]map[string]string

// LoadFilters returns the persisted filter values. A corrupt entry is
// treated as empty.
func LoadFilters(ctx context.Context, s Store, sessionID string) (FilterState, error) {
	raw, found, err := s.Get(ctx, sessionID, KeyFilterState)
	if err != nil {
		return nil, err
	}
	state := FilterState{}
	if !found {
		return state, nil
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return FilterState{}, nil
	}
	return state, nil
}

// SaveFilter persists one filter value for a resource. An empty value
// removes it.
func SaveFilter(ctx context.Context, s Store, sessionID, resource, name, value string) error {
	state, err := LoadFilters(ctx, s, sessionID)
	if err != nil {
		return err
	}
	if value == "" {
		delete(state[resource], name)
		if len(state[resource]) == 0 {
			delete(state, resource)
		}
	} else {
		if state[resource] == nil {
			state[resource] = map[string]string{}
		}
		state[resource][name] = value
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: encoding filter state: %w", err)
	}
	return s.Set(ctx, sessionID, KeyFilterState, string(data))
}
