package domain

import (
	"sort"
	"time"
)

// OAuthToken is the per-user refreshable credential persisted in the
// agent_state collection (§6 "Auth surface"). Scopes are the grant actually
// recorded at the last successful exchange or refresh, compared against the
// scopes the mail/calendar clients require on every refresh.
type OAuthToken struct {
	AccessToken  string    `bson:"access_token" json:"access_token"`
	RefreshToken string    `bson:"refresh_token" json:"refresh_token"`
	TokenType    string    `bson:"token_type" json:"token_type"`
	Expiry       time.Time `bson:"expiry" json:"expiry"`
	Scopes       []string  `bson:"scopes" json:"scopes"`
}

// Expired reports whether the access token is past its expiry, with a small
// skew so a refresh is attempted slightly ahead of the provider rejecting it.
func (t *OAuthToken) Expired() bool {
	if t == nil {
		return true
	}
	return time.Now().UTC().Add(30 * time.Second).After(t.Expiry)
}

// HasScopes reports whether t's granted scopes are a superset of required.
// Used by the scope-drift check on every token refresh (§6, §4.D).
func (t *OAuthToken) HasScopes(required []string) bool {
	if t == nil {
		return false
	}
	granted := make(map[string]struct{}, len(t.Scopes))
	for _, s := range t.Scopes {
		granted[s] = struct{}{}
	}
	for _, r := range required {
		if _, ok := granted[r]; !ok {
			return false
		}
	}
	return true
}

// AgentState is the per-user document in the agent_state collection (§4.B).
// It holds the OAuth2 credential used by the Mail Client (§4.D) and the
// Retraining Controller's last-seen feedback count is tracked separately in
// blob storage (RetrainState, §3) — AgentState is credentials only.
type AgentState struct {
	UserID     string      `bson:"user_id" json:"user_id"`
	Token      *OAuthToken `bson:"token,omitempty" json:"token,omitempty"`
	ReauthRequired bool    `bson:"reauth_required" json:"reauth_required"`
	UpdatedAt  time.Time   `bson:"updated_at" json:"updated_at"`
}

// RequiredMailScopes are the scopes the Mail Client needs to operate
// (mail modify + calendar events read, per §6's "Auth surface").
var RequiredMailScopes = []string{
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/calendar.events",
}

// ScopesEqual reports whether two scope sets are the same regardless of
// order. The refresh-time drift check uses HasScopes, not this function.
func ScopesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]string{}, a...), append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
