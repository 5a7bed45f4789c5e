// Package provider implements the Mail Client (§4.D) against Gmail.
package provider

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mailkeeper/agent/core/domain"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/pkg/apperr"
	"github.com/mailkeeper/agent/pkg/logger"
)

// GmailConfig holds the OAuth2 app registration used to build per-user
// token sources.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// TokenStore resolves and persists the per-user OAuth2 credential backing
// the mail client, implemented over the agent_state collection (§4.B, §6).
type TokenStore interface {
	Load(ctx context.Context, userID string) (*domain.AgentState, error)
	Save(ctx context.Context, state *domain.AgentState) error
}

// GmailAdapter implements out.MailProviderPort for Gmail, narrowed from the
// teacher's much richer EmailProviderPort down to exactly list/get/modify/
// send/label (§4.D), reusing its OAuth2 + circuit-breaker wiring in full.
type GmailAdapter struct {
	oauth *oauth2.Config
	cb    *gobreaker.CircuitBreaker
	store TokenStore
}

func NewGmailAdapter(cfg GmailConfig, store TokenStore) *GmailAdapter {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmail.GmailModifyScope,
			gmail.GmailLabelsScope,
			"https://www.googleapis.com/auth/calendar.events",
		},
		Endpoint: google.Endpoint,
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	})

	return &GmailAdapter{oauth: conf, cb: cb, store: store}
}

var _ out.MailProviderPort = (*GmailAdapter)(nil)

// nonCircuitError wraps a client (4xx) error so it never trips the breaker
// (§4.T, §7's Transient-vs-Client distinction).
type nonCircuitError struct{ err error }

func (e *nonCircuitError) Error() string { return e.err.Error() }

func (a *GmailAdapter) executeWithCircuitBreaker(operation string, fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					return nil, err
				case 400, 401, 403, 404:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}
	if err != nil {
		logger.WithError(err).Warn("gmail circuit breaker tripped for %s (state=%s)", operation, a.cb.State().String())
	}
	return err
}

// service resolves the caller's token (refreshing and scope-checking it)
// and returns a Gmail client bound to it.
func (a *GmailAdapter) service(ctx context.Context, userID string) (*gmail.Service, error) {
	token, err := a.resolveToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 20*time.Second)
		defer cancel()
	}

	return gmail.NewService(ctx, option.WithTokenSource(a.oauth.TokenSource(ctx, token)))
}

// resolveToken loads the persisted credential, refreshes it if expired, and
// enforces the scope-drift check on every refresh (§6, §4.D): if the
// persisted scopes no longer match what this adapter requires, the token is
// deleted and re-auth is required rather than silently proceeding.
func (a *GmailAdapter) resolveToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	state, err := a.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state.Token == nil {
		return nil, apperr.AuthScopeDrift("gmail")
	}
	if !state.Token.HasScopes(domain.RequiredMailScopes) {
		state.Token = nil
		state.ReauthRequired = true
		_ = a.store.Save(ctx, state)
		return nil, apperr.AuthScopeDrift("gmail")
	}

	token := &oauth2.Token{
		AccessToken:  state.Token.AccessToken,
		RefreshToken: state.Token.RefreshToken,
		TokenType:    state.Token.TokenType,
		Expiry:       state.Token.Expiry,
	}
	if !state.Token.Expired() {
		return token, nil
	}

	fresh, err := a.oauth.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, apperr.AuthScopeDrift("gmail").WithError(err)
	}
	state.Token = &domain.OAuthToken{
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		TokenType:    fresh.TokenType,
		Expiry:       fresh.Expiry,
		Scopes:       state.Token.Scopes,
	}
	if err := a.store.Save(ctx, state); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (a *GmailAdapter) ListMessages(ctx context.Context, userID string, labels []string, query string, maxResults int) ([]out.MessageRef, error) {
	svc, err := a.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	if maxResults <= 0 {
		maxResults = 50
	}
	req := svc.Users.Messages.List("me").MaxResults(int64(maxResults))
	if len(labels) > 0 {
		req = req.LabelIds(labels...)
	}
	if query != "" {
		req = req.Q(query)
	}

	var resp *gmail.ListMessagesResponse
	cbErr := a.executeWithCircuitBreaker("ListMessages", func() error {
		var apiErr error
		resp, apiErr = req.Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "list messages")
	}

	refs := make([]out.MessageRef, len(resp.Messages))
	for i, m := range resp.Messages {
		refs[i] = out.MessageRef{ID: m.Id, ThreadID: m.ThreadId}
	}
	return refs, nil
}

func (a *GmailAdapter) GetMessage(ctx context.Context, userID, messageID string) (*out.RawMessage, error) {
	svc, err := a.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	var msg *gmail.Message
	cbErr := a.executeWithCircuitBreaker("GetMessage", func() error {
		var apiErr error
		msg, apiErr = svc.Users.Messages.Get("me", messageID).Format("full").Fields("id,threadId,labelIds,snippet,payload").Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "get message")
	}

	return a.convertMessage(msg), nil
}

func (a *GmailAdapter) convertMessage(msg *gmail.Message) *out.RawMessage {
	result := &out.RawMessage{
		MessageID: msg.Id,
		ThreadID:  msg.ThreadId,
		Labels:    msg.LabelIds,
		Snippet:   msg.Snippet,
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				result.Subject = h.Value
			case "From":
				result.FromRaw = h.Value
			case "Date":
				if t, err := mail.ParseDate(h.Value); err == nil {
					result.Date = t
				}
			}
		}
		a.extractBody(msg.Payload, result, 0)
	}
	if result.Date.IsZero() {
		result.Date = time.Unix(0, msg.InternalDate*int64(time.Millisecond))
	}
	return result
}

func (a *GmailAdapter) extractBody(part *gmail.MessagePart, result *out.RawMessage, depth int) {
	if part == nil {
		return
	}
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" && result.PlainTextB64 == "" {
		result.PlainTextB64 = part.Body.Data
	}
	if part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "" && result.HTMLB64 == "" {
		result.HTMLB64 = part.Body.Data
	}
	for _, p := range part.Parts {
		a.extractBody(p, result, depth+1)
	}
}

func (a *GmailAdapter) ModifyLabels(ctx context.Context, userID, messageID string, add, remove []string) error {
	svc, err := a.service(ctx, userID)
	if err != nil {
		return err
	}

	req := &gmail.ModifyMessageRequest{AddLabelIds: add, RemoveLabelIds: remove}
	cbErr := a.executeWithCircuitBreaker("ModifyLabels", func() error {
		_, apiErr := svc.Users.Messages.Modify("me", messageID, req).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return a.wrapError(cbErr, "modify labels")
	}
	return nil
}

func (a *GmailAdapter) Send(ctx context.Context, userID, rawRFC822Base64URL string) error {
	svc, err := a.service(ctx, userID)
	if err != nil {
		return err
	}

	gmailMsg := &gmail.Message{Raw: rawRFC822Base64URL}
	cbErr := a.executeWithCircuitBreaker("Send", func() error {
		_, apiErr := svc.Users.Messages.Send("me", gmailMsg).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return a.wrapError(cbErr, "send message")
	}
	return nil
}

func (a *GmailAdapter) ListThreadMessages(ctx context.Context, userID, threadID string) ([]out.MessageRef, error) {
	svc, err := a.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	var thread *gmail.Thread
	cbErr := a.executeWithCircuitBreaker("ListThreadMessages", func() error {
		var apiErr error
		thread, apiErr = svc.Users.Threads.Get("me", threadID).Format("metadata").Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "list thread messages")
	}

	refs := make([]out.MessageRef, len(thread.Messages))
	for i, m := range thread.Messages {
		refs[i] = out.MessageRef{ID: m.Id, ThreadID: m.ThreadId}
	}
	return refs, nil
}

func (a *GmailAdapter) ListLabels(ctx context.Context, userID string) ([]out.Label, error) {
	svc, err := a.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, a.wrapError(err, "list labels")
	}

	labels := make([]out.Label, len(resp.Labels))
	for i, l := range resp.Labels {
		labels[i] = out.Label{ID: l.Id, Name: l.Name}
	}
	return labels, nil
}

// CreateLabel creates name, auto-creating any missing `/`-nested parents
// (§4.D, §6) — Gmail itself does not do this, so each path segment is
// checked against the existing label set before being created.
func (a *GmailAdapter) CreateLabel(ctx context.Context, userID, name string) (out.Label, error) {
	svc, err := a.service(ctx, userID)
	if err != nil {
		return out.Label{}, err
	}

	existing, err := a.ListLabels(ctx, userID)
	if err != nil {
		return out.Label{}, err
	}
	byName := make(map[string]out.Label, len(existing))
	for _, l := range existing {
		byName[l.Name] = l
	}

	segments := strings.Split(name, "/")
	path := ""
	var last out.Label
	for i, seg := range segments {
		if i == 0 {
			path = seg
		} else {
			path = path + "/" + seg
		}
		if l, ok := byName[path]; ok {
			last = l
			continue
		}

		label := &gmail.Label{Name: path, LabelListVisibility: "labelShow", MessageListVisibility: "show"}
		created, err := svc.Users.Labels.Create("me", label).Context(ctx).Do()
		if err != nil {
			return out.Label{}, a.wrapError(err, "create label")
		}
		last = out.Label{ID: created.Id, Name: created.Name}
		byName[path] = last
	}
	return last, nil
}

func (a *GmailAdapter) wrapError(err error, what string) error {
	if err == nil {
		return nil
	}
	apiErr, ok := err.(*googleapi.Error)
	if !ok {
		return apperr.ExternalError("gmail", err)
	}
	switch apiErr.Code {
	case 401, 403:
		return apperr.AuthScopeDrift("gmail").WithError(err)
	case 404:
		return apperr.NotFound("gmail message").WithError(err)
	case 429:
		return apperr.RateLimited("gmail").WithError(err)
	case 400:
		return apperr.BadRequest(fmt.Sprintf("gmail %s: %s", what, apiErr.Message)).WithError(err)
	default:
		return apperr.ExternalError("gmail", err)
	}
}
