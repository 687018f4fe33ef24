package actions

import (
	"context"
	"time"

	"github.com/rendis/actiondesk/pkg/schema"
)

// RefreshWindow is how close to expiry a credential may get before an
// executor refreshes it ahead of use.
const RefreshWindow = 5 * time.Minute

// accountAccess bundles what a provider-backed executor needs to obtain a
// usable credential or send the user to connect one.
type accountAccess struct {
	provider   string
	authorizer Authorizer
	refresher  TokenRefresher
	now        func() time.Time
}

// credential loads the user's credential, refreshing it when it is about to
// expire. The refreshed credential is returned separately so it can be
// persisted by the caller.
func (a accountAccess) credential(ctx context.Context, kind schema.ActionKind, in Input) (cred, refreshed *schema.Credential, err error) {
	if in.Credentials == nil {
		return nil, nil, unauthenticated(kind, "no credential store configured")
	}
	cred, err = in.Credentials.Get(ctx, a.provider, in.UserID)
	if err != nil {
		return nil, nil, schema.NewError(schema.ErrCodeStore, "credential lookup failed").WithKind(kind).WithCause(err)
	}
	if cred == nil || cred.AccessToken == "" {
		return nil, nil, unauthenticated(kind, "no connected account")
	}

	now := time.Now()
	if a.now != nil {
		now = a.now()
	}
	if !cred.ExpiresWithin(now, RefreshWindow) {
		return cred, nil, nil
	}
	if cred.RefreshToken == "" || a.refresher == nil {
		if cred.ExpiresWithin(now, 0) {
			return nil, nil, unauthenticated(kind, "access token expired")
		}
		return cred, nil, nil
	}

	fresh, err := a.refresher.Refresh(ctx, *cred)
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeUnauthenticated) {
			return nil, nil, err
		}
		// A token that has not expired yet is still usable.
		if !cred.ExpiresWithin(now, 0) {
			return cred, nil, nil
		}
		return nil, nil, schema.NewError(schema.ErrCodeExternalCall, "token refresh failed").WithKind(kind).WithCause(err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}
	return fresh, fresh, nil
}

// outcome folds err into an Outcome. Unauthenticated errors become an
// auth-required outcome carrying a consent URL when one can be built.
func (a accountAccess) outcome(kind schema.ActionKind, userID string, err error) schema.Outcome {
	if !schema.IsCode(err, schema.ErrCodeUnauthenticated) {
		return schema.Failed(kind, err)
	}
	if a.authorizer == nil {
		return schema.NeedsAuth(kind, "")
	}
	url, urlErr := a.authorizer.AuthURL(userID)
	if urlErr != nil {
		return schema.Failed(kind, urlErr)
	}
	return schema.NeedsAuth(kind, url)
}

func unauthenticated(kind schema.ActionKind, msg string) error {
	return schema.NewError(schema.ErrCodeUnauthenticated, msg).WithKind(kind)
}
