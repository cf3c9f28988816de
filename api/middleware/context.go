package middleware

import "context"

type principalKey struct{}

// Principal is the authenticated caller behind a request.
type Principal struct {
	UserID      string
	DisplayName string
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// WithUserID seeds a principal carrying only the user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return WithPrincipal(ctx, Principal{UserID: userID})
}

func UserIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.UserID
}

func DisplayNameFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.DisplayName
}
