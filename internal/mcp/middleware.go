package mcp

import (
	"context"
	"strings"

	"github.com/emgroup/sitesync/internal/auth"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// EmailHeader carries the signed-in email over HTTP.
const EmailHeader = "X-Sitesync-Email"

// EmailMetaKey carries the signed-in email in request metadata (stdio).
const EmailMetaKey = "email"

type contextKey int

const identityKey contextKey = iota

func withIdentity(ctx context.Context, who auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, who)
}

// identityFrom returns the identity set by identityMiddleware.
func identityFrom(ctx context.Context) (auth.Identity, bool) {
	who, ok := ctx.Value(identityKey).(auth.Identity)
	return who, ok
}

// identityMiddleware resolves the caller's email to an identity. The email
// comes from the HTTP header, then request metadata, then defaultEmail.
// Calls without one proceed anonymously and tools reject them.
func identityMiddleware(dir *auth.Directory, defaultEmail string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			email := requestEmail(req)
			if email == "" {
				email = defaultEmail
			}
			if email != "" {
				who, err := dir.Identify(email)
				if err != nil {
					return nil, mapError(err)
				}
				ctx = withIdentity(ctx, who)
			}
			return next(ctx, method, req)
		}
	}
}

func requestEmail(req sdkmcp.Request) string {
	if req == nil {
		return ""
	}
	if extra := req.GetExtra(); extra != nil && extra.Header != nil {
		if email := strings.TrimSpace(extra.Header.Get(EmailHeader)); email != "" {
			return email
		}
	}

	var email string
	// Some notifications have nil params behind a non-nil interface.
	func() {
		defer func() { recover() }()
		params := req.GetParams()
		if params == nil {
			return
		}
		if meta := params.GetMeta(); meta != nil {
			email, _ = meta[EmailMetaKey].(string)
		}
	}()
	return strings.TrimSpace(email)
}
