package admin

import (
	"log/slog"
	"net/http"

	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/httputil"
	request "civicdesk/pkg/platform/middleware/request"
	"civicdesk/pkg/requestcontext"
)

// RequireAdmin rejects requests whose principal is not an ADMIN.
// Must run after auth.RequirePrincipal.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			p, ok := requestcontext.Principal(ctx)
			if !ok || !p.IsAdmin() {
				logger.WarnContext(ctx, "admin route denied",
					"request_id", request.GetRequestID(ctx),
					"role", p.Role,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
