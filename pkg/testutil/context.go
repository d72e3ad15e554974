package testutil

import (
	"net/http"

	id "civicdesk/pkg/domain"
	"civicdesk/pkg/requestcontext"
)

// WithPrincipal attaches p to the request, as the auth middleware would after
// verifying a bearer token.
func WithPrincipal(req *http.Request, p id.Principal) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), p))
}
