package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/gateward/gateward/internal/log"
	"github.com/gateward/gateward/internal/xerrors"
)

// Recover turns handler panics into a 500 response instead of a dropped
// connection. onPanic, if set, is called once per recovered panic (for a
// metrics counter).
func Recover(base log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// http.ErrAbortHandler is the sanctioned way to abort; re-raise
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				if onPanic != nil {
					onPanic()
				}
				L := log.FromContext(r.Context())
				if L == nil {
					L = base
				}
				L.Error(r.Context(), xerrors.Newf("panic: %v", rec), "panic recovered",
					"stack", string(debug.Stack()),
				)
				w.Header().Set("Cache-Control", "no-store")
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
