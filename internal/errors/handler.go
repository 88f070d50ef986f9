package errors

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

// WriteHTTP renders err as spec.md's `{"error": "<message>"}` body at
// the status implied by its Kind, and logs it at a level matching
// severity. Unrecognized errors are treated as internal encode errors
// so a bug upstream never leaks a 200 with a broken body. r may be nil
// in contexts without a live request (e.g. direct unit tests).
func WriteHTTP(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		gwErr = InternalEncode(err.Error())
	}

	if logger != nil {
		level := slog.LevelWarn
		if gwErr.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, "request failed",
			slog.String("kind", string(gwErr.Kind)),
			slog.Int("status", gwErr.Status()),
			slog.String("error", gwErr.Message))
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r == nil {
		r = &http.Request{}
	}
	render.Status(r, gwErr.Status())
	render.JSON(w, r, map[string]string{"error": gwErr.Message})
}
