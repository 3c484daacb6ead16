package httputil

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey string

const (
	HeaderRequestID        = "X-Request-ID"
	ctxKeyReqID     ctxKey = "req_id"
)

// MiddlewareRequestID пробрасывает или генерирует X-Request-ID для входящих запросов.
func MiddlewareRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)

		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), reqID)))
	})
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyReqID, id)
}

func FromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyReqID).(string)
	return v, ok && v != ""
}

// StampOutgoing ставит X-Request-ID на исходящий запрос к бэкенду.
// Берёт id из контекста, иначе генерирует новый. Возвращает использованный id.
func StampOutgoing(req *http.Request) string {
	id, ok := FromContext(req.Context())
	if !ok {
		id = uuid.NewString()
	}
	req.Header.Set(HeaderRequestID, id)
	return id
}
