package errs

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// отказ из-за кулдауна в общем чате
	ErrRateLimited = errors.New("rate limited")
	// сообщение отклонено модерацией
	ErrContentPolicy = errors.New("content rejected by policy")

	ErrTransient   = errors.New("transient network failure")
	ErrUpstream    = errors.New("upstream error")
	ErrUnavailable = errors.New("service unavailable")
	ErrDecode      = errors.New("decode failure")
)

// FromStatus переводит HTTP-статус ответа бэкенда в sentinel-ошибку.
// Для 2xx возвращает nil.
func FromStatus(code int) error {
	switch {
	case code < 400:
		return nil
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusUnprocessableEntity, code == http.StatusUnavailableForLegalReasons:
		return ErrContentPolicy
	case code == http.StatusRequestTimeout,
		code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable,
		code == http.StatusGatewayTimeout:
		return ErrTransient
	case code >= 500:
		return ErrUpstream
	default:
		return ErrInvalidInput
	}
}

func ToHTTP(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrContentPolicy):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTransient), errors.Is(err, ErrUpstream), errors.Is(err, ErrDecode):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable: такие ошибки добивают поллинг и reconnect, пользователю они не показываются.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrUpstream) || errors.Is(err, ErrUnavailable)
}
