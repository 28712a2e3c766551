package clinic

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chat-incom/agendamento/internal/platform/availability"
)

// Error kinds reported in API error bodies.
const (
	KindValidation             = "validation"
	KindInvalidSchedule        = "invalid_schedule"
	KindNotFound               = "not_found"
	KindSlotUnavailable        = "slot_unavailable"
	KindPersistenceUnavailable = "persistence_unavailable"
	KindInvalidTransition      = "invalid_transition"
	KindInUse                  = "in_use"
	KindInternal               = "internal"
)

// ErrorBody is the JSON shape of every domain error response.
type ErrorBody struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	// Retry tells the client the request can be repeated after refreshing.
	Retry bool `json:"retry,omitempty"`
	// Slots carries refreshed choices after a lost booking race.
	Slots any `json:"slots,omitempty"`
}

// Classify maps a domain error to its HTTP status and body.
func Classify(err error) (int, ErrorBody) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, ErrorBody{Kind: KindValidation, Message: "validation failed", Fields: verr.Fields}
	case errors.Is(err, availability.ErrInvalidSchedule):
		return http.StatusUnprocessableEntity, ErrorBody{Kind: KindInvalidSchedule, Message: err.Error()}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrorBody{Kind: KindNotFound, Message: err.Error()}
	case errors.Is(err, ErrSlotUnavailable):
		return http.StatusConflict, ErrorBody{Kind: KindSlotUnavailable, Message: ErrSlotUnavailable.Error(), Retry: true}
	case errors.Is(err, ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable, ErrorBody{Kind: KindPersistenceUnavailable, Message: ErrPersistenceUnavailable.Error(), Retry: true}
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict, ErrorBody{Kind: KindInvalidTransition, Message: err.Error()}
	case errors.Is(err, ErrInUse):
		return http.StatusConflict, ErrorBody{Kind: KindInUse, Message: err.Error()}
	}
	return http.StatusInternalServerError, ErrorBody{Kind: KindInternal, Message: "internal error"}
}

// HTTPError converts a domain error into an echo.HTTPError whose message is
// the ErrorBody.
func HTTPError(err error) *echo.HTTPError {
	code, body := Classify(err)
	he := echo.NewHTTPError(code, body)
	if code == http.StatusInternalServerError {
		he.Internal = err
	}
	return he
}
