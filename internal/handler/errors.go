package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/model"
)

// StatusFor maps an error kind to the HTTP status of the public API.
// Caller and state errors are 4xx, infrastructure failures 5xx.
func StatusFor(kind string) int {
	switch kind {
	case model.KindInvalidInput,
		model.KindInsufficientInventory,
		model.KindAlreadyCancelled,
		model.KindInvalidTransition,
		model.KindReleaseRejected:
		return http.StatusBadRequest
	case model.KindUserNotFound, model.KindEventNotFound, model.KindBookingNotFound:
		return http.StatusNotFound
	case model.KindReservationConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

var messages = map[string]string{
	model.KindUserNotFound:          "User not found",
	model.KindEventNotFound:         "Event not found",
	model.KindBookingNotFound:       "Booking not found",
	model.KindInsufficientInventory: "Not enough seats available",
	model.KindAlreadyCancelled:      "Booking already cancelled",
	model.KindUpstreamUnavailable:   "A required service is unavailable, please retry",
	model.KindPersistenceFailure:    "Booking storage failed, please retry",
	model.KindCompensationFailure:   "Booking failed and could not be rolled back cleanly",
	model.KindInternal:              "Internal server error",
}

// writeError renders err with the status StatusFor assigns to its kind.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	return writeErrorStatus(c, log, StatusFor(model.KindOf(err)), err)
}

// writeErrorStatus renders err as {"error": kind, "message": text} plus
// any details carried by typed errors.
func writeErrorStatus(c echo.Context, log *zap.Logger, status int, err error) error {
	kind := model.KindOf(err)
	msg, ok := messages[kind]
	if !ok {
		msg = err.Error()
	}
	body := echo.Map{"error": kind, "message": msg}

	var insufficient *model.InsufficientInventoryError
	if errors.As(err, &insufficient) {
		body["requested"] = insufficient.Requested
		body["free_count"] = insufficient.Free
		body["available_seats"] = insufficient.Free
	}
	var comp *model.CompensationError
	if errors.As(err, &comp) {
		body["booking_id"] = comp.BookingID
		body["event_id"] = comp.EventID
	}

	if status >= http.StatusInternalServerError && log != nil {
		log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.String("kind", kind),
			zap.Error(err))
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": model.KindInvalidInput, "message": msg})
}
