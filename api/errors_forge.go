package api

import (
	"errors"

	"github.com/xraph/forge"

	"github.com/xraph/courier"
	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/webhook"
)

// mapError converts courier errors to Forge HTTP errors.
func mapError(err error) error {
	var verr *webhook.ValidationError
	switch {
	case errors.As(err, &verr):
		return forge.BadRequest(verr.Error())
	case errors.Is(err, courier.ErrWebhookNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, courier.ErrDeliveryNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, courier.ErrPayloadInvalid):
		return forge.BadRequest(err.Error())
	case errors.Is(err, catalog.ErrUnknownEventType):
		return forge.BadRequest(err.Error())
	default:
		return forge.InternalError(err)
	}
}
