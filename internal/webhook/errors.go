package webhook

import "errors"

// Sentinel errors for webhook operations.
var (
	ErrEndpointNotFound  = errors.New("webhook endpoint not found")
	ErrDeliveryNotFound  = errors.New("webhook delivery not found")
	ErrInvalidEventType  = errors.New("unknown event type")
	ErrTooManyEndpoints  = errors.New("webhook endpoint limit reached")
	ErrDeliveryNotFailed = errors.New("only exhausted deliveries can be retried")
	ErrInvalidStatus     = errors.New("unknown delivery status")
)
