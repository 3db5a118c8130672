package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks a message that can never be decoded.
	ErrMalformed = errors.New("events: malformed message")
	// ErrUnknownType marks a well-formed envelope with a type this build does not know.
	ErrUnknownType = errors.New("events: unknown event type")
)

func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode dispatches on the eventType discriminator.
func Decode(b []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("%w: missing eventType", ErrMalformed)
	}

	switch env.EventType {
	case TypeOrderCreated:
		return decodeAs[OrderCreated](b)
	case TypeOrderStatusChanged:
		return decodeAs[OrderStatusChanged](b)
	case TypePaymentCompleted:
		return decodeAs[PaymentCompleted](b)
	case TypePaymentFailed:
		return decodeAs[PaymentFailed](b)
	case TypeInventoryReserved:
		return decodeAs[InventoryReserved](b)
	case TypeInventoryReleased:
		return decodeAs[InventoryReleased](b)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, env.EventType)
	}
}

func decodeAs[T Event](b []byte) (Event, error) {
	var e T
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.CorrelationID() == "" {
		return nil, fmt.Errorf("%w: %s without order id", ErrMalformed, e.Meta().EventType)
	}
	return e, nil
}
