package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Action layer.
	ErrBadRequest        = "E_BAD_REQUEST"
	ErrInvalidTarget     = "E_INVALID_TARGET"
	ErrInvalidTransition = "E_INVALID_TRANSITION"
	ErrAlreadyNourished  = "E_ALREADY_NOURISHED"
	ErrNoResource        = "E_NO_RESOURCE"
	ErrRateLimit         = "E_RATE_LIMIT"
	ErrConflict          = "E_CONFLICT"
	ErrInternal          = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrBadRequest:        {},
	ErrInvalidTarget:     {},
	ErrInvalidTransition: {},
	ErrAlreadyNourished:  {},
	ErrNoResource:        {},
	ErrRateLimit:         {},
	ErrConflict:          {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
