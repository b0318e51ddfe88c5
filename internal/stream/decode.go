package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/DoyleJ11/seetheplay/pkg/types"
)

var ErrMalformed = errors.New("malformed message")
var ErrUnknownType = errors.New("unknown message type")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode classifies a raw payload by its "type" field and validates the fields that
// message type requires. Optional fields stay nil when absent.
func Decode(data []byte) (types.Inbound, error) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case types.TypeTick:
		return decodeAs[types.Tick](data)
	case types.TypeGameInitialized:
		return decodeAs[types.GameInitialized](data)
	case types.TypeLiveUpdate:
		return decodeAs[types.LiveUpdate](data)
	case types.TypeScenarioUpdate:
		return decodeAs[types.ScenarioUpdate](data)
	case types.TypeCedarAnswer:
		return decodeAs[types.CedarAnswer](data)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeAs[T types.Inbound](data []byte) (types.Inbound, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}
