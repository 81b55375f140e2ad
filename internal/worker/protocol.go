package worker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// Type is the tag of a wire envelope.
type Type string

// Request tags.
const (
	TypeInit                Type = "INIT"
	TypeReset               Type = "RESET"
	TypeSetMode             Type = "SET_MODE"
	TypeSetStyle            Type = "SET_STYLE"
	TypeSetAI               Type = "SET_AI"
	TypeUpdateAdjustments   Type = "UPDATE_ADJUSTMENTS"
	TypeSetVariantOverrides Type = "SET_VARIANT_OVERRIDES"
	TypeJumpToFrame         Type = "JUMP_TO_FRAME"
	TypeProcessFrame        Type = "PROCESS_FRAME"
)

// Response tags.
const (
	TypeInitSuccess    Type = "INIT_SUCCESS"
	TypeResetSuccess   Type = "RESET_SUCCESS"
	TypeProcessSuccess Type = "PROCESS_SUCCESS"
	TypeError          Type = "ERROR"
)

// ErrUnknownType is returned by [Decode] for an unrecognised tag.
var ErrUnknownType = errors.New("worker: unknown message type")

// DecodeError is returned by [Decode] once the envelope parsed. ID is the
// request id found on the envelope or in the payload, so the ERROR reply can
// be correlated.
type DecodeError struct {
	ID  string
	Err error
}

func (e *DecodeError) Error() string { return e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// Envelope is the JSON frame of every message: {type, payload, id}.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ID      string          `json:"id,omitempty"`
}

// Message is a request to the [Actor].
type Message interface {
	Type() Type
}

// Init registers the cast.
type Init struct {
	Actors []types.ActorProfile `json:"actors"`
}

// Reset clears orchestrator state.
type Reset struct{}

// SetMode switches the orchestration mode.
type SetMode struct {
	Mode reference.Orchestration `json:"mode"`
}

// SetStyle selects a style preset.
type SetStyle struct {
	StyleID string `json:"styleId"`
}

// SetAI toggles AI melody assistance.
type SetAI struct {
	Enabled     bool    `json:"enabled"`
	Temperature float64 `json:"temperature"`
}

// UpdateAdjustments merges reference table overrides.
type UpdateAdjustments struct {
	Adjustments types.Adjustments `json:"adjustments"`
}

// SetVariantOverrides replaces the active variant.
type SetVariantOverrides struct {
	Variant types.VariantOverride `json:"variant"`
}

// JumpToFrame moves the frame cursor.
type JumpToFrame struct {
	FrameIndex int `json:"frameIndex"`
}

// ProcessFrame requests one frame. ID correlates the response.
type ProcessFrame struct {
	ID      string           `json:"id"`
	Script  types.ScriptLine `json:"script"`
	Trauma  float64          `json:"trauma"`
	Entropy float64          `json:"entropy"`
}

func (Init) Type() Type                { return TypeInit }
func (Reset) Type() Type               { return TypeReset }
func (SetMode) Type() Type             { return TypeSetMode }
func (SetStyle) Type() Type            { return TypeSetStyle }
func (SetAI) Type() Type               { return TypeSetAI }
func (UpdateAdjustments) Type() Type   { return TypeUpdateAdjustments }
func (SetVariantOverrides) Type() Type { return TypeSetVariantOverrides }
func (JumpToFrame) Type() Type         { return TypeJumpToFrame }
func (ProcessFrame) Type() Type        { return TypeProcessFrame }

// Response is published by the [Actor]. Frame is set for PROCESS_SUCCESS,
// Err for ERROR.
type Response struct {
	Type  Type
	ID    string
	Frame *types.Frame
	Err   string
}

// Encode wraps m in an envelope. ProcessFrame carries its id both in the
// payload and on the envelope.
func Encode(m Message) ([]byte, error) {
	env := Envelope{Type: m.Type()}
	if _, ok := m.(Reset); !ok {
		payload, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("worker: encode %s: %w", m.Type(), err)
		}
		env.Payload = payload
	}
	if pf, ok := m.(ProcessFrame); ok {
		env.ID = pf.ID
	}
	return json.Marshal(env)
}

// Decode parses an envelope into a typed message. A PROCESS_FRAME id may sit
// in the payload or on the envelope; the payload wins.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("worker: decode envelope: %w", err)
	}

	var m Message
	switch env.Type {
	case TypeInit:
		m = &Init{}
	case TypeReset:
		return Reset{}, nil
	case TypeSetMode:
		m = &SetMode{}
	case TypeSetStyle:
		m = &SetStyle{}
	case TypeSetAI:
		m = &SetAI{}
	case TypeUpdateAdjustments:
		m = &UpdateAdjustments{}
	case TypeSetVariantOverrides:
		m = &SetVariantOverrides{}
	case TypeJumpToFrame:
		m = &JumpToFrame{}
	case TypeProcessFrame:
		m = &ProcessFrame{}
	default:
		return nil, &DecodeError{ID: env.ID, Err: fmt.Errorf("%w: %q", ErrUnknownType, env.Type)}
	}
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, m); err != nil {
			return nil, &DecodeError{
				ID:  payloadID(env),
				Err: fmt.Errorf("worker: decode %s payload: %w", env.Type, err),
			}
		}
	}

	switch v := m.(type) {
	case *Init:
		return *v, nil
	case *SetMode:
		return *v, nil
	case *SetStyle:
		return *v, nil
	case *SetAI:
		return *v, nil
	case *UpdateAdjustments:
		return *v, nil
	case *SetVariantOverrides:
		return *v, nil
	case *JumpToFrame:
		return *v, nil
	case *ProcessFrame:
		if v.ID == "" {
			v.ID = env.ID
		}
		return *v, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

// payloadID recovers the request id of an envelope whose payload did not
// decode. The payload id wins, as in [Decode].
func payloadID(env Envelope) string {
	var p struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(env.Payload, &p) == nil && p.ID != "" {
		return p.ID
	}
	return env.ID
}

// EncodeResponse wraps r in an envelope. ERROR carries the message string as
// its payload.
func EncodeResponse(r Response) ([]byte, error) {
	env := Envelope{Type: r.Type, ID: r.ID}
	var (
		payload []byte
		err     error
	)
	switch r.Type {
	case TypeProcessSuccess:
		payload, err = json.Marshal(r.Frame)
	case TypeError:
		payload, err = json.Marshal(r.Err)
	}
	if err != nil {
		return nil, fmt.Errorf("worker: encode %s: %w", r.Type, err)
	}
	env.Payload = payload
	return json.Marshal(env)
}

// DecodeResponse parses a response envelope.
func DecodeResponse(data []byte) (Response, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Response{}, fmt.Errorf("worker: decode envelope: %w", err)
	}
	r := Response{Type: env.Type, ID: env.ID}
	switch env.Type {
	case TypeInitSuccess, TypeResetSuccess:
	case TypeProcessSuccess:
		var f types.Frame
		if err := json.Unmarshal(env.Payload, &f); err != nil {
			return Response{}, fmt.Errorf("worker: decode frame: %w", err)
		}
		r.Frame = &f
	case TypeError:
		if err := json.Unmarshal(env.Payload, &r.Err); err != nil {
			r.Err = string(env.Payload)
		}
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return r, nil
}
