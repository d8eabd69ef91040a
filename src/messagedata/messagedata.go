// Package messagedata holds the typed payloads carried inside message
// envelopes. Every payload is a JSON object tagged with an "object" and an
// "action" field; the pair selects the builder and handler registered for it.
package messagedata

import (
	"encoding/json"
	"strconv"

	"github.com/popstellar/popclient/src/common"
	"golang.org/x/xerrors"
)

// ObjectType is the value of the "object" key of a payload.
type ObjectType string

// ActionType is the value of the "action" key of a payload.
type ActionType string

const (
	LaoObject      ObjectType = "lao"
	MessageObject  ObjectType = "message"
	MeetingObject  ObjectType = "meeting"
	RollCallObject ObjectType = "roll_call"
	ElectionObject ObjectType = "election"
	ChirpObject    ObjectType = "chirp"
)

const (
	CreateAction  ActionType = "create"
	UpdateAction  ActionType = "update_properties"
	StateAction   ActionType = "state"
	WitnessAction ActionType = "witness"
	OpenAction    ActionType = "open"
	CloseAction   ActionType = "close"
	AddAction     ActionType = "add"
)

// Data is implemented by every payload.
type Data interface {
	Object() ObjectType
	Action() ActionType
}

// Header contains the tag shared by all payloads.
type Header struct {
	ObjectField ObjectType `json:"object"`
	ActionField ActionType `json:"action"`
}

// Object implements Data
func (h Header) Object() ObjectType {
	return h.ObjectField
}

// Action implements Data
func (h Header) Action() ActionType {
	return h.ActionField
}

// GetObjectAndAction extracts the tag of a raw JSON payload.
func GetObjectAndAction(raw []byte) (ObjectType, ActionType, error) {
	var h Header

	if err := json.Unmarshal(raw, &h); err != nil {
		return "", "", common.NewProtocolError("failed to parse payload header: %v", err)
	}

	if h.ObjectField == "" || h.ActionField == "" {
		return "", "", common.NewProtocolError("payload is missing its object or action")
	}

	return h.ObjectField, h.ActionField, nil
}

// Generic is a payload whose body is kept as raw JSON. It serves payload
// types validated by an external collaborator.
type Generic struct {
	Header
	Raw json.RawMessage `json:"-"`
}

// NewGeneric parses the tag of raw and keeps the full body.
func NewGeneric(raw []byte) (*Generic, error) {
	object, action, err := GetObjectAndAction(raw)
	if err != nil {
		return nil, err
	}

	return &Generic{
		Header: Header{ObjectField: object, ActionField: action},
		Raw:    append(json.RawMessage{}, raw...),
	}, nil
}

// MarshalJSON returns the raw body.
func (g *Generic) MarshalJSON() ([]byte, error) {
	return g.Raw, nil
}

// Timestamp is a unix timestamp in seconds.
type Timestamp int64

// String returns the decimal representation used when hashing.
func (t Timestamp) String() string {
	return strconv.FormatInt(int64(t), 10)
}

func unmarshalTagged(raw []byte, v interface{}, object ObjectType, action ActionType) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return common.NewProtocolError("failed to parse %s#%s: %v", object, action, err)
	}

	d, ok := v.(Data)
	if !ok {
		return xerrors.Errorf("%T does not implement Data", v)
	}

	if d.Object() != object || d.Action() != action {
		return common.NewProtocolError("expected %s#%s, got %s#%s",
			object, action, d.Object(), d.Action())
	}

	return nil
}
