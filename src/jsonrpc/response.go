package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/popstellar/popclient/src/common"
	"github.com/popstellar/popclient/src/message"
)

// Error codes returned by relays.
const (
	InvalidActionErrorCode       = -1
	InvalidResourceErrorCode     = -2
	DuplicateResourceErrorCode   = -3
	InvalidMessageFieldErrorCode = -4
	AccessDeniedErrorCode        = -5
	InternalServerErrorCode      = -6
)

// Error is the error member of a response.
type Error struct {
	Code        int             `json:"code"`
	Description string          `json:"description"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Description)
}

// OperationError converts the relay error into the error surfaced to callers.
func (e *Error) OperationError() *common.RPCOperationError {
	return &common.RPCOperationError{
		Code:        e.Code,
		Description: e.Description,
		Data:        e.Data,
	}
}

// Response is a JSON-RPC response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int            `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResult builds a successful response.
func NewResult(id int, result interface{}) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: Version, ID: &id, Result: raw}, nil
}

// NewErrorResponse builds a failed response.
func NewErrorResponse(id int, code int, description string) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      &id,
		Error:   &Error{Code: code, Description: description},
	}
}

// Validate checks the response is well formed.
func (r *Response) Validate() error {
	if r.JSONRPC != Version {
		return common.NewProtocolError("unsupported jsonrpc version %q", r.JSONRPC)
	}

	if r.ID == nil {
		return common.NewProtocolError("response carries no id")
	}

	hasResult := len(r.Result) > 0 && string(r.Result) != "null"

	if hasResult == (r.Error != nil) {
		return common.NewProtocolError("response must carry exactly one of result and error")
	}

	return nil
}

// Count returns the integer result of a subscribe, unsubscribe or publish.
func (r *Response) Count() (int, error) {
	var n int
	if err := json.Unmarshal(r.Result, &n); err != nil {
		return 0, common.NewProtocolError("result is not a number: %v", err)
	}
	return n, nil
}

// Messages returns the raw envelopes of a catchup result.
func (r *Response) Messages() ([]message.Wire, error) {
	var msgs []message.Wire
	if err := json.Unmarshal(r.Result, &msgs); err != nil {
		return nil, common.NewProtocolError("result is not a list of messages: %v", err)
	}
	return msgs, nil
}

// Marshal returns the JSON encoding of the response.
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// ExtendedResponse is a response tagged with the relay that sent it.
type ExtendedResponse struct {
	*Response
	ReceivedFrom string
}
