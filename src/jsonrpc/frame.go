package jsonrpc

import (
	"encoding/json"

	"github.com/popstellar/popclient/src/common"
)

type frameKind struct {
	Method *string          `json:"method"`
	Result json.RawMessage  `json:"result"`
	Error  *json.RawMessage `json:"error"`
}

// ParseFrame decodes an inbound frame, which is either a request or a
// response. Exactly one of the returned values is non-nil on success.
func ParseFrame(raw []byte) (*Request, *Response, error) {
	var p frameKind
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, common.NewProtocolError("frame is not a JSON object: %v", err)
	}

	if p.Method != nil {
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, nil, common.NewProtocolError("malformed request: %v", err)
		}
		if err := req.Validate(); err != nil {
			return nil, nil, err
		}
		return &req, nil, nil
	}

	if p.Result != nil || p.Error != nil {
		var resp Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, nil, common.NewProtocolError("malformed response: %v", err)
		}
		if err := resp.Validate(); err != nil {
			return nil, nil, err
		}
		return nil, &resp, nil
	}

	return nil, nil, common.NewProtocolError("frame is neither a request nor a response")
}
