package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SuccessCode is the envelope code of a successful call.
const SuccessCode = 200

const envelopeSchema = `{
	"type": "object",
	"required": ["code"],
	"properties": {
		"code": {"type": "integer"},
		"message": {"type": "string"}
	}
}`

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type envelopeDecoder struct {
	schema *gojsonschema.Schema
}

func newEnvelopeDecoder() (*envelopeDecoder, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile envelope schema: %w", err)
	}
	return &envelopeDecoder{schema: schema}, nil
}

func (d *envelopeDecoder) decode(body []byte) (*envelope, error) {
	result, err := d.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("response envelope invalid: %s", strings.Join(msgs, "; "))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}

// Response is a successful call. Data holds the unwrapped "data" member;
// Raw keeps the whole envelope for endpoints that answer with other members
// such as "rows" or "user".
type Response struct {
	Code       int
	Message    string
	Data       json.RawMessage
	Raw        json.RawMessage
	HTTPStatus int
	RequestID  string
}

// HasData reports whether the envelope carried a non-null data member
func (r *Response) HasData() bool {
	return len(r.Data) > 0 && string(r.Data) != "null"
}

// Decode unmarshals the data member into v, or the whole envelope when the
// response has no data member.
func (r *Response) Decode(v interface{}) error {
	src := r.Raw
	if r.HasData() {
		src = r.Data
	}
	if err := json.Unmarshal(src, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// DecodeField unmarshals a named top-level envelope member into v
func (r *Response) DecodeField(field string, v interface{}) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(r.Raw, &members); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	raw, ok := members[field]
	if !ok {
		return fmt.Errorf("response has no %q member", field)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %q: %w", field, err)
	}
	return nil
}
