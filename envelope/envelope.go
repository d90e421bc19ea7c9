// Package envelope is the JSON framing shared by the MQTT and WebSocket
// bindings of the square service.
//
// A call is a Request carrying the method name and its params, answered by a
// Response with the same ID. Status follows the HTTP codes of the core server.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	srpc "github.com/xizhibei/go-square-rpc"
	"github.com/xizhibei/go-square-rpc/compressor"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Request represents a JSON-RPC request.
//
// Encoding names the compression of Params ("gzip", "deflate" or "br").
// Compressed params travel as a base64 JSON string.
type Request struct {
	ID       uint64            `json:"id"`
	Method   string            `json:"method"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Encoding string            `json:"encoding,omitempty"`
	Params   json.RawMessage   `json:"params"`
}

// Response represents a JSON-RPC response. A 200 response uses the encoding
// of its request, error payloads are never compressed.
type Response struct {
	ID       uint64            `json:"id"`
	Method   string            `json:"method"`
	Status   int               `json:"status"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Encoding string            `json:"encoding,omitempty"`
	Data     json.RawMessage   `json:"data"`
}

// ErrorData is the payload of a non 200 response.
type ErrorData struct {
	Message string `json:"message"`
}

// OKResponse creates a 200 response carrying x, compressed like the request.
// A result that cannot be encoded turns into a 500.
func (r *Request) OKResponse(x interface{}) *Response {
	data, err := MarshalPayload(x)
	if err == nil {
		data, err = PackBody(r.Encoding, data)
	}
	if err != nil {
		return r.ErrResponse(srpc.RPCStatusServerError, errors.Wrap(err, "encode result"))
	}

	return &Response{
		ID:       r.ID,
		Method:   r.Method,
		Status:   srpc.RPCStatusOK,
		Encoding: r.Encoding,
		Data:     data,
	}
}

// ErrResponse creates a response with status and {"message": err}.
func (r *Request) ErrResponse(status int, err error) *Response {
	data, _ := json.Marshal(ErrorData{Message: err.Error()})
	return &Response{
		ID:     r.ID,
		Method: r.Method,
		Status: status,
		Data:   data,
	}
}

// Err returns nil for a 200 response and "status <code>: <message>"
// otherwise.
func (r *Response) Err() error {
	if r.Status == srpc.RPCStatusOK {
		return nil
	}
	var data ErrorData
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return errors.Wrapf(err, "status %d", r.Status)
	}
	return fmt.Errorf("status %d: %s", r.Status, data.Message)
}

// Result decodes the data of a 200 response into x.
func (r *Response) Result(x interface{}) error {
	data, err := UnpackBody(r.Encoding, r.Data)
	if err != nil {
		return err
	}
	return UnmarshalPayload(data, x)
}

var (
	protoMarshal   = protojson.MarshalOptions{EmitUnpopulated: true}
	protoUnmarshal = protojson.UnmarshalOptions{DiscardUnknown: true}
)

// MarshalPayload encodes proto messages with protojson, which also handles
// non-finite doubles, and everything else with encoding/json.
func MarshalPayload(v interface{}) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return protoMarshal.Marshal(m)
	}
	return json.Marshal(v)
}

// UnmarshalPayload reverses MarshalPayload. Missing params decode into an
// empty proto message.
func UnmarshalPayload(data []byte, v interface{}) error {
	if m, ok := v.(proto.Message); ok {
		if len(data) == 0 || string(data) == "null" {
			data = []byte("{}")
		}
		return protoUnmarshal.Unmarshal(data, m)
	}
	return json.Unmarshal(data, v)
}

// Bind decodes params into request. Plain structs are checked against their
// validate tags afterwards.
func Bind(v *validator.Validate, params []byte, request interface{}) error {
	if err := UnmarshalPayload(params, request); err != nil {
		return err
	}
	if _, ok := request.(proto.Message); ok {
		return nil
	}
	if reflect.Indirect(reflect.ValueOf(request)).Kind() != reflect.Struct {
		return nil
	}
	return v.Struct(request)
}

var compressors = compressor.NewCompressorManager()

// PackBody compresses raw with the named encoding.
func PackBody(encoding string, raw []byte) (json.RawMessage, error) {
	enc, err := compressor.ParseContentEncoding(encoding)
	if err != nil {
		return nil, err
	}
	if enc == compressor.ContentEncodingPlain {
		return raw, nil
	}

	data, err := compressors.Compress(enc, raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(data))
}

// UnpackBody reverses PackBody.
func UnpackBody(encoding string, body json.RawMessage) ([]byte, error) {
	enc, err := compressor.ParseContentEncoding(encoding)
	if err != nil {
		return nil, err
	}
	if enc == compressor.ContentEncodingPlain {
		return body, nil
	}

	var s string
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, errors.Wrapf(err, "%s body must be a base64 string", encoding)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s body", encoding)
	}
	return compressors.Decompress(enc, data)
}
