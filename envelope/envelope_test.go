package envelope

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	srpc "github.com/xizhibei/go-square-rpc"
	"github.com/xizhibei/go-square-rpc/compressor"
	"github.com/xizhibei/go-square-rpc/squarepb"
)

func TestOKResponse(t *testing.T) {
	req := &Request{ID: 3, Method: "square"}
	res := req.OKResponse(&squarepb.SquareResponse{Number: math.Inf(1)})

	assert.Equal(t, uint64(3), res.ID)
	assert.Equal(t, "square", res.Method)
	assert.Equal(t, srpc.RPCStatusOK, res.Status)
	assert.JSONEq(t, `{"number":"Infinity"}`, string(res.Data))
	assert.NoError(t, res.Err())

	var out squarepb.SquareResponse
	require.NoError(t, res.Result(&out))
	assert.True(t, math.IsInf(out.Number, 1))
}

func TestOKResponseUnencodable(t *testing.T) {
	req := &Request{ID: 1, Method: "square"}
	res := req.OKResponse(make(chan int))

	assert.Equal(t, srpc.RPCStatusServerError, res.Status)
	assert.Contains(t, res.Err().Error(), "status 500: encode result")
}

func TestErrResponse(t *testing.T) {
	req := &Request{ID: 2, Method: "cube", Encoding: "gzip"}
	res := req.ErrResponse(srpc.RPCStatusNotFound, errors.New("unknown method"))

	assert.Empty(t, res.Encoding)
	assert.JSONEq(t, `{"message":"unknown method"}`, string(res.Data))
	assert.EqualError(t, res.Err(), "status 404: unknown method")
}

func TestErrMalformed(t *testing.T) {
	res := &Response{Status: srpc.RPCStatusServerError, Data: json.RawMessage(`[`)}
	assert.ErrorContains(t, res.Err(), "status 500")
}

func TestUnmarshalPayloadEmpty(t *testing.T) {
	for _, data := range []string{"", "null", "{}"} {
		req := &squarepb.SquareRequest{Number: 5}
		require.NoError(t, UnmarshalPayload([]byte(data), req))
		assert.Zero(t, req.Number, "%q", data)
	}
}

func TestUnmarshalPayloadUnknownField(t *testing.T) {
	var req squarepb.SquareRequest
	require.NoError(t, UnmarshalPayload([]byte(`{"number":2,"extra":true}`), &req))
	assert.Equal(t, float64(2), req.Number)
}

type named struct {
	Name string `json:"name" validate:"required"`
}

func TestBind(t *testing.T) {
	v := validator.New()

	var n named
	assert.Error(t, Bind(v, []byte(`{}`), &n))
	require.NoError(t, Bind(v, []byte(`{"name":"a"}`), &n))
	assert.Equal(t, "a", n.Name)

	var m map[string]interface{}
	assert.NoError(t, Bind(v, []byte(`{"x":1}`), &m))

	var req squarepb.SquareRequest
	assert.NoError(t, Bind(v, []byte(`{"number":1.5}`), &req))
	assert.Equal(t, 1.5, req.Number)

	assert.Error(t, Bind(v, []byte(`{"number":"x"}`), &req))
}

func TestPackBody(t *testing.T) {
	raw := []byte(`{"number":4}`)

	for _, name := range []string{"", "identity"} {
		body, err := PackBody(name, raw)
		require.NoError(t, err)
		assert.Equal(t, raw, []byte(body))
	}

	for _, enc := range []compressor.ContentEncoding{
		compressor.ContentEncodingGzip,
		compressor.ContentEncodingDeflate,
		compressor.ContentEncodingBrotli,
	} {
		body, err := PackBody(enc.String(), raw)
		require.NoError(t, err)

		var s string
		require.NoError(t, json.Unmarshal(body, &s), enc.String())

		out, err := UnpackBody(enc.String(), body)
		require.NoError(t, err)
		assert.Equal(t, raw, out)
	}
}

func TestUnpackBodyErrors(t *testing.T) {
	_, err := UnpackBody("zstd", json.RawMessage(`"AAAA"`))
	assert.ErrorIs(t, err, compressor.ErrUnknownContentEncoding)

	_, err = UnpackBody("gzip", json.RawMessage(`{"number":4}`))
	assert.ErrorContains(t, err, "must be a base64 string")

	_, err = UnpackBody("gzip", json.RawMessage(`"%%%"`))
	assert.ErrorContains(t, err, "decode gzip body")

	_, err = PackBody("zstd", []byte(`{}`))
	assert.ErrorIs(t, err, compressor.ErrUnknownContentEncoding)
}
