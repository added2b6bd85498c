// File: httpx/json_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httpx

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteJSONSuccessEnvelope(t *testing.T) {
	resp := NewHttpResponse()
	err := WriteJSON(resp, 200, SuccessResult(0, "ok", map[string]string{"id": "42"}))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "application/json; charset=utf-8", resp.Headers["Content-Type"])

	var decoded Result
	require.NoError(t, json.Unmarshal(resp.Body, &decoded))
	require.True(t, decoded.Success)
	require.Equal(t, "ok", decoded.Message)
}

func TestWriteJSONErrorEnvelopeOmitsData(t *testing.T) {
	resp := NewHttpResponse()
	err := WriteJSON(resp, 400, ErrorResult(400, "bad request"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &raw))
	_, hasData := raw["data"]
	require.False(t, hasData)
	require.Equal(t, false, raw["success"])
}
