package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_JSON_Status(t *testing.T) {
	enc, err := Encode("SET", StatusReply("OK"), FormatJSON, "")
	require.NoError(t, err)
	assert.Equal(t, "application/json", enc.ContentType)

	var body map[string]string
	require.NoError(t, json.Unmarshal(enc.Body, &body))
	assert.Equal(t, "OK", body["SET"])
}

func TestEncode_JSON_Okay(t *testing.T) {
	enc, err := Encode("SET", OkayReply(), FormatJSON, "")
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.Unmarshal(enc.Body, &body))
	assert.Equal(t, "OK", body["SET"])
}

func TestEncode_JSON_Nil(t *testing.T) {
	enc, err := Encode("GET", NilReply(), FormatJSON, "")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(enc.Body, &body))
	assert.Nil(t, body["GET"])
}

func TestEncode_JSON_Callback(t *testing.T) {
	enc, err := Encode("GET", BytesReply([]byte("v")), FormatJSON, "myCb")
	require.NoError(t, err)
	assert.Equal(t, "application/javascript; charset=utf-8", enc.ContentType)
	assert.Equal(t, `myCb({"GET":"v"})`, string(enc.Body))
}

func TestEncode_RAW_Scalar(t *testing.T) {
	enc, err := Encode("GET", BytesReply([]byte("v")), FormatRAW, "")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", enc.ContentType)
	assert.Equal(t, "v", string(enc.Body))
}

func TestEncode_RAW_Nil(t *testing.T) {
	enc, err := Encode("GET", NilReply(), FormatRAW, "")
	require.NoError(t, err)
	assert.Equal(t, "", string(enc.Body))
}

func TestEncode_RAW_Array(t *testing.T) {
	enc, err := Encode("KEYS", ArrayReply([]Reply{BytesReply([]byte("a")), BytesReply([]byte("b"))}), FormatRAW, "")
	require.NoError(t, err)
	assert.Equal(t, "a\nb", string(enc.Body))
}

func TestEncode_MSGPACK_ContentType(t *testing.T) {
	enc, err := Encode("GET", BytesReply([]byte("v")), FormatMSGPACK, "")
	require.NoError(t, err)
	assert.Equal(t, "application/x-msgpack", enc.ContentType)
	assert.NotEmpty(t, enc.Body)
}

func TestEncode_JSON_LossyUTF8ForBinary(t *testing.T) {
	binary := []byte{0xff, 0xfe, 0x00}
	enc, err := Encode("GET", BytesReply(binary), FormatJSON, "")
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(enc.Body, &body))
	assert.NotEqual(t, string(binary), body["GET"])
}

func TestEncode_Array_Nested(t *testing.T) {
	reply := ArrayReply([]Reply{
		IntegerReply(1),
		ArrayReply([]Reply{BytesReply([]byte("x")), BytesReply([]byte("y"))}),
	})
	enc, err := Encode("CMD", reply, FormatJSON, "")
	require.NoError(t, err)

	var body map[string][]any
	require.NoError(t, json.Unmarshal(enc.Body, &body))
	require.Len(t, body["CMD"], 2)
}
