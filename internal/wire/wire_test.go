package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tempizhere/gotracker/internal/models"
)

func TestEncodeDecodeString(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "plain ascii", input: "http://example.com/abc"},
		{name: "empty string", input: ""},
		{name: "backslash", input: `a\b\\c`},
		{name: "invalid utf-8 bytes", input: string([]byte{0xff, 0xfe, 0x01, 'a'})},
		{name: "latin-1 bytes", input: string([]byte{'h', 0xe9, 'l', 'l', 'o'})},
		{name: "control characters", input: "line1\r\nline2\x00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeString(tt.input)
			decoded, err := DecodeString(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.input, decoded)
		})
	}
}

func TestEncodeStringIsHex(t *testing.T) {
	encoded := EncodeString("abc")
	assert.Equal(t, "616263", encoded)

	encoded = EncodeString(string([]byte{0xff}))
	assert.Equal(t, "5C786666", encoded)
}

func TestDecodeStringErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not hex", input: "zz"},
		{name: "odd length", input: "616"},
		{name: "dangling backslash", input: "5C"},
		{name: "unknown escape", input: "5C6E"},
		{name: "truncated hex escape", input: "5C7866"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeString(tt.input)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestEncodeDecodeResults(t *testing.T) {
	original := map[string]models.ResultPayload{
		"c":   {URL: "http://x.test", Encoding: "ascii"},
		"d\t": {URL: string([]byte{'h', 0xf8}), Encoding: "latin-1"},
	}

	decoded, err := DecodeResults(EncodeResults(original))
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeResultsInvalid(t *testing.T) {
	_, err := DecodeResults(map[string]models.ResultPayload{
		"xx": {URL: "not-hex!", Encoding: "616263"},
	})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
