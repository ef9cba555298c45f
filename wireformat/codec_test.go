package wireformat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wasmpico/picohost/domain/entities"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
)

func TestTransactionRequest_RoundTrip(t *testing.T) {
	req := TransactionRequest{
		Handle: 0x10001,
		Operations: []entities.Operation{
			entities.Write([]byte{0x9F}),
			entities.DelayNs(500),
			entities.Read(3),
		},
	}

	data, err := Marshal(req)
	require.NoError(t, err)

	var got TransactionRequest
	require.NoError(t, Unmarshal(data, &got))
	assert.Equal(t, req, got)
}

func TestMarshal_Canonical(t *testing.T) {
	a, err := Marshal(ConfigureRequest{Handle: 1, Config: entities.DefaultBusConfig()})
	require.NoError(t, err)
	b, err := Marshal(ConfigureRequest{Handle: 1, Config: entities.DefaultBusConfig()})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnmarshal_Empty(t *testing.T) {
	var req DeviceNamesRequest
	assert.NoError(t, Unmarshal(nil, &req))
}

func TestUnmarshal_Malformed(t *testing.T) {
	var req ReadRequest
	err := Unmarshal([]byte{0xFF, 0x00}, &req)

	var wfe *domainerrors.WireFormatError
	require.True(t, errors.As(err, &wfe))
	assert.Equal(t, "unmarshal", wfe.Operation)
	assert.Equal(t, "VALIDATION_ERROR", wfe.ToErrorDetail().Code)
}

func TestErrorResponse_Encodes(t *testing.T) {
	resp := DataResponse{Error: &ErrorDetail{Message: "Read failed", Type: "device", Code: "DEVICE_ERROR"}}
	data, err := Marshal(resp)
	require.NoError(t, err)

	var got DataResponse
	require.NoError(t, Unmarshal(data, &got))
	require.NotNil(t, got.Error)
	assert.Equal(t, "DEVICE_ERROR", got.Error.Code)
	assert.Nil(t, got.Data)
}
