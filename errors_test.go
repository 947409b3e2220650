package d3xx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusErrorOK(t *testing.T) {
	require.NoError(t, statusError("FT_Create", StatusOK))
}

func TestStatusErrorSentinels(t *testing.T) {
	tests := []struct {
		status Status
		want   error
	}{
		{StatusDeviceNotFound, ErrDeviceNotFound},
		{StatusDeviceNotConnected, ErrDeviceNotFound},
		{StatusBusy, ErrDeviceAlreadyOpen},
		{StatusIncorrectDevicePath, ErrPermissionDenied},
		{StatusTimeout, ErrTimeout},
		{StatusOperationAborted, ErrOperationCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			err := statusError("FT_ReadPipe", tt.status)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "FT_ReadPipe")
		})
	}
}

func TestStatusErrorUnclassified(t *testing.T) {
	err := statusError("FT_WritePipe", StatusIOError)
	require.Error(t, err)
	var de *DriverError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "FT_WritePipe", de.Op)
	assert.Equal(t, StatusIOError, de.Status)
	// The raw status is reachable through Unwrap.
	assert.ErrorIs(t, err, StatusIOError)
	assert.Equal(t, "FT_WritePipe failed: FT_STATUS 4 (I/O error)", err.Error())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "timeout", StatusTimeout.String())
	assert.Equal(t, "other error", StatusOtherError.String())
	// Codes above the defined range fold into the catch-all.
	assert.Equal(t, "other error", Status(1000).String())
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrDeviceNotFound,
		ErrDeviceAlreadyOpen,
		ErrPermissionDenied,
		ErrDeviceClosed,
		ErrTimeout,
		ErrInvalidPipeDirection,
		ErrInvalidGpioPin,
		ErrOperationCancelled,
		ErrNotificationBusy,
		ErrNotSupported,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v matches %v", a, b)
			}
		}
	}
}
