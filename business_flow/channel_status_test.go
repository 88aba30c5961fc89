package businessflow

import (
	"testing"

	"github.com/amirphl/wa-pool/models"
	"github.com/stretchr/testify/assert"
)

func TestMapGatewayState(t *testing.T) {
	tests := []struct {
		raw  string
		want models.ChannelStatus
	}{
		{"WORKING", models.ChannelStatusConnected},
		{"CONNECTED", models.ChannelStatusConnected},
		{"working", models.ChannelStatusConnected},
		{" STARTING ", models.ChannelStatusConnecting},
		{"SCAN_QR_CODE", models.ChannelStatusConnecting},
		{"FAILED", models.ChannelStatusFailed},
		{"STOPPED", models.ChannelStatusDisconnected},
		{"", models.ChannelStatusDisconnected},
		{"SOMETHING_NEW", models.ChannelStatusDisconnected},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := MapGatewayState(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}
