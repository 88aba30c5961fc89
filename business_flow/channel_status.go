package businessflow

import (
	"strings"

	"github.com/amirphl/wa-pool/models"
)

// gatewayStateMap holds every vendor state with a non-default local status
var gatewayStateMap = map[string]models.ChannelStatus{
	"WORKING":      models.ChannelStatusConnected,
	"CONNECTED":    models.ChannelStatusConnected,
	"STARTING":     models.ChannelStatusConnecting,
	"SCAN_QR_CODE": models.ChannelStatusConnecting,
	"FAILED":       models.ChannelStatusFailed,
}

// MapGatewayState maps a raw gateway state onto the local state machine.
// Anything unrecognised is disconnected.
func MapGatewayState(raw string) models.ChannelStatus {
	if status, ok := gatewayStateMap[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return status
	}
	return models.ChannelStatusDisconnected
}
