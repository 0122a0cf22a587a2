package http

import (
	"encoding/json"
	"net/http"

	"github.com/rentiva/rentiva-backend/internal/apperr"
	"github.com/rentiva/rentiva-backend/internal/service/device"
	"github.com/rentiva/rentiva-backend/internal/transport/http/middleware"
)

type DeviceHandler struct {
	Devices *device.Service
}

func NewDeviceHandler(devices *device.Service) *DeviceHandler {
	return &DeviceHandler{Devices: devices}
}

// Info handles POST /api/devices/info. The target device is always scoped to
// the caller's business and branch, a device id outside that scope is an
// authorization failure rather than a lookup miss.
func (h *DeviceHandler) Info(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperr.ErrMissingToken)
		return
	}

	var req struct {
		DeviceID string         `json:"deviceId"`
		Payload  map[string]any `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("invalid request body"))
		return
	}
	if req.DeviceID == "" {
		writeError(w, apperr.Validationf("deviceId is required"))
		return
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payload["type"] = "info"

	resp, err := h.Devices.Request(principal.BusinessID, principal.BranchID, req.DeviceID, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
