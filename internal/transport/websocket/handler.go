// Package websocket is the wire layer of the device channel: it upgrades
// connections, handles the register handshake and routes responses back to
// the broker.
package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rentiva/rentiva-backend/internal/service/device"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Handler manages device channel connections.
type Handler struct {
	Broker   *device.Broker
	Upgrader websocket.Upgrader
}

func NewHandler(broker *device.Broker, checkOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		Broker: broker,
		Upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleDeviceSocket upgrades the connection and runs its message loop.
func (h *Handler) HandleDeviceSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}
	h.handleConnection(raw)
}

func (h *Handler) handleConnection(raw *websocket.Conn) {
	conn := newLockedConn(raw)

	raw.SetReadDeadline(time.Now().Add(readTimeout))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	stopPing := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.Ping(); err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	var registeredKey device.Key
	var registered bool

	defer func() {
		close(stopPing)
		if registered {
			h.Broker.Unregister(registeredKey, conn)
			log.Printf("[WS] Device %s disconnected", registeredKey.DeviceID)
		}
		raw.Close()
	}()

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Device channel closed unexpectedly: %v", err)
			}
			return
		}

		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[WS] Invalid message format: %v", err)
			continue
		}

		// Response correlation takes priority over every other message type:
		// any message carrying a known requestId resolves that request.
		if requestID, ok := msg["requestId"].(string); ok && requestID != "" {
			if h.Broker.Resolve(requestID, msg) {
				continue
			}
			// Unmatched ids fall through; a late response with a dead id is
			// an expected race and is dropped below unless it re-registers.
		}

		msgType, _ := msg["type"].(string)
		if msgType == "register" {
			registeredKey, registered = h.handleRegister(conn, msg, registeredKey, registered)
		}
	}
}

func (h *Handler) handleRegister(conn *lockedConn, msg map[string]any, currentKey device.Key, wasRegistered bool) (device.Key, bool) {
	deviceID, _ := msg["deviceId"].(string)
	businessID := intField(msg, "businessId")
	branchID := intField(msg, "branchId")

	if deviceID == "" || businessID == 0 || branchID == 0 {
		// The client may retry with a complete message; the socket stays open.
		conn.WriteJSON(map[string]any{
			"type":   "register_failed",
			"reason": "deviceId, businessId and branchId are required",
		})
		return currentKey, wasRegistered
	}

	key := device.Key{BusinessID: businessID, BranchID: branchID, DeviceID: deviceID}
	if wasRegistered && currentKey != key {
		h.Broker.Unregister(currentKey, conn)
	}
	h.Broker.Register(key, conn)
	log.Printf("[WS] Device %s registered for business %d branch %d", deviceID, businessID, branchID)

	conn.WriteJSON(map[string]any{
		"type":       "registered",
		"deviceId":   deviceID,
		"businessId": businessID,
		"branchId":   branchID,
	})
	return key, true
}

func intField(msg map[string]any, field string) int64 {
	switch v := msg[field].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}
