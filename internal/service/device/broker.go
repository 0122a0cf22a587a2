// Package device brokers request/response traffic between HTTP handlers and
// remote agents holding persistent connections.
//
// The registry is in-process only: a device's control connection and every
// request dispatched to it must land on the same process instance. Behind a
// load balancer that means sticky routing (or replacing this broker with a
// shared one); running multiple instances without stickiness silently loses
// devices.
package device

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rentiva/rentiva-backend/internal/apperr"
)

// Key identifies a registered device within its tenant and branch.
type Key struct {
	BusinessID int64
	BranchID   int64
	DeviceID   string
}

// Conn is the broker's view of a device channel. *websocket.Conn satisfies it
// once wrapped for write locking by the transport layer.
type Conn interface {
	WriteJSON(v any) error
}

type registration struct {
	conn Conn
}

type pendingRequest struct {
	result chan map[string]any
}

// Broker holds the device registry and the pending-request table. Both maps
// are bounded: registrations die with their connections, pending entries are
// removed exactly once by whichever of response or timeout comes first.
type Broker struct {
	mu      sync.RWMutex
	devices map[Key]*registration
	pending map[string]*pendingRequest

	timeout time.Duration
	newID   func() string
}

func NewBroker(timeout time.Duration) *Broker {
	return &Broker{
		devices: make(map[Key]*registration),
		pending: make(map[string]*pendingRequest),
		timeout: timeout,
		newID:   uuid.NewString,
	}
}

// Register stores the channel under its composite key. Last registration
// wins: re-registering an existing key replaces the previous channel.
func (b *Broker) Register(key Key, conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[key] = &registration{conn: conn}
}

// Unregister removes the key only if it still maps to this connection, so a
// stale close never evicts a newer registration.
func (b *Broker) Unregister(key Key, conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if reg, ok := b.devices[key]; ok && reg.conn == conn {
		delete(b.devices, key)
	}
}

// IsRegistered reports whether a channel is currently registered for key.
func (b *Broker) IsRegistered(key Key) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.devices[key]
	return ok
}

// LookupDevice finds the key a device id is currently registered under,
// regardless of tenant. Callers use it to distinguish "offline" from
// "registered to another business".
func (b *Broker) LookupDevice(deviceID string) (Key, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for key := range b.devices {
		if key.DeviceID == deviceID {
			return key, true
		}
	}
	return Key{}, false
}

// Dispatch sends payload to the device registered under key and waits for the
// matching response or the timeout, whichever comes first. No channel for the
// key fails immediately with ErrDeviceOffline and creates no timer.
func (b *Broker) Dispatch(key Key, payload map[string]any) (map[string]any, error) {
	b.mu.Lock()
	reg, ok := b.devices[key]
	if !ok {
		b.mu.Unlock()
		return nil, apperr.ErrDeviceOffline
	}

	requestID := b.newID()
	pending := &pendingRequest{result: make(chan map[string]any, 1)}
	b.pending[requestID] = pending
	b.mu.Unlock()

	message := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		message[k] = v
	}
	message["requestId"] = requestID

	if err := reg.conn.WriteJSON(message); err != nil {
		b.removePending(requestID)
		return nil, apperr.WrapAs(apperr.ErrDeviceOffline, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case response := <-pending.result:
		return response, nil
	case <-timer.C:
		if !b.removePending(requestID) {
			// Resolved between timer fire and removal; take the response.
			return <-pending.result, nil
		}
		return nil, apperr.ErrDeviceResponseTimeout
	}
}

// Resolve delivers an inbound response to the waiter for requestID. Reports
// false for unknown ids: a response landing after its timeout is an expected
// race and is simply dropped.
func (b *Broker) Resolve(requestID string, payload map[string]any) bool {
	b.mu.Lock()
	pending, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
	}
	b.mu.Unlock()

	if !ok {
		return false
	}
	pending.result <- payload
	return true
}

func (b *Broker) removePending(requestID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[requestID]; !ok {
		return false
	}
	delete(b.pending, requestID)
	return true
}

// PendingCount reports the size of the pending-request table.
func (b *Broker) PendingCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pending)
}

// RegisteredCount reports the size of the device registry.
func (b *Broker) RegisteredCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.devices)
}

// Service layers tenant access control over the broker: a principal may only
// reach devices registered under its own business and branch.
type Service struct {
	broker *Broker
}

func NewService(broker *Broker) *Service {
	return &Service{broker: broker}
}

// Request dispatches payload to the principal's device. A device id found
// registered under a different business or branch is a hard authorization
// failure, not an offline report.
func (s *Service) Request(businessID, branchID int64, deviceID string, payload map[string]any) (map[string]any, error) {
	key := Key{BusinessID: businessID, BranchID: branchID, DeviceID: deviceID}

	if !s.broker.IsRegistered(key) {
		if actual, found := s.broker.LookupDevice(deviceID); found && actual != key {
			log.Printf("[DEVICE] Cross-tenant access denied: device %s registered to business %d branch %d",
				deviceID, actual.BusinessID, actual.BranchID)
			return nil, apperr.ErrDeviceForbidden
		}
		return nil, apperr.ErrDeviceOffline
	}

	return s.broker.Dispatch(key, payload)
}
