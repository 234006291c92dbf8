// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/nexauth/oidcserver/internal/clock"
	"github.com/nexauth/oidcserver/internal/store"
)

// DeviceStore is an in-memory store.DeviceStore, indexed by both
// device_code and user_code.
type DeviceStore struct {
	mu          sync.Mutex
	byDeviceCode map[string]deviceEntry
	byUserCode   map[string]string // user_code -> device_code
	clock        clock.Clock
}

type deviceEntry struct {
	req       store.DeviceAuthorizationRequest
	expiresAt time.Time
}

func NewDeviceStore() *DeviceStore {
	return &DeviceStore{
		byDeviceCode: make(map[string]deviceEntry),
		byUserCode:   make(map[string]string),
		clock:        clock.Real{},
	}
}

func (s *DeviceStore) Put(_ context.Context, deviceCode string, req store.DeviceAuthorizationRequest, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDeviceCode[deviceCode] = deviceEntry{req: req, expiresAt: s.clock.Now().Add(ttl)}
	s.byUserCode[req.UserCode] = deviceCode
	return nil
}

func (s *DeviceStore) getLocked(deviceCode string) (store.DeviceAuthorizationRequest, error) {
	e, ok := s.byDeviceCode[deviceCode]
	if !ok || s.clock.Now().After(e.expiresAt) {
		return store.DeviceAuthorizationRequest{}, store.ErrNotFound
	}
	return e.req, nil
}

func (s *DeviceStore) GetByDeviceCode(_ context.Context, deviceCode string) (store.DeviceAuthorizationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(deviceCode)
}

func (s *DeviceStore) GetByUserCode(_ context.Context, userCode string) (store.DeviceAuthorizationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deviceCode, ok := s.byUserCode[userCode]
	if !ok {
		return store.DeviceAuthorizationRequest{}, store.ErrNotFound
	}
	return s.getLocked(deviceCode)
}

func (s *DeviceStore) Update(_ context.Context, deviceCode string, req store.DeviceAuthorizationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byDeviceCode[deviceCode]
	if !ok || s.clock.Now().After(e.expiresAt) {
		return store.ErrNotFound
	}
	e.req = req
	s.byDeviceCode[deviceCode] = e
	s.byUserCode[req.UserCode] = deviceCode
	return nil
}

// TryGetAndRemoveByDeviceCode consumes the record atomically: used once a
// polling token request observes Authorized and wants to mint tokens
// exactly once.
func (s *DeviceStore) TryGetAndRemoveByDeviceCode(_ context.Context, deviceCode string) (store.DeviceAuthorizationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.getLocked(deviceCode)
	if err != nil {
		return store.DeviceAuthorizationRequest{}, err
	}
	delete(s.byDeviceCode, deviceCode)
	delete(s.byUserCode, req.UserCode)
	return req, nil
}
