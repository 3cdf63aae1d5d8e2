// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type DeviceState string

const (
	DeviceStopped  DeviceState = "Stopped"
	DeviceStarting DeviceState = "Starting"
	DeviceReady    DeviceState = "Ready"
	DeviceError    DeviceState = "Error"
	DeviceStopping DeviceState = "Stopping"
	DeviceUnknown  DeviceState = "Unknown"
)

// DeviceInfo describes a cloud device hosting task execution.
type DeviceInfo struct {
	ID            string
	ReferenceName string
	State         DeviceState
	Message       string
	Platform      string
}

// GetDevice fetches the current state of a cloud device. The endpoint
// accepts either the device UUID or its reference name.
func (c *Client) GetDevice(ctx context.Context, deviceIDOrRef string) (DeviceInfo, error) {
	data, err := c.do(ctx, http.MethodGet, "daas/devices/"+deviceIDOrRef, nil, nil)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("get device status: %w", err)
	}

	var resp struct {
		ID            string `json:"id"`
		ReferenceName string `json:"referenceName"`
		State         struct {
			Current string `json:"current"`
			Message string `json:"message"`
		} `json:"state"`
		Platform string `json:"platform"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return DeviceInfo{}, fmt.Errorf("decode device: %w", err)
	}

	state := DeviceState(resp.State.Current)
	switch state {
	case DeviceStopped, DeviceStarting, DeviceReady, DeviceError, DeviceStopping:
	default:
		state = DeviceUnknown
	}

	return DeviceInfo{
		ID:            resp.ID,
		ReferenceName: resp.ReferenceName,
		State:         state,
		Message:       resp.State.Message,
		Platform:      resp.Platform,
	}, nil
}

// ResolveDevice resolves a device identifier (UUID or reference name) to
// the device UUID.
func (c *Client) ResolveDevice(ctx context.Context, deviceIDOrRef string) (string, error) {
	info, err := c.GetDevice(ctx, deviceIDOrRef)
	if err != nil {
		return "", fmt.Errorf("resolve device %q: %w", deviceIDOrRef, err)
	}
	return info.ID, nil
}

// KeepAlive pings a device so the platform does not shut it down as idle.
func (c *Client) KeepAlive(ctx context.Context, deviceID string) error {
	_, err := c.do(ctx, http.MethodPost, "daas/devices/"+deviceID+"/keep-alive", nil, nil)
	if err != nil {
		return fmt.Errorf("keep device alive: %w", err)
	}
	return nil
}

// Screenshot captures the device screen and returns the raw image bytes.
func (c *Client) Screenshot(ctx context.Context, deviceID string) ([]byte, error) {
	data, err := c.do(ctx, http.MethodGet, "daas/devices/"+deviceID+"/screenshot", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get screenshot: %w", err)
	}
	return data, nil
}
