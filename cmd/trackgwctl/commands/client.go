package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/intelcon-group/trackgw/internal/session"
)

// errUnexpectedStatus is returned when the admin API answers with a
// non-200 status.
var errUnexpectedStatus = errors.New("unexpected response status")

// statsReply mirrors the GET /jimi/stats body.
type statsReply struct {
	DeviceCount int                `json:"device_count"`
	Sessions    []session.Snapshot `json:"sessions"`
}

// fetchStats queries the admin API for the current session set.
func fetchStats(ctx context.Context) (*statsReply, error) {
	url := "http://" + serverAddr + "/jimi/stats"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", errUnexpectedStatus, resp.Status)
	}

	var reply statsReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}

	return &reply, nil
}
