package control

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client forwards an edge-received /internal/circuit-reset request to the
// engine's control surface over loopback HTTP. It satisfies the capture
// package's CircuitResetter interface.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client targeting the engine's control surface at addr
// (host:port, typically loopback).
func NewClient(addr string, timeout time.Duration) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: timeout},
	}
}

// ResetCircuit calls the engine's /internal/circuit-reset endpoint.
func (c *Client) ResetCircuit() error {
	resp, err := c.http.Get(c.baseURL + "/internal/circuit-reset")
	if err != nil {
		return fmt.Errorf("control: circuit-reset request: %w", err)
	}
	defer resp.Body.Close()

	var ack struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return fmt.Errorf("control: decoding circuit-reset response: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("control: engine refused circuit reset: %s", ack.Error)
	}
	return nil
}
