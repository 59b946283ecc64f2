// Package config holds the settings of the accountgate CLI client.
package config

import "time"

// Transport names accepted in Config.Transport.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Config holds runtime settings for the accountgate CLI.
//
// Fields:
//   - ServerURL: base URL of the HTTP API.
//   - ServerEndpointAddr: host:port of the gRPC endpoint.
//   - Transport: "http" or "grpc".
//   - RequestTimeout: per-call deadline.
type Config struct {
	ServerURL          string
	ServerEndpointAddr string
	Transport          string
	RequestTimeout     time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:3000"
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.Transport = TransportHTTP
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
