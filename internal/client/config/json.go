package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/accountgate/internal/flagx"
	"github.com/dmitrijs2005/accountgate/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ServerURL          string         `json:"server_url"`
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	Transport          string         `json:"transport"`
	RequestTimeout     timex.Duration `json:"request_timeout"`
}

// parseJson overlays cfg with the JSON file named by -c/-config or CONFIG.
// Absent keys keep their current value. Read or decode errors panic.
func parseJson(cfg *Config) {
	path := flagx.ConfigFilePath()
	if path == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.Transport != "" {
		cfg.Transport = jc.Transport
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}
