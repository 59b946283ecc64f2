package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/accountgate/internal/flagx"
	"github.com/dmitrijs2005/accountgate/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// either "5m" style strings or integer nanoseconds. Absent keys leave the
// current value alone.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	ResetTokenValidityDuration  timex.Duration `json:"reset_token_validity_duration"`
	MaxLoginAttempts            int            `json:"max_login_attempts"`
	LockDuration                timex.Duration `json:"lock_duration"`
	BcryptCost                  int            `json:"bcrypt_cost"`
	LoginRateLimit              float64        `json:"login_rate_limit"`
	LoginRateBurst              int            `json:"login_rate_burst"`
	LogLevel                    string         `json:"log_level"`
}

// parseJson overlays values from the JSON config file, if one is named.
// An unreadable or malformed file panics: the process cannot start with a
// config it was told to use but could not read.
func parseJson(config *Config) {
	path := flagx.ConfigFilePath()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.ResetTokenValidityDuration.Duration > 0 {
		config.ResetTokenValidityDuration = c.ResetTokenValidityDuration.Duration
	}
	if c.LockDuration.Duration > 0 {
		config.LockDuration = c.LockDuration.Duration
	}
	if c.MaxLoginAttempts > 0 {
		config.MaxLoginAttempts = c.MaxLoginAttempts
	}
	if c.BcryptCost > 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.LoginRateLimit > 0 {
		config.LoginRateLimit = c.LoginRateLimit
	}
	if c.LoginRateBurst > 0 {
		config.LoginRateBurst = c.LoginRateBurst
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
