// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package config holds the server's tunable parameters: CLI-flag defaults,
// optionally overridden wholesale by a JSON file.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/fatih/color"
)

// Config is the full set of server parameters.
type Config struct {
	Listen               string `json:"listen"`
	KeepAliveInterval    int    `json:"keepalive_interval"`     // seconds
	KeepAliveCheckPeriod int    `json:"keepalive_check_period"` // multiplier of KeepAliveInterval
	KeepAliveProd        int    `json:"keepalive_prod"`         // seconds
	MetricsLog           string `json:"metrics_log"`
	MetricsPeriod        int    `json:"metrics_period"` // seconds
	LogFile              string `json:"log"`
	Quiet                bool   `json:"quiet"`
}

// parseJSONConfig overrides config wholesale with the contents of path.
func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewDecoder(file).Decode(config)
}

// Load applies path's JSON contents over config, if path is non-empty.
func Load(config *Config, path string) error {
	if path == "" {
		return nil
	}
	return parseJSONConfig(config, path)
}

// Validate checks the configured parameters, prints color.Red warnings for
// combinations that will work but are probably not what the operator meant,
// and fixes non-positive values that would otherwise panic a time.Ticker.
func (c *Config) Validate() {
	if c.KeepAliveInterval <= 0 {
		color.Red("WARNING: keepalive_interval must be positive; defaulting to 10.")
		c.KeepAliveInterval = 10
	}
	if c.KeepAliveProd < 2*c.KeepAliveInterval {
		color.Red("WARNING: keepalive_prod (%ds) is less than 2x keepalive_interval (%ds); connections may be reported as timed out prematurely.",
			c.KeepAliveProd, c.KeepAliveInterval)
	}
	if c.KeepAliveCheckPeriod <= 0 {
		color.Red("WARNING: keepalive_check_period must be positive; defaulting to 1.")
		c.KeepAliveCheckPeriod = 1
	}
	if c.MetricsLog != "" && c.MetricsPeriod <= 0 {
		color.Red("WARNING: metrics_period must be positive; defaulting to 60.")
		c.MetricsPeriod = 60
	}
}

// ScanInterval is the configured period between liveness scans.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.KeepAliveInterval) * time.Duration(c.KeepAliveCheckPeriod) * time.Second
}

// ProdDuration is the configured heartbeat-age threshold.
func (c *Config) ProdDuration() time.Duration {
	return time.Duration(c.KeepAliveProd) * time.Second
}

// MetricsInterval is the configured period between metrics snapshots.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.MetricsPeriod) * time.Second
}

// Default returns the out-of-the-box configuration, matching the flag
// defaults wired in cmd/connhubd.
func Default() Config {
	return Config{
		Listen:               ":7000",
		KeepAliveInterval:    10,
		KeepAliveCheckPeriod: 3,
		KeepAliveProd:        30,
		MetricsPeriod:        60,
	}
}
