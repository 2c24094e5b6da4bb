package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	controlAddr     string
	queueCapacity   int
	logFormat       string
	logLevel        string
	metricsAddr     string
	handshakeTO     time.Duration
	reportInterval  time.Duration
	mdnsEnable      bool
	mdnsName        string
}

const (
	defaultControlAddr    = "0.0.0.0:7000"
	defaultQueueCapacity  = 10_000
	defaultHandshakeTO    = 5 * time.Second
	defaultReportInterval = time.Second
)

// parseFlags parses flags, applies QPIPE_* environment overrides, then
// applies up to two positional arguments (control address, queue capacity),
// which take precedence over both flags and environment.
func parseFlags(args []string) (*appConfig, error) {
	fs := newFlagSet()
	logFormat := fs.String("log-format", "text", "Log format: text|json")
	logLevel := fs.String("log-level", "warn", "Log level: debug|info|warn|error")
	metricsAddr := fs.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	handshakeTO := fs.Duration("handshake-timeout", defaultHandshakeTO, "Ephemeral data-port authentication timeout")
	reportInterval := fs.Duration("report-interval", defaultReportInterval, "Statistics reporter interval")
	mdnsEnable := fs.Bool("mdns-enable", false, "Enable mDNS advertisement of the control port")
	mdnsName := fs.String("mdns-name", "", "mDNS instance name (default qpipe-orchestrator-<hostname>)")

	positional, err := fs.Parse(args)
	if err != nil {
		return nil, err
	}

	cfg := &appConfig{
		controlAddr:    defaultControlAddr,
		queueCapacity:  defaultQueueCapacity,
		logFormat:      *logFormat,
		logLevel:       *logLevel,
		metricsAddr:    *metricsAddr,
		handshakeTO:    *handshakeTO,
		reportInterval: *reportInterval,
		mdnsEnable:     *mdnsEnable,
		mdnsName:       *mdnsName,
	}

	applyEnvOverrides(cfg, fs.explicitlySet)

	// Positional args win over flags and env.
	if len(positional) > 0 && positional[0] != "" {
		cfg.controlAddr = positional[0]
	}
	if len(positional) > 1 {
		if n, err := strconv.ParseUint(positional[1], 10, 32); err == nil {
			cfg.queueCapacity = int(n)
		}
		// Parse failure silently falls back to the default.
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *appConfig) validate() error {
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.queueCapacity <= 0 {
		return fmt.Errorf("queue capacity must be > 0 (got %d)", c.queueCapacity)
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("handshake-timeout must be > 0")
	}
	if c.reportInterval < 0 {
		return fmt.Errorf("report-interval must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps QPIPE_* environment variables onto cfg unless the
// corresponding flag was explicitly set on the command line.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) {
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["log-format"]; !ok {
		if v, ok := get("QPIPE_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("QPIPE_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("QPIPE_METRICS_ADDR"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["handshake-timeout"]; !ok {
		if v, ok := get("QPIPE_HANDSHAKE_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.handshakeTO = d
			}
		}
	}
	if _, ok := set["report-interval"]; !ok {
		if v, ok := get("QPIPE_REPORT_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.reportInterval = d
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("QPIPE_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("QPIPE_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["control-addr"]; !ok {
		if v, ok := get("QPIPE_CONTROL_ADDR"); ok && v != "" {
			c.controlAddr = v
		}
	}
	if _, ok := set["queue-capacity"]; !ok {
		if v, ok := get("QPIPE_QUEUE_CAPACITY"); ok && v != "" {
			if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
				c.queueCapacity = int(n)
			}
		}
	}
}
