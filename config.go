package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/krinkuto11/acexy-multiplexer/lib/acexy"
	"github.com/spf13/cobra"
)

// Config is the fully-resolved process configuration: CLI flags win
// when explicitly set, otherwise the matching environment variable
// wins, otherwise the default (SPEC_FULL §4.G).
type Config struct {
	Host              string
	Port              int
	ListenAddr        string
	Scheme            string
	BufferSize        uint64
	M3U8              bool
	EmptyTimeout      time.Duration
	NoResponseTimeout time.Duration
	M3U8StreamTimeout time.Duration
}

// Endpoint returns the AceStream endpoint to open streams against,
// based on the M3U8 flag. The Content-Type to serve is chosen from the
// same flag by the request handler.
func (c Config) Endpoint() acexy.AcexyEndpoint {
	if c.M3U8 {
		return acexy.M3U8_ENDPOINT
	}
	return acexy.MPEG_TS_ENDPOINT
}

// splitListenAddr splits a listen address with a proper host:port
// parser, so that bracketed IPv6 listen addresses (e.g.
// "[::1]:8080") round-trip correctly — the naive strings.Split(addr,
// ":") used by earlier versions of this proxy mishandles them
// (SPEC_FULL §4.G, spec.md §9's listen-address REDESIGN FLAG).
func splitListenAddr(addr string) (host, port string, err error) {
	host, port, err = net.SplitHostPort(addr)
	if err == nil {
		return host, port, nil
	}
	// A bare ":PORT" form (no brackets, no host) is common enough that
	// operators expect it to keep working.
	if strings.HasPrefix(addr, ":") {
		if _, perr := strconv.Atoi(addr[1:]); perr == nil {
			return "", addr[1:], nil
		}
	}
	return "", "", fmt.Errorf("invalid listen address %q: %w", addr, err)
}

const defaultBufferSize = 4 * 1024 * 1024 // 4 MiB, reserved (SPEC_FULL §9)

// envOr returns the environment variable's value if set, else def.
func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// loadConfig resolves flags against their ACEXY_* environment variable
// and default, following the "override with CLI flags only if
// explicitly set" precedence idiom.
func loadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()
	var cfg Config

	cfg.Host = envOr("ACEXY_HOST", "localhost")
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}

	cfg.Port = 6878
	if v := envOr("ACEXY_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}

	cfg.ListenAddr = envOr("ACEXY_LISTEN_ADDR", ":8080")
	if flags.Changed("listen-addr") {
		cfg.ListenAddr, _ = flags.GetString("listen-addr")
	}

	cfg.Scheme = envOr("ACEXY_SCHEME", "http")
	if flags.Changed("scheme") {
		cfg.Scheme, _ = flags.GetString("scheme")
	}

	cfg.BufferSize = defaultBufferSize
	if v := envOr("ACEXY_BUFFER_SIZE", ""); v != "" {
		if sz, err := humanize.ParseBytes(v); err == nil {
			cfg.BufferSize = sz
		}
	}
	if flags.Changed("buffer-size") {
		raw, _ := flags.GetString("buffer-size")
		sz, err := humanize.ParseBytes(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid --buffer-size %q: %w", raw, err)
		}
		cfg.BufferSize = sz
	}

	cfg.M3U8 = envOr("ACEXY_M3U8", "") == "true" || envOr("ACEXY_M3U8", "") == "1"
	if flags.Changed("m3u8") {
		cfg.M3U8, _ = flags.GetBool("m3u8")
	}

	cfg.EmptyTimeout = 60 * time.Second
	if v := envOr("ACEXY_EMPTY_TIMEOUT", ""); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.EmptyTimeout = time.Duration(secs) * time.Second
		}
	}
	if flags.Changed("empty-timeout") {
		secs, _ := flags.GetInt("empty-timeout")
		cfg.EmptyTimeout = time.Duration(secs) * time.Second
	}

	cfg.NoResponseTimeout = 1 * time.Second
	if v := envOr("ACEXY_NO_RESPONSE_TIMEOUT", ""); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.NoResponseTimeout = time.Duration(secs) * time.Second
		}
	}
	if flags.Changed("no-response-timeout") {
		secs, _ := flags.GetInt("no-response-timeout")
		cfg.NoResponseTimeout = time.Duration(secs) * time.Second
	}

	cfg.M3U8StreamTimeout = 60 * time.Second
	if v := envOr("ACEXY_M3U8_STREAM_TIMEOUT", ""); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.M3U8StreamTimeout = time.Duration(secs) * time.Second
		}
	}
	if flags.Changed("m3u8-stream-timeout") {
		secs, _ := flags.GetInt("m3u8-stream-timeout")
		cfg.M3U8StreamTimeout = time.Duration(secs) * time.Second
	}

	return cfg, nil
}

func registerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("host", "localhost", "AceStream middleware host")
	flags.Int("port", 6878, "AceStream middleware port")
	flags.String("listen-addr", ":8080", "[host]:port to bind")
	flags.String("scheme", "http", "http or https")
	flags.String("buffer-size", "4MiB", "reserved; not used by the multiplexer (fixed 8KiB chunking)")
	flags.Bool("m3u8", false, "open streams on the M3U8 endpoint, serve application/x-mpegURL, and also route /ace/manifest.m3u8")
	flags.Int("empty-timeout", 60, "seconds of upstream read inactivity before a session ends normally")
	flags.Int("no-response-timeout", 1, "seconds to wait for the middleware's open() response")
	flags.Int("m3u8-stream-timeout", 60, "reserved m3u8 stream timeout, in seconds")
}
