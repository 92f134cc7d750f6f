// Package config loads ambient settings for the gearman-go binaries and
// embedders: the server list, timeouts, and worker identity. It layers
// defaults, environment variables, and command-line flags the way
// nabbar-golib's viper wrapper does, using github.com/spf13/viper bound to
// github.com/spf13/pflag.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/chrisyee/gearman-go/manager"
)

// Environment variable prefix. GEARMAN_SERVERS, GEARMAN_ADMIN_TIMEOUT, ...
const envPrefix = "GEARMAN"

const (
	keyServers       = "servers"
	keyDefaultPort   = "default_port"
	keyAdminTimeout  = "admin_timeout"
	keyWorkerTimeout = "worker_poll_timeout"
	keyDialTimeout   = "dial_timeout"
	keyClientID      = "client_id"
)

// Config holds the settings every gearman-go front-end needs to dial
// servers and size its timeouts. Zero value is not valid; use Load.
type Config struct {
	Servers           []manager.Server
	DefaultPort       string
	AdminTimeout      time.Duration
	WorkerPollTimeout time.Duration
	DialTimeout       time.Duration
	ClientID          string
}

// RegisterFlags adds the persistent flags Load reads back via viper. Call
// before pflag.Parse (or before cmd.Execute for a cobra command sharing the
// same flag set).
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringSlice("servers", []string{"127.0.0.1:4730"}, "gearman job servers, host:port")
	flags.String("default-port", manager.DefaultPort, "port assumed when a server entry omits one")
	flags.Duration("admin-timeout", 10*time.Second, "timeout waiting for an admin command response")
	flags.Duration("worker-poll-timeout", 60*time.Second, "worker poll wake interval")
	flags.Duration("dial-timeout", 5*time.Second, "timeout connecting to a job server")
	flags.String("client-id", "", "worker client id sent via SET_CLIENT_ID")
}

// Load builds a Config from defaults, the GEARMAN_* environment, and
// flags, in increasing order of precedence. flags may be nil, in which
// case only defaults and the environment apply.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyServers, []string{"127.0.0.1:4730"})
	v.SetDefault(keyDefaultPort, manager.DefaultPort)
	v.SetDefault(keyAdminTimeout, 10*time.Second)
	v.SetDefault(keyWorkerTimeout, 60*time.Second)
	v.SetDefault(keyDialTimeout, 5*time.Second)
	v.SetDefault(keyClientID, "")

	if flags != nil {
		bind := map[string]string{
			keyServers:       "servers",
			keyDefaultPort:   "default-port",
			keyAdminTimeout:  "admin-timeout",
			keyWorkerTimeout: "worker-poll-timeout",
			keyDialTimeout:   "dial-timeout",
			keyClientID:      "client-id",
		}
		for vKey, flagName := range bind {
			if f := flags.Lookup(flagName); f != nil {
				if err := v.BindPFlag(vKey, f); err != nil {
					return nil, errors.Wrapf(err, "config: bind flag %q", flagName)
				}
			}
		}
	}

	defaultPort := v.GetString(keyDefaultPort)
	servers, err := parseServers(v.GetStringSlice(keyServers), defaultPort)
	if err != nil {
		return nil, err
	}

	return &Config{
		Servers:           servers,
		DefaultPort:       defaultPort,
		AdminTimeout:      v.GetDuration(keyAdminTimeout),
		WorkerPollTimeout: v.GetDuration(keyWorkerTimeout),
		DialTimeout:       v.GetDuration(keyDialTimeout),
		ClientID:          v.GetString(keyClientID),
	}, nil
}

// parseServers splits "host:port" (or bare "host", defaulted to
// defaultPort) entries into manager.Server values. An entry may itself be
// a comma-separated list, as GEARMAN_SERVERS arrives from the environment.
func parseServers(entries []string, defaultPort string) ([]manager.Server, error) {
	var expanded []string
	for _, e := range entries {
		expanded = append(expanded, strings.Split(e, ",")...)
	}
	servers := make([]manager.Server, 0, len(expanded))
	for _, entry := range expanded {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		host, port := entry, defaultPort
		if idx := strings.LastIndex(entry, ":"); idx >= 0 {
			host, port = entry[:idx], entry[idx+1:]
		}
		if host == "" {
			return nil, errors.Errorf("config: invalid server entry %q", entry)
		}
		servers = append(servers, manager.Server{Host: host, Port: port})
	}
	if len(servers) == 0 {
		servers = append(servers, manager.Server{Host: "127.0.0.1", Port: defaultPort})
	}
	return servers, nil
}
