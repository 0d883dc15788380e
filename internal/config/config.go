package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by the CLI,
// e.g. GQLEXEC_SERVER_ENDPOINT.
const EnvPrefix = "GQLEXEC"

// Flag and configuration keys.
const (
	KeyConfig            = "config"
	KeyServerEndpoint    = "server-endpoint"
	KeyQueryPath         = "query-path"
	KeyOperationName     = "operation-name"
	KeyVariablesFromJSON = "variables-from-json"
	KeyVariable          = "variable"
	KeyHTTPHeader        = "http-header"
	KeyReconnect         = "try-reconnect-duration"
	KeyTimeout           = "timeout"
	KeyAckTimeout        = "ack-timeout"
	KeyStrictAck         = "strict-ack"
	KeyLogLevel          = "log-level"
	KeyOtelEndpoint      = "otel-endpoint"
	KeyOtelService       = "otel-service"
)

// Config is the resolved configuration of the client command.
type Config struct {
	ServerEndpoint    string
	QueryPath         string
	OperationName     string
	VariablesFile     string
	Variables         []string
	Headers           []string
	Reconnect         bool
	ReconnectInterval time.Duration
	Timeout           time.Duration
	AckTimeout        time.Duration
	StrictAck         bool
	LogLevel          string
	OtelEndpoint      string
	OtelService       string
}

// LoadDotEnv loads environment files, skipping the ones that do not exist.
// Variables already set in the environment are kept.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper binds the scalar flags of flags to a viper instance reading
// GQLEXEC_* environment variables and the optional config file.
// Repeatable flags are left unbound and read by Load.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == KeyVariable || f.Name == KeyHTTPHeader {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Load resolves the configuration. Flags win over environment variables,
// which win over the config file.
func Load(v *viper.Viper, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		ServerEndpoint: v.GetString(KeyServerEndpoint),
		QueryPath:      v.GetString(KeyQueryPath),
		OperationName:  v.GetString(KeyOperationName),
		VariablesFile:  v.GetString(KeyVariablesFromJSON),
		Timeout:        v.GetDuration(KeyTimeout),
		AckTimeout:     v.GetDuration(KeyAckTimeout),
		StrictAck:      v.GetBool(KeyStrictAck),
		LogLevel:       v.GetString(KeyLogLevel),
		OtelEndpoint:   v.GetString(KeyOtelEndpoint),
		OtelService:    v.GetString(KeyOtelService),
	}

	var err error
	if cfg.Variables, err = repeatable(v, flags, KeyVariable); err != nil {
		return nil, err
	}
	if cfg.Headers, err = repeatable(v, flags, KeyHTTPHeader); err != nil {
		return nil, err
	}

	if raw := strings.TrimSpace(v.GetString(KeyReconnect)); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", KeyReconnect, raw, err)
		}
		if interval < 0 {
			return nil, fmt.Errorf("invalid %s %q: must not be negative", KeyReconnect, raw)
		}
		cfg.Reconnect = true
		cfg.ReconnectInterval = interval
	}

	if cfg.ServerEndpoint == "" {
		return nil, fmt.Errorf("%s is required", KeyServerEndpoint)
	}
	if cfg.QueryPath == "" {
		return nil, fmt.Errorf("%s is required", KeyQueryPath)
	}
	return cfg, nil
}

func repeatable(v *viper.Viper, flags *pflag.FlagSet, key string) ([]string, error) {
	if f := flags.Lookup(key); f != nil && f.Changed {
		return flags.GetStringArray(key)
	}
	return v.GetStringSlice(key), nil
}
