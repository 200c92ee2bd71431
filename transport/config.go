package transport

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Agremond/QuickSharp/sdk/etcd"
	"github.com/Agremond/QuickSharp/sdk/ipc"
	"github.com/Agremond/QuickSharp/sdk/telemetry"
)

// Kind selecciona la variante de transporte.
type Kind string

const (
	KindSocket Kind = "socket"
	KindShm    Kind = "shm"
)

// Config configuración del transporte.
//
// Cargada desde ETCD en namespace quik/{environment}.
type Config struct {
	// Transporte
	Kind                 Kind          // transport/kind (socket | shm)
	Host                 string        // transport/host (o \\.\pipe\<name>)
	Port                 int           // transport/port (callbacks en port+1)
	SendTimeout          time.Duration // transport/send_timeout_ms
	ReconnectBackoff     time.Duration // transport/reconnect_backoff_ms
	ReconnectTraceEvery  int           // transport/reconnect_trace_every
	Charset              string        // transport/charset
	TransIDPath          string        // transport/trans_id_path
	InitialCorrelationID int32         // transport/initial_correlation_id

	// Memoria compartida
	ResponsePoll    time.Duration // shm/response_poll_ms
	CallbackPoll    time.Duration // shm/callback_poll_ms
	ResponseBackoff time.Duration // shm/response_error_backoff_ms
	CallbackBackoff time.Duration // shm/callback_error_backoff_ms
	DrainInterval   time.Duration // shm/drain_interval_ms

	// Shutdown
	JoinTimeout time.Duration // transport/join_timeout_ms

	// Telemetry
	ServiceName     string // telemetry/service_name
	ServiceVersion  string // telemetry/service_version
	Environment     string // telemetry/environment
	OTLPEndpoint    string // endpoints/otel/otlp_endpoint
	MetricsEndpoint string // endpoints/otel/metrics_endpoint
	LogLevel        string // telemetry/log_level (INFO, DEBUG, WARN, ERROR)
}

// DefaultConfig retorna la configuración por defecto (socket en 127.0.0.1:34130).
func DefaultConfig() *Config {
	return &Config{
		Kind:                KindSocket,
		Host:                "127.0.0.1",
		Port:                34130,
		SendTimeout:         45 * time.Second,
		ReconnectBackoff:    100 * time.Millisecond,
		ReconnectTraceEvery: 10,
		Charset:             "cp1251",
		TransIDPath:         "data/trans_id.db",
		ResponsePoll:        50 * time.Millisecond,
		CallbackPoll:        30 * time.Millisecond,
		ResponseBackoff:     300 * time.Millisecond,
		CallbackBackoff:     500 * time.Millisecond,
		DrainInterval:       time.Millisecond,
		JoinTimeout:         1200 * time.Millisecond,
		ServiceName:         "quik-bridge",
		ServiceVersion:      "0.1.0",
		Environment:         "development",
		LogLevel:            "INFO",
	}
}

// LoadConfig carga configuración desde ETCD.
//
// Environment se determina desde variable de entorno ENV (default: development).
//
// Uso:
//
//	cfg, err := transport.LoadConfig(ctx)
//	if err != nil {
//	    return err
//	}
func LoadConfig(ctx context.Context) (*Config, error) {
	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
	}

	etcdClient, err := etcd.New(
		etcd.WithApp("quik"),
		etcd.WithEnv(env),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ETCD client: %w", err)
	}
	defer etcdClient.Close()

	return LoadConfigFrom(ctx, etcdClient, env)
}

// LoadConfigFrom aplica sobre DefaultConfig las claves presentes en vars y
// valida el resultado.
func LoadConfigFrom(ctx context.Context, vars etcd.Vars, env string) (*Config, error) {
	cfg := DefaultConfig()
	if env != "" {
		cfg.Environment = env
	}

	// Transporte
	if val, err := vars.GetVarWithDefault(ctx, "transport/kind", ""); err == nil && val != "" {
		cfg.Kind = Kind(strings.ToLower(strings.TrimSpace(val)))
	}
	if val, err := vars.GetVarWithDefault(ctx, "transport/host", ""); err == nil && val != "" {
		cfg.Host = strings.TrimSpace(val)
	}
	if val, err := vars.GetVarIntWithDefault(ctx, "transport/port", cfg.Port); err == nil {
		cfg.Port = val
	}
	if val, err := vars.GetVarDurationWithDefault(ctx, "transport/send_timeout_ms", cfg.SendTimeout); err == nil {
		cfg.SendTimeout = val
	}
	if val, err := vars.GetVarDurationWithDefault(ctx, "transport/reconnect_backoff_ms", cfg.ReconnectBackoff); err == nil {
		cfg.ReconnectBackoff = val
	}
	if val, err := vars.GetVarIntWithDefault(ctx, "transport/reconnect_trace_every", cfg.ReconnectTraceEvery); err == nil {
		cfg.ReconnectTraceEvery = val
	}
	if val, err := vars.GetVarWithDefault(ctx, "transport/charset", ""); err == nil && val != "" {
		cfg.Charset = val
	}
	if val, err := vars.GetVarWithDefault(ctx, "transport/trans_id_path", ""); err == nil && val != "" {
		cfg.TransIDPath = val
	}
	if val, err := vars.GetVarIntWithDefault(ctx, "transport/initial_correlation_id", int(cfg.InitialCorrelationID)); err == nil {
		cfg.InitialCorrelationID = int32(val)
	}
	if val, err := vars.GetVarDurationWithDefault(ctx, "transport/join_timeout_ms", cfg.JoinTimeout); err == nil {
		cfg.JoinTimeout = val
	}

	// Memoria compartida
	if val, err := vars.GetVarDurationWithDefault(ctx, "shm/response_poll_ms", cfg.ResponsePoll); err == nil {
		cfg.ResponsePoll = val
	}
	if val, err := vars.GetVarDurationWithDefault(ctx, "shm/callback_poll_ms", cfg.CallbackPoll); err == nil {
		cfg.CallbackPoll = val
	}
	if val, err := vars.GetVarDurationWithDefault(ctx, "shm/response_error_backoff_ms", cfg.ResponseBackoff); err == nil {
		cfg.ResponseBackoff = val
	}
	if val, err := vars.GetVarDurationWithDefault(ctx, "shm/callback_error_backoff_ms", cfg.CallbackBackoff); err == nil {
		cfg.CallbackBackoff = val
	}
	if val, err := vars.GetVarDurationWithDefault(ctx, "shm/drain_interval_ms", cfg.DrainInterval); err == nil {
		cfg.DrainInterval = val
	}

	// Telemetry
	if val, err := vars.GetVarWithDefault(ctx, "telemetry/service_name", ""); err == nil && val != "" {
		cfg.ServiceName = val
	}
	if val, err := vars.GetVarWithDefault(ctx, "telemetry/service_version", ""); err == nil && val != "" {
		cfg.ServiceVersion = val
	}
	if val, err := vars.GetVarWithDefault(ctx, "telemetry/environment", ""); err == nil && val != "" {
		cfg.Environment = val
	}
	if val, err := vars.GetVarWithDefault(ctx, "telemetry/log_level", ""); err == nil && val != "" {
		cfg.LogLevel = val
	}
	if val, err := vars.GetVarWithDefault(ctx, "endpoints/otel/otlp_endpoint", ""); err == nil && val != "" {
		cfg.OTLPEndpoint = val
	}
	if val, err := vars.GetVarWithDefault(ctx, "endpoints/otel/metrics_endpoint", ""); err == nil && val != "" {
		cfg.MetricsEndpoint = val
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifica la configuración mínima.
func (c *Config) Validate() error {
	switch c.Kind {
	case KindSocket:
		if c.Host == "" {
			return fmt.Errorf("transport/host not configured")
		}
		if !ipc.IsPipeAddress(c.Host) && (c.Port <= 0 || c.Port >= 65535) {
			return fmt.Errorf("transport/port out of range: %d", c.Port)
		}
		if c.ReconnectBackoff <= 0 {
			return fmt.Errorf("transport/reconnect_backoff_ms must be positive")
		}
		if _, err := ipc.LookupCharset(c.Charset); err != nil {
			return fmt.Errorf("transport/charset: %w", err)
		}
	case KindShm:
		if c.ResponsePoll <= 0 || c.CallbackPoll <= 0 || c.DrainInterval <= 0 {
			return fmt.Errorf("shm poll and drain intervals must be positive")
		}
	default:
		return fmt.Errorf("transport/kind must be %q or %q, got %q", KindSocket, KindShm, c.Kind)
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("transport/send_timeout_ms must be positive")
	}
	if c.InitialCorrelationID < 0 {
		return fmt.Errorf("transport/initial_correlation_id must not be negative")
	}
	return nil
}

// TelemetryOptions traduce la configuración a opciones de telemetry.New.
func (c *Config) TelemetryOptions() []telemetry.Option {
	opts := []telemetry.Option{
		telemetry.WithVersion(c.ServiceVersion),
		telemetry.WithLogLevel(c.LogLevel),
	}
	if c.OTLPEndpoint != "" {
		opts = append(opts, telemetry.WithOTLPEndpoint(c.OTLPEndpoint))
	} else {
		opts = append(opts, telemetry.WithTracesDisabled())
	}
	if c.MetricsEndpoint != "" {
		opts = append(opts, telemetry.WithMetricsEndpoint(c.MetricsEndpoint))
	} else if c.OTLPEndpoint == "" {
		opts = append(opts, telemetry.WithMetricsDisabled())
	}
	return opts
}

// NewTransport construye la variante configurada.
func NewTransport(cfg *Config, tel *telemetry.Client, opts ...Option) (Transport, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	switch cfg.Kind {
	case KindShm:
		return NewShmTransport(cfg, tel, opts...)
	case KindSocket:
		return NewSocketTransport(cfg, tel, opts...)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}
