// Package config defines and loads the platform's configuration (C7),
// layered as flags > environment > an optional YAML file via viper,
// matching the layering convention of fluxsce-gateway's pkg/config and
// nabbar-golib's viper wiring.
package config

import (
	"fmt"
	"time"
)

// Pipeline holds the per-pipeline knobs named in spec.md §6.
type Pipeline struct {
	Name string `mapstructure:"name"`

	CorePoolSize             int           `mapstructure:"core_pool_size"`
	MaxPoolSize              int           `mapstructure:"max_pool_size"`
	QueueCapacity            int           `mapstructure:"queue_capacity"`
	KeepAliveTime            time.Duration `mapstructure:"keep_alive_time"`
	SocketTimeout            time.Duration `mapstructure:"socket_timeout"`
	MaxRequestsPerConnection int           `mapstructure:"max_requests_per_connection"`
	ReadBuffer               int           `mapstructure:"read_buffer"`
	WriteBuffer              int           `mapstructure:"write_buffer"`
	Backlog                  int           `mapstructure:"backlog"`
	BindAddress              string        `mapstructure:"bind_address"`
	Port                     int           `mapstructure:"port"`
	TCPNoDelay               bool          `mapstructure:"tcp_no_delay"`
	KeepAlive                bool          `mapstructure:"keep_alive"`
	DebugMode                bool          `mapstructure:"debug_mode"`
	ContextPath              string        `mapstructure:"context_path"`
	StatisticsInterval       time.Duration `mapstructure:"statistics_interval"`
}

// Validate checks the Pipeline config for internally consistent values.
func (p Pipeline) Validate() error {
	if p.CorePoolSize <= 0 {
		return fmt.Errorf("%s: core_pool_size must be > 0", p.Name)
	}
	if p.MaxPoolSize < p.CorePoolSize {
		return fmt.Errorf("%s: max_pool_size (%d) must be >= core_pool_size (%d)", p.Name, p.MaxPoolSize, p.CorePoolSize)
	}
	if p.QueueCapacity < 0 {
		return fmt.Errorf("%s: queue_capacity must be >= 0", p.Name)
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("%s: port %d out of range", p.Name, p.Port)
	}
	if p.MaxRequestsPerConnection <= 0 {
		return fmt.Errorf("%s: max_requests_per_connection must be > 0", p.Name)
	}
	return nil
}

// DefaultPipeline returns baseline settings for a named pipeline on a port.
func DefaultPipeline(name string, port int) Pipeline {
	return Pipeline{
		Name:                     name,
		CorePoolSize:             16,
		MaxPoolSize:              200,
		QueueCapacity:            100,
		KeepAliveTime:            60 * time.Second,
		SocketTimeout:            10 * time.Second,
		MaxRequestsPerConnection: 1000,
		ReadBuffer:               8192,
		WriteBuffer:              8192,
		Backlog:                  1024,
		BindAddress:              "0.0.0.0",
		Port:                     port,
		TCPNoDelay:               true,
		KeepAlive:                true,
		DebugMode:                false,
		ContextPath:              "",
		StatisticsInterval:       30 * time.Second,
	}
}

// Benchmark holds the load-generation parameters named in spec.md §6.
type Benchmark struct {
	WarmupRequests      int           `mapstructure:"warmup_requests"`
	TargetThroughput    int           `mapstructure:"target_throughput"`
	MaxConcurrency      int           `mapstructure:"max_concurrency"`
	TestDurationSeconds int           `mapstructure:"test_duration_seconds"`
	TimeoutSeconds       int          `mapstructure:"timeout_seconds"`
	EnableMemoryProfile bool          `mapstructure:"enable_memory_profile"`
	EnableGCProfile     bool          `mapstructure:"enable_gc_profile"`
	EnableLatencyTrend  bool          `mapstructure:"enable_latency_trend"`
	ReportFormats       []string      `mapstructure:"report_formats"`
	OutDir              string        `mapstructure:"out_dir"`
}

// DefaultBenchmark returns baseline load-generation parameters.
func DefaultBenchmark() Benchmark {
	return Benchmark{
		WarmupRequests:      10,
		TargetThroughput:    1000,
		MaxConcurrency:      1000,
		TestDurationSeconds: 30,
		TimeoutSeconds:      5,
		EnableMemoryProfile: true,
		EnableGCProfile:     true,
		EnableLatencyTrend:  true,
		ReportFormats:       []string{"console", "html", "json", "csv"},
		OutDir:              ".",
	}
}

// Config is the top-level configuration for the platform: one Pipeline per
// architecture plus the Benchmark parameters.
type Config struct {
	Threaded  Pipeline  `mapstructure:"threaded"`
	Hybrid    Pipeline  `mapstructure:"hybrid"`
	EventLoop Pipeline  `mapstructure:"eventloop"`
	Benchmark Benchmark `mapstructure:"benchmark"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Default returns the platform's default configuration, with the three
// pipelines bound to the conventional consecutive ports from spec.md §4.6.
func Default() Config {
	return Config{
		Threaded:  DefaultPipeline("threaded", 8080),
		Hybrid:    DefaultPipeline("hybrid", 8081),
		EventLoop: DefaultPipeline("eventloop", 8082),
		Benchmark: DefaultBenchmark(),
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Validate checks every sub-config.
func (c Config) Validate() error {
	for _, p := range []Pipeline{c.Threaded, c.Hybrid, c.EventLoop} {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if c.Benchmark.MaxConcurrency <= 0 {
		return fmt.Errorf("benchmark: max_concurrency must be > 0")
	}
	return nil
}
