package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type LogCfg struct {
	Level   string
	Console bool
	SampleN int
}

type ScanCfg struct {
	Steps        int
	StepDistance float64
	FetchRPS     float64
}

type RemoteCfg struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type CacheCfg struct {
	RedisAddr     string
	OpTimeout     time.Duration
	PointCacheTTL time.Duration
	H3Res         int
}

type FilterCfg struct {
	File     string
	RedisKey string
}

type KafkaCfg struct {
	Brokers          string
	GroupID          string
	LocationsEnabled bool
	LocationsTopic   string
	PublishEnabled   bool
	DiscoveryTopic   string
}

type TracingCfg struct {
	Enabled     bool
	Exporter    string
	Endpoint    string
	SampleRatio float64
}

type Config struct {
	Addr           string
	Log            LogCfg
	Scan           ScanCfg
	Remote         RemoteCfg
	Cache          CacheCfg
	Filter         FilterCfg
	DedupCapacity  int
	Kafka          KafkaCfg
	MetricsEnabled bool
	Tracing        TracingCfg
}

func FromEnv() Config {
	res := getint("H3_RES", 9)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	return Config{
		Addr: getenv("ADDR", ":8090"),
		Log: LogCfg{
			Level:   getenv("LOG_LEVEL", "info"),
			Console: getbool("LOG_CONSOLE", false),
			SampleN: getint("LOG_SAMPLE_N", 0),
		},
		Scan: ScanCfg{
			Steps:        getint("SCAN_STEPS", 12),
			StepDistance: getfloat("SCAN_STEP_DISTANCE_M", 200),
			FetchRPS:     getfloat("SCAN_FETCH_RPS", 0),
		},
		Remote: RemoteCfg{
			URL:     getenv("REMOTE_URL", "http://localhost:8080"),
			Token:   os.Getenv("REMOTE_TOKEN"),
			Timeout: getduration("REMOTE_TIMEOUT", 10*time.Second),
		},
		Cache: CacheCfg{
			RedisAddr:     os.Getenv("REDIS_ADDR"),
			OpTimeout:     getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
			PointCacheTTL: getduration("POINT_CACHE_TTL", 0),
			H3Res:         res,
		},
		Filter: FilterCfg{
			File:     os.Getenv("FILTER_FILE"),
			RedisKey: os.Getenv("FILTER_REDIS_KEY"),
		},
		DedupCapacity: getint("DEDUP_CAPACITY", 0),
		Kafka: KafkaCfg{
			Brokers:          getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID:          getenv("KAFKA_GROUP_ID", "hexscan"),
			LocationsEnabled: getbool("LOCATIONS_ENABLED", false),
			LocationsTopic:   getenv("KAFKA_LOCATIONS_TOPIC", "location-updates"),
			PublishEnabled:   getbool("DISCOVERY_PUBLISH_ENABLED", false),
			DiscoveryTopic:   getenv("KAFKA_DISCOVERY_TOPIC", "discoveries"),
		},
		MetricsEnabled: getbool("METRICS_ENABLED", true),
		Tracing: TracingCfg{
			Enabled:     getbool("TRACING_ENABLED", false),
			Exporter:    getenv("TRACING_EXPORTER", "stdout"),
			Endpoint:    getenv("OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio: getfloat("TRACING_SAMPLE_RATIO", 1.0),
		},
	}
}

// BrokerList splits the comma separated broker list.
func (k KafkaCfg) BrokerList() []string {
	var out []string
	for b := range strings.SplitSeq(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
