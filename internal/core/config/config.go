package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	GroupID string
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	RedisAddr      string
	StoreOpTimeout time.Duration

	SupportedLangs []string
	DefaultLang    string

	LayerTables     map[string]string
	LayerLimit      int
	LayerCacheSize  int
	LayerCacheTTL   time.Duration
	AnonymousUserID string

	Invalidation InvalidationCfg

	MetricsEnabled bool
	MetricsAddr    string
	MetricsPath    string
}

func FromEnv() Config {
	langs := splitCSV(getenv("SUPPORTED_LANGS", "en,es,pt"))
	def := getenv("DEFAULT_LANG", "en")
	if !contains(langs, def) {
		langs = append(langs, def)
	}

	layers := parseTableMap(getenv("LAYER_TABLES", ""))
	if len(layers) == 0 {
		layers = map[string]string{
			"observations":   "observations",
			"breeding_sites": "breeding_sites",
		}
	}

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		StoreOpTimeout: getduration("STORE_OP_TIMEOUT", 2*time.Second),

		SupportedLangs: langs,
		DefaultLang:    def,

		LayerTables:     layers,
		LayerLimit:      getint("LAYER_LIMIT", 10000),
		LayerCacheSize:  getint("LAYER_CACHE_SIZE", 256),
		LayerCacheTTL:   getduration("LAYER_CACHE_TTL", 60*time.Second),
		AnonymousUserID: getenv("ANONYMOUS_USER_ID", "anonymous"),

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "catalog-changes"),
			GroupID: getenv("KAFKA_GROUP_ID", "atlas-invalidator"),
		},

		MetricsEnabled: getbool("METRICS_ENABLED", false),
		MetricsAddr:    getenv("METRICS_ADDR", ":9090"),
		MetricsPath:    getenv("METRICS_PATH", "/metrics"),
	}
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

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// parse "layer=table,other=other_table" into map
func parseTableMap(s string) map[string]string {
	out := map[string]string{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
