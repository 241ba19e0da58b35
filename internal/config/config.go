package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Store   StoreConfig   `mapstructure:"store"`
	Records RecordsConfig `mapstructure:"records"`
	Live    LiveConfig    `mapstructure:"live"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type RecordsConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
	CommentLimit  int           `mapstructure:"comment_limit"`
	CommentWindow time.Duration `mapstructure:"comment_window"`
}

// LiveConfig is read by peers: the CLI and anything else that opens a view.
type LiveConfig struct {
	DirectoryURL     string        `mapstructure:"directory_url"`
	APIURL           string        `mapstructure:"api_url"`
	ICEServers       []string      `mapstructure:"ice_servers"`
	AcquireTimeout   time.Duration `mapstructure:"acquire_timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	SimulateInterval time.Duration `mapstructure:"simulate_interval"`
	CollisionRetries int           `mapstructure:"collision_retries"`
	RecordDir        string        `mapstructure:"record_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("log_level", "info")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "./tasteshift.db")

	v.SetDefault("records.ttl", "24h")
	v.SetDefault("records.purge_interval", "10m")
	v.SetDefault("records.comment_limit", 5)
	v.SetDefault("records.comment_window", "10s")

	v.SetDefault("live.directory_url", "ws://localhost:8080/api/ws/directory")
	v.SetDefault("live.api_url", "http://localhost:8080/api")
	v.SetDefault("live.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("live.acquire_timeout", "4s")
	v.SetDefault("live.connect_timeout", "15s")
	v.SetDefault("live.poll_interval", "1.5s")
	v.SetDefault("live.simulate_interval", "3s")
	v.SetDefault("live.collision_retries", 0)
	v.SetDefault("live.record_dir", "")
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults. Environment
// variables TASTESHIFT_<KEY> (dots become underscores) override the file,
// and flags listed in bind (flag name to config key) override both.
func Load(flags *pflag.FlagSet, bind map[string]string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("tasteshift")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range bind {
			f := flags.Lookup(name)
			if f == nil {
				return nil, fmt.Errorf("unknown flag %q for %s", name, key)
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %q: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Fprintf(os.Stderr, "✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
