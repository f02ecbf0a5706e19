// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"orderflow/internal/pkg/nacos"
)

// Duration 让 time.Duration 可以从 YAML 中的 "90s"、"2m" 形式解析。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

// Config 是所有服务共享的配置树。
// 调度周期、阈值等经验值都是可调参数，不是硬编码的不变量。
type Config struct {
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Infra struct {
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
	} `yaml:"infra"`

	Outbox struct {
		PollInterval  Duration `yaml:"poll_interval"`
		BatchSize     int      `yaml:"batch_size"`
		Retention     Duration `yaml:"retention"`
		SweepInterval Duration `yaml:"sweep_interval"`
	} `yaml:"outbox"`

	Checkout struct {
		SessionTTL     Duration `yaml:"session_ttl"`
		ShadowTTL      Duration `yaml:"shadow_ttl"`
		ScanInterval   Duration `yaml:"scan_interval"`
		IdempotencyTTL Duration `yaml:"idempotency_ttl"`
		AsyncPayment   bool     `yaml:"async_payment"`
	} `yaml:"checkout"`

	Inventory struct {
		HotSkus []string `yaml:"hot_skus"`
	} `yaml:"inventory"`

	Payment struct {
		WebhookSecret  string   `yaml:"webhook_secret"`
		GatewayBaseURL string   `yaml:"gateway_base_url"`
		GatewayKey     string   `yaml:"gateway_key"`
		GatewaySecret  string   `yaml:"gateway_secret"`
		ReconcileEvery Duration `yaml:"reconcile_every"`
		ReconcileAfter Duration `yaml:"reconcile_after"`
		BatchSize      int      `yaml:"batch_size"`
	} `yaml:"payment"`

	Saga struct {
		SweepEvery Duration `yaml:"sweep_every"`
		StuckAfter Duration `yaml:"stuck_after"`
		BatchSize  int      `yaml:"batch_size"`
	} `yaml:"saga"`
}

var currentConfig atomic.Value // *Config

// Init 加载配置并缓存为全局当前配置。
// 优先级：Nacos 配置中心（设置了 NACOS_DATA_ID 时）> 本地 YAML 文件 > 内置默认值。
func Init() {
	cfg := defaultConfig()

	path := getEnv("CONFIG_FILE", "configs/config.yaml")
	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to parse config file")
		}
		log.Info().Str("path", path).Msg("config loaded from file")
	}

	if dataID := os.Getenv("NACOS_DATA_ID"); dataID != "" {
		loadFromNacos(cfg, dataID)
	}

	applyEnvOverrides(cfg)
	currentConfig.Store(cfg)
}

// GetCurrentConfig 返回当前配置。配置热更新后返回新的快照。
func GetCurrentConfig() *Config {
	cfg, _ := currentConfig.Load().(*Config)
	if cfg == nil {
		Init()
		cfg, _ = currentConfig.Load().(*Config)
	}
	return cfg
}

// loadFromNacos 从配置中心拉取 YAML 并监听变更，变更时整体替换快照。
func loadFromNacos(cfg *Config, dataID string) {
	client, err := nacos.NewConfigClient(
		getEnv("NACOS_SERVER_ADDRS", "localhost:8848"),
		os.Getenv("NACOS_NAMESPACE"),
		getEnv("NACOS_GROUP", "DEFAULT_GROUP"),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create nacos config client")
	}
	nacosConfigClient = client

	content, err := client.GetConfig(dataID)
	if err != nil {
		log.Fatal().Err(err).Str("dataId", dataID).Msg("failed to fetch config from nacos")
	}
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to parse nacos config content")
	}

	err = client.ListenConfig(dataID, func(content string) {
		next := defaultConfig()
		if err := yaml.Unmarshal([]byte(content), next); err != nil {
			log.Error().Err(err).Msg("ignoring invalid config update from nacos")
			return
		}
		applyEnvOverrides(next)
		currentConfig.Store(next)
		log.Info().Str("dataId", dataID).Msg("config hot-reloaded from nacos")
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to listen for nacos config changes")
	}
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Logging.Level = "info"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Zookeeper.Servers = []string{"localhost:2181"}

	cfg.Outbox.PollInterval = Duration(2 * time.Second)
	cfg.Outbox.BatchSize = 100
	cfg.Outbox.Retention = Duration(24 * time.Hour)
	cfg.Outbox.SweepInterval = Duration(10 * time.Minute)

	cfg.Checkout.SessionTTL = Duration(30 * time.Minute)
	cfg.Checkout.ShadowTTL = Duration(15 * time.Minute)
	cfg.Checkout.ScanInterval = Duration(1 * time.Minute)
	cfg.Checkout.IdempotencyTTL = Duration(24 * time.Hour)

	cfg.Payment.ReconcileEvery = Duration(2 * time.Minute)
	cfg.Payment.ReconcileAfter = Duration(90 * time.Second)
	cfg.Payment.BatchSize = 50

	cfg.Saga.SweepEvery = Duration(60 * time.Second)
	cfg.Saga.StuckAfter = Duration(5 * time.Minute)
	cfg.Saga.BatchSize = 50
	return cfg
}

// applyEnvOverrides 允许容器环境覆盖关键连接参数。
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.Mysql.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("ZK_SERVERS"); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
}
