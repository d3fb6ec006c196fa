// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"nexus-promotion/internal/pkg/nacos"
)

// Config 是服务的全部配置：业务配置 App 和基础设施配置 Infra
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
}

type AppConfig struct {
	ServiceName string          `yaml:"service_name"`
	Port        int             `yaml:"port"`
	LogLevel    string          `yaml:"log_level"`
	Promotion   PromotionConfig `yaml:"promotion"`
}

// PromotionConfig 选择各个端口的适配器
type PromotionConfig struct {
	OfferSource     string        `yaml:"offer_source"`     // yaml | mysql
	CatalogPath     string        `yaml:"catalog_path"`     // offer_source=yaml 时的目录文件
	AssignmentStore string        `yaml:"assignment_store"` // memory | redis | mysql
	LockAssignments bool          `yaml:"lock_assignments"` // 用 ZooKeeper 锁包裹分配记录的读写
	AssignmentTTL   time.Duration `yaml:"assignment_ttl"`   // redis 中分配记录的过期时间，0 表示不过期
	EventSink       string        `yaml:"event_sink"`       // log | kafka | mysql
	ExposureTopic   string        `yaml:"exposure_topic"`
	ConversionTopic string        `yaml:"conversion_topic"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	Budget          BudgetConfig  `yaml:"budget"`
	MaxCartLines    int           `yaml:"max_cart_lines"`    // 单个购物车最多的行数
	MaxLineQuantity int           `yaml:"max_line_quantity"` // 单行最大数量
}

// BudgetConfig 是默认的全局预算，请求可以覆盖
type BudgetConfig struct {
	MaxOffers          int     `yaml:"max_offers"`
	MaxDiscountAmount  float64 `yaml:"max_discount_amount"`
	MaxDiscountPercent float64 `yaml:"max_discount_percent"`
	Mode               string  `yaml:"mode"` // reject | clamp
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	ZooKeeper ZooKeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type MySQLConfig struct {
	Addr            string        `yaml:"addr"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Addrs string `yaml:"addrs"` // 逗号分隔，多个地址时使用集群模式
}

type KafkaConfig struct {
	Brokers string `yaml:"brokers"`
}

type ZooKeeperConfig struct {
	Servers        string        `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"server_addrs"` // 为空时不注册服务，也不拉取远程配置
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	DataID      string `yaml:"data_id"` // 远程配置，内容与本地文件同构，覆盖本地值
}

// Default 返回所有字段都有值的默认配置
func Default() *Config {
	return &Config{
		App: AppConfig{
			ServiceName: "promotion-service",
			Port:        8087,
			LogLevel:    "info",
			Promotion: PromotionConfig{
				OfferSource:     "yaml",
				CatalogPath:     "configs/catalog.yaml",
				AssignmentStore: "memory",
				EventSink:       "log",
				ExposureTopic:   "promotion-exposures",
				ConversionTopic: "promotion-conversions",
				RequestTimeout:  2 * time.Second,
				Budget:          BudgetConfig{Mode: "reject"},
				MaxCartLines:    200,
				MaxLineQuantity: 1000,
			},
		},
		Infra: InfraConfig{
			Jaeger:    JaegerConfig{Endpoint: "", SampleRatio: 1},
			MySQL:     MySQLConfig{Addr: "localhost:3306", User: "root", Database: "nexus_promotion", MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: time.Hour},
			Redis:     RedisConfig{Addrs: "localhost:6379"},
			Kafka:     KafkaConfig{Brokers: "localhost:9092"},
			ZooKeeper: ZooKeeperConfig{Servers: "localhost:2181", SessionTimeout: 10 * time.Second},
			Nacos:     NacosConfig{Group: "DEFAULT_GROUP"},
		},
	}
}

// Load 读取 YAML 文件并叠加环境变量。文件不存在时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "failed to parse config file %s", path)
			}
		case os.IsNotExist(err):
			zlog.Warn().Str("path", path).Msg("config file not found, using defaults")
		default:
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv 用环境变量覆盖配置
func applyEnv(cfg *Config) {
	p := &cfg.App.Promotion
	cfg.App.Port = getEnvInt("SERVICE_PORT", cfg.App.Port)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	p.OfferSource = getEnv("OFFER_SOURCE", p.OfferSource)
	p.CatalogPath = getEnv("CATALOG_PATH", p.CatalogPath)
	p.AssignmentStore = getEnv("ASSIGNMENT_STORE", p.AssignmentStore)
	p.EventSink = getEnv("EVENT_SINK", p.EventSink)
	p.LockAssignments = getEnvBool("LOCK_ASSIGNMENTS", p.LockAssignments)
	p.MaxLineQuantity = getEnvInt("MAX_LINE_QUANTITY", p.MaxLineQuantity)

	in := &cfg.Infra
	in.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", in.Jaeger.Endpoint)
	in.MySQL.Addr = getEnv("MYSQL_ADDR", in.MySQL.Addr)
	in.MySQL.User = getEnv("MYSQL_USER", in.MySQL.User)
	in.MySQL.Password = getEnv("MYSQL_PASSWORD", in.MySQL.Password)
	in.MySQL.Database = getEnv("MYSQL_DATABASE", in.MySQL.Database)
	in.Redis.Addrs = getEnv("REDIS_ADDRS", in.Redis.Addrs)
	in.Kafka.Brokers = getEnv("KAFKA_BROKERS", in.Kafka.Brokers)
	in.ZooKeeper.Servers = getEnv("ZK_SERVERS", in.ZooKeeper.Servers)
	in.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", in.Nacos.ServerAddrs)
	in.Nacos.Namespace = getEnv("NACOS_NAMESPACE", in.Nacos.Namespace)
	in.Nacos.Group = getEnv("NACOS_GROUP", in.Nacos.Group)
	in.Nacos.DataID = getEnv("NACOS_DATA_ID", in.Nacos.DataID)
}

var (
	currentConfig atomic.Pointer[Config]

	listenersMu sync.Mutex
	listeners   []func(*Config)

	nacosConfigClient *nacos.ConfigClient
)

// Init 加载配置（CONFIG_FILE 指定文件，默认 configs/config.yaml），
// 配置了 Nacos 时再用远程配置覆盖，并监听后续变化。
func Init() {
	cfg, err := Load(getEnv("CONFIG_FILE", "configs/config.yaml"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}
	currentConfig.Store(cfg)

	if cfg.Infra.Nacos.ServerAddrs == "" || cfg.Infra.Nacos.DataID == "" {
		return
	}
	if err := initRemoteConfig(cfg.Infra.Nacos); err != nil {
		zlog.Warn().Err(err).Msg("remote config unavailable, keeping local config")
	}
}

// GetCurrentConfig 返回当前生效的配置。Init 之前返回默认配置。
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	return Default()
}

// OnConfigChange 注册配置变更回调，远程配置更新后调用
func OnConfigChange(fn func(*Config)) {
	listenersMu.Lock()
	listeners = append(listeners, fn)
	listenersMu.Unlock()
}

func initRemoteConfig(nc NacosConfig) error {
	serverConfigs, err := nacos.ParseServerConfigs(nc.ServerAddrs)
	if err != nil {
		return err
	}
	clientConfig := nacos.NewClientConfig(nc.Namespace)
	client, err := nacos.NewConfigClient(serverConfigs, &clientConfig, nc.Group)
	if err != nil {
		return err
	}
	nacosConfigClient = client

	content, err := client.Get(nc.DataID)
	if err != nil {
		return err
	}
	if err := applyRemote(content); err != nil {
		return err
	}
	return client.Watch(nc.DataID, func(content string) {
		if err := applyRemote(content); err != nil {
			zlog.Error().Err(err).Msg("failed to apply remote config")
		}
	})
}

// applyRemote 把远程 YAML 叠加到当前配置上，生成新的快照并通知监听者
func applyRemote(content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	next := *GetCurrentConfig()
	if err := yaml.Unmarshal([]byte(content), &next); err != nil {
		return errors.Wrap(err, "failed to parse remote config")
	}
	currentConfig.Store(&next)

	listenersMu.Lock()
	fns := append([]func(*Config){}, listeners...)
	listenersMu.Unlock()
	for _, fn := range fns {
		fn(&next)
	}
	return nil
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}
