// =============================================================================
// 文件: internal/config/config.go
// 描述: 配置管理 - 仿真参数、RDT 层常量、信道故障注入、监控
// =============================================================================
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/logging"
)

// DefaultData 默认发送的文本
const DefaultData = "The quick brown fox jumped over the lazy dog. " +
	"Reliable data transfer delivers an ordered stream across a channel " +
	"that may drop or corrupt segments, using checksums, cumulative " +
	"acknowledgment and retransmission."

// Config 主配置
type Config struct {
	LogLevel string `yaml:"log_level"`

	Simulation SimulationConfig `yaml:"simulation"`
	Transport  TransportConfig  `yaml:"transport"`
	Channel    ChannelConfig    `yaml:"channel"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// SimulationConfig 仿真配置
type SimulationConfig struct {
	Data          string `yaml:"data"`
	DataFile      string `yaml:"data_file"` // 优先于 data
	MaxIterations int    `yaml:"max_iterations"`
	Seed          int64  `yaml:"seed"`
}

// TransportConfig RDT 层配置 (运行期间不变)
type TransportConfig struct {
	DataLength      int `yaml:"data_length"`
	WindowSize      int `yaml:"window_size"`
	DupAckThreshold int `yaml:"dup_ack_threshold"`
}

// ChannelConfig 不可靠信道配置
type ChannelConfig struct {
	DropPackets    bool    `yaml:"drop_packets"`
	ChecksumErrors bool    `yaml:"checksum_errors"`
	DropRate       float64 `yaml:"drop_rate"`
	CorruptRate    float64 `yaml:"corrupt_rate"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Listen     string `yaml:"listen"`
	Path       string `yaml:"path"`
	HealthPath string `yaml:"health_path"`
}

// Load 加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.resolveData(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",

		Simulation: SimulationConfig{
			Data:          DefaultData,
			MaxIterations: 1000,
			Seed:          1,
		},

		Transport: TransportConfig{
			DataLength:      4,
			WindowSize:      15,
			DupAckThreshold: 5,
		},

		Channel: ChannelConfig{
			DropPackets:    true,
			ChecksumErrors: true,
			DropRate:       0.1,
			CorruptRate:    0.1,
		},

		Metrics: MetricsConfig{
			Enabled:    false,
			Listen:     ":9100",
			Path:       "/metrics",
			HealthPath: "/health",
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "error":
	default:
		return fmt.Errorf("无效的日志级别: %s (支持: debug, info, error)", c.LogLevel)
	}

	if c.Simulation.MaxIterations < 1 {
		return fmt.Errorf("simulation.max_iterations 需大于 0")
	}

	if c.Transport.DataLength < 1 {
		return fmt.Errorf("transport.data_length 需大于 0")
	}
	if c.Transport.WindowSize < c.Transport.DataLength {
		return fmt.Errorf("transport.window_size (%d) 不能小于 data_length (%d)",
			c.Transport.WindowSize, c.Transport.DataLength)
	}
	if c.Transport.DupAckThreshold < 1 {
		return fmt.Errorf("transport.dup_ack_threshold 需大于 0")
	}

	if c.Channel.DropRate < 0 || c.Channel.DropRate > 1 {
		return fmt.Errorf("channel.drop_rate 需在 0-1 之间")
	}
	if c.Channel.CorruptRate < 0 || c.Channel.CorruptRate > 1 {
		return fmt.Errorf("channel.corrupt_rate 需在 0-1 之间")
	}

	if c.Metrics.Enabled {
		if _, err := parsePort(c.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen 端口格式错误: %w", err)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") || !strings.HasPrefix(c.Metrics.HealthPath, "/") {
			return fmt.Errorf("metrics.path 和 metrics.health_path 必须以 / 开头")
		}
		if c.Metrics.Path == c.Metrics.HealthPath {
			return fmt.Errorf("metrics.path 与 metrics.health_path 冲突: %s", c.Metrics.Path)
		}
	}

	return nil
}

// LogLevelValue 日志级别数值
func (c *Config) LogLevelValue() int {
	return logging.ParseLevel(c.LogLevel)
}

// resolveData 从 data_file 读取待发送数据
func (c *Config) resolveData() error {
	if c.Simulation.DataFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.Simulation.DataFile)
	if err != nil {
		return fmt.Errorf("读取 data_file 失败: %w", err)
	}
	c.Simulation.Data = string(data)
	return nil
}

// parsePort 解析监听地址中的端口
func parsePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("端口超出范围: %d", port)
	}
	return port, nil
}

// GenerateExampleConfig 生成示例配置
func GenerateExampleConfig() string {
	return `# RDT 仿真配置文件示例
# =============================================================================

log_level: "info"                   # 日志级别: debug, info, error

# 仿真
simulation:
  data: "The quick brown fox jumped over the lazy dog."
  data_file: ""                     # 从文件读取数据 (优先于 data)
  max_iterations: 1000              # 最大轮数，超过视为失败
  seed: 1                           # 信道随机种子

# RDT 层 (运行期间不变)
transport:
  data_length: 4                    # 每个数据段的字符数
  window_size: 15                   # 流控窗口 (字符)
  dup_ack_threshold: 5              # 重复 ACK 升级阈值

# 不可靠信道
channel:
  drop_packets: true
  checksum_errors: true
  drop_rate: 0.1
  corrupt_rate: 0.1

# Prometheus 监控
metrics:
  enabled: false
  listen: ":9100"
  path: "/metrics"
  health_path: "/health"
`
}

// WriteExampleConfig 写入示例配置文件
func WriteExampleConfig(path string) error {
	return os.WriteFile(path, []byte(GenerateExampleConfig()), 0644)
}
