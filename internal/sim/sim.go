// =============================================================================
// 文件: internal/sim/sim.go
// 描述: 仿真驱动 - 客户端 / 服务端 RDT 层通过两条不可靠信道互联
//       每轮: 客户端 tick -> 信道搬运 -> 服务端 tick -> 信道搬运
// =============================================================================
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/channel"
	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/logging"
	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/transport"
)

// DefaultMaxIterations 默认最大轮数
const DefaultMaxIterations = 1000

// Config 仿真配置
type Config struct {
	Data          string
	MaxIterations int
	Seed          int64
	Transport     *transport.RDTConfig
	Channel       channel.Config
	LogLevel      int
}

// Result 仿真结果
type Result struct {
	Iterations   int
	Completed    bool
	DataSent     string
	DataReceived string
	Timeouts     uint64
	ClientStats  transport.RDTStats
	ServerStats  transport.RDTStats
	Upstream     channel.Stats // client -> server
	Downstream   channel.Stats // server -> client
	Elapsed      time.Duration
}

// Simulation 一次完整的传输仿真
type Simulation struct {
	cfg    Config
	logger *zap.SugaredLogger

	Client *transport.RDTLayer
	Server *transport.RDTLayer

	ClientToServer *channel.UnreliableChannel
	ServerToClient *channel.UnreliableChannel

	// OnIteration 每轮结束后回调 (可选)
	OnIteration func(iteration int)
}

// New 组装仿真：两条信道、客户端 (发送方)、服务端 (接收方)
func New(cfg Config) (*Simulation, error) {
	if cfg.Transport == nil {
		cfg.Transport = transport.DefaultRDTConfig()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	chCfg := cfg.Channel
	chCfg.LogLevel = cfg.LogLevel

	s := &Simulation{
		cfg:            cfg,
		logger:         logging.New("Sim", cfg.LogLevel),
		ClientToServer: channel.NewUnreliableChannel("client->server", chCfg, rand.New(rand.NewSource(rng.Int63()))),
		ServerToClient: channel.NewUnreliableChannel("server->client", chCfg, rand.New(rand.NewSource(rng.Int63()))),
	}

	clientCfg := *cfg.Transport
	clientCfg.Name = "client"
	clientCfg.LogLevel = cfg.LogLevel
	client, err := transport.NewRDTLayer(&clientCfg)
	if err != nil {
		return nil, fmt.Errorf("transport 配置错误: %w", err)
	}
	s.Client = client
	s.Client.SetSendChannel(s.ClientToServer)
	s.Client.SetReceiveChannel(s.ServerToClient)
	s.Client.SetDataToSend(cfg.Data)

	serverCfg := *cfg.Transport
	serverCfg.Name = "server"
	serverCfg.LogLevel = cfg.LogLevel
	server, err := transport.NewRDTLayer(&serverCfg)
	if err != nil {
		return nil, fmt.Errorf("transport 配置错误: %w", err)
	}
	s.Server = server
	s.Server.SetSendChannel(s.ServerToClient)
	s.Server.SetReceiveChannel(s.ClientToServer)

	return s, nil
}

// Run 运行直到服务端收齐数据、达到最大轮数或 ctx 取消
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	s.logger.Infof("开始传输: %d 字符, 最多 %d 轮", len(s.cfg.Data), s.cfg.MaxIterations)

	iteration := 0
	completed := false
	for iteration < s.cfg.MaxIterations {
		select {
		case <-ctx.Done():
			return s.result(iteration, false, start), ctx.Err()
		default:
		}

		iteration++
		s.Step()

		if s.OnIteration != nil {
			s.OnIteration(iteration)
		}

		if s.Server.GetDataReceived() == s.cfg.Data {
			completed = true
			break
		}
	}

	res := s.result(iteration, completed, start)
	if completed {
		s.logger.Infof("传输完成: %d 轮, 超时 %d 次, 耗时 %v", res.Iterations, res.Timeouts, res.Elapsed)
	} else {
		s.logger.Errorf("传输未完成: %d 轮后收到 %d/%d 字符", res.Iterations, len(res.DataReceived), len(res.DataSent))
	}
	return res, nil
}

// Step 执行一轮
func (s *Simulation) Step() {
	s.Client.ProcessData()
	s.ClientToServer.Manage()
	s.Server.ProcessData()
	s.ServerToClient.Manage()
}

func (s *Simulation) result(iteration int, completed bool, start time.Time) *Result {
	return &Result{
		Iterations:   iteration,
		Completed:    completed,
		DataSent:     s.cfg.Data,
		DataReceived: s.Server.GetDataReceived(),
		Timeouts:     s.Client.CountSegmentTimeouts(),
		ClientStats:  s.Client.Stats(),
		ServerStats:  s.Server.Stats(),
		Upstream:     s.ClientToServer.Stats(),
		Downstream:   s.ServerToClient.Stats(),
		Elapsed:      time.Since(start),
	}
}
