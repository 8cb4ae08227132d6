// =============================================================================
// 文件: cmd/rdt-sim/main.go
// 描述: 主程序入口 - 运行 RDT 传输仿真，可选 Prometheus 指标
// =============================================================================
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/channel"
	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/config"
	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/metrics"
	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/sim"
	"github.com/Curthaldor/Reliable-Data-Transfer-Simulation/internal/transport"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("c", "config.yaml", "配置文件路径")
	showVersion := flag.Bool("v", false, "显示版本")
	genConfig := flag.Bool("gen-config", false, "生成示例配置文件")
	data := flag.String("data", "", "待发送的文本 (覆盖配置)")
	seed := flag.Int64("seed", 0, "信道随机种子 (0 表示使用配置)")
	maxIter := flag.Int("max-iter", 0, "最大轮数 (0 表示使用配置)")
	logLevel := flag.String("log", "", "日志级别: debug/info/error")

	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	if *genConfig {
		if err := config.WriteExampleConfig("config.example.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "生成配置失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("已生成示例配置文件: config.example.yaml")
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		os.Exit(1)
	}

	// 命令行覆盖
	if *data != "" {
		cfg.Simulation.Data = *data
	}
	if *seed != 0 {
		cfg.Simulation.Seed = *seed
	}
	if *maxIter > 0 {
		cfg.Simulation.MaxIterations = *maxIter
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
			os.Exit(1)
		}
	}

	s, err := sim.New(simConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "仿真创建失败: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 创建 Metrics 服务器
	var metricsServer *metrics.MetricsServer
	var runMetrics *metrics.RunMetrics
	var health *metrics.TransferHealth

	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(
			cfg.Metrics.Listen,
			cfg.Metrics.Path,
			cfg.Metrics.HealthPath,
		)
		runMetrics = metrics.NewRunMetrics(metricsServer.Registry())

		metricsServer.MustRegisterCollector(metrics.NewTransportCollector(s.Client, s.Server))
		metricsServer.MustRegisterCollector(metrics.NewChannelCollector(s.ClientToServer, s.ServerToClient))

		total := len(cfg.Simulation.Data)
		health = metrics.NewTransferHealth(s.Client, s.Server, total, Version)
		metricsServer.SetHealthCheck(health.Check)

		last := time.Now()
		s.OnIteration = func(int) {
			now := time.Now()
			runMetrics.RecordIteration(now.Sub(last).Seconds(), s.Server.Stats().BytesReceived, total)
			last = now
		}
	}

	printBanner(cfg, metricsServer)

	// 启用 Metrics 时仿真结束后继续提供服务，直到收到信号
	g, gctx := errgroup.WithContext(ctx)

	var res *sim.Result
	g.Go(func() error {
		var err error
		res, err = s.Run(gctx)
		if metricsServer != nil {
			if res != nil {
				runMetrics.RecordTransfer(res.Iterations, res.Completed)
				health.Finish(res.Completed, err)
			}
			if err != nil {
				metricsServer.SetHealthy(false)
			}
		}
		return err
	})

	if metricsServer != nil {
		g.Go(func() error {
			return metricsServer.Serve(gctx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "运行失败: %v\n", err)
		os.Exit(1)
	}

	if res == nil {
		os.Exit(1)
	}
	printSummary(res)
	if !res.Completed {
		os.Exit(1)
	}
}

// loadConfig 加载配置，默认路径不存在时使用默认配置
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == "config.yaml" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// simConfig 将文件配置转换为仿真配置
func simConfig(cfg *config.Config) sim.Config {
	level := cfg.LogLevelValue()

	rdt := transport.DefaultRDTConfig()
	rdt.DataLength = cfg.Transport.DataLength
	rdt.FlowControlWinSize = cfg.Transport.WindowSize
	rdt.DupAckThreshold = cfg.Transport.DupAckThreshold

	return sim.Config{
		Data:          cfg.Simulation.Data,
		MaxIterations: cfg.Simulation.MaxIterations,
		Seed:          cfg.Simulation.Seed,
		Transport:     rdt,
		Channel: channel.Config{
			DropPackets:    cfg.Channel.DropPackets,
			ChecksumErrors: cfg.Channel.ChecksumErrors,
			DropRate:       cfg.Channel.DropRate,
			CorruptRate:    cfg.Channel.CorruptRate,
		},
		LogLevel: level,
	}
}

func printVersion() {
	fmt.Printf("RDT Simulation v%s\n", Version)
	fmt.Printf("  Build: %s\n", BuildTime)
	fmt.Printf("  Commit: %s\n", GitCommit)
	fmt.Printf("  Go: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func printBanner(cfg *config.Config, ms *metrics.MetricsServer) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║         RDT Simulation - 滑动窗口 / 累积确认 / 重复 ACK 重传        ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════╝")
	fmt.Printf("  数据长度:   %d 字符\n", len(cfg.Simulation.Data))
	fmt.Printf("  分段/窗口:  %d / %d\n", cfg.Transport.DataLength, cfg.Transport.WindowSize)
	fmt.Printf("  丢包:       %v (%.2f)\n", cfg.Channel.DropPackets, cfg.Channel.DropRate)
	fmt.Printf("  损坏:       %v (%.2f)\n", cfg.Channel.ChecksumErrors, cfg.Channel.CorruptRate)
	fmt.Printf("  随机种子:   %d\n", cfg.Simulation.Seed)
	if ms != nil {
		fmt.Printf("  Metrics:    http://%s%s\n", cfg.Metrics.Listen, cfg.Metrics.Path)
	}
	fmt.Println()
}

func printSummary(res *sim.Result) {
	fmt.Println("$$$$$$$$ DONE $$$$$$$$")
	fmt.Printf("DataSent:     %s\n", res.DataSent)
	fmt.Printf("DataReceived: %s\n", res.DataReceived)
	fmt.Println()
	fmt.Printf("轮数:         %d\n", res.Iterations)
	fmt.Printf("超时次数:     %d\n", res.Timeouts)
	fmt.Printf("重传段数:     %d\n", res.ClientStats.Retransmits)
	fmt.Printf("损坏段数:     %d\n", res.ServerStats.CorruptSegments)
	printChannel("client->server", res.Upstream)
	printChannel("server->client", res.Downstream)
	fmt.Printf("耗时:         %v\n", res.Elapsed)
	fmt.Println()

	if res.Completed {
		fmt.Println("$$$$$$$$ ALL DATA RECEIVED $$$$$$$$")
	} else {
		fmt.Println("$$$$$$$$ DATA RECEIVED INCOMPLETE $$$$$$$$")
	}
}

func printChannel(name string, st channel.Stats) {
	fmt.Printf("%-14s data=%d ack=%d dropped=%d corrupted=%d delivered=%d\n",
		name, st.DataSegments, st.AckSegments, st.Dropped, st.ChecksumErrors, st.Delivered)
}
