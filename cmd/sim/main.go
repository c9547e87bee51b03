package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"binary-trader-go/infrastructure/logger"
	"binary-trader-go/internal/store"
	"binary-trader-go/order"
	"binary-trader-go/risk"
	"binary-trader-go/sim"
	"binary-trader-go/strategy"
)

// 离线模拟：纸面券商 + 模拟时钟，按 tick 驱动完整的开仓、加仓、结算链路。
// 不连接真实券商，结果由 seed 决定，可复现。
func main() {
	assets := flag.String("assets", "EURUSD,GBPUSD", "标的，逗号分隔")
	steps := flag.Int("steps", 3600, "模拟步数（每步一个 tick）")
	tick := flag.Duration("tick", time.Second, "tick 间隔")
	duration := flag.Duration("duration", time.Minute, "合约时长")
	candle := flag.Duration("candle", time.Minute, "K 线周期")
	signalType := flag.String("signal", "candle", "信号类型 candle/trend")
	baseStake := flag.Float64("baseStake", 1, "倍投起始金额")
	multiplier := flag.Float64("multiplier", 2, "倍投倍数")
	maxSteps := flag.Int("maxSteps", 3, "倍投最大步数")
	reinforce := flag.Bool("reinforce", true, "启用逆向加仓")
	adverse := flag.Float64("adversePct", 0.002, "加仓触发的逆向幅度")
	payout := flag.Float64("payout", 1.8, "纸面赔率")
	vol := flag.Float64("vol", 0.0005, "每步相对波动")
	seed := flag.Int64("seed", 1, "随机种子")
	dropRate := flag.Float64("pushDrop", 0, "推送丢失概率")
	errRate := flag.Float64("queryErr", 0, "查询失败概率")
	stopLoss := flag.Float64("stopLoss", 0, "会话止损（0 关闭）")
	csvPath := flag.String("csv", "", "结果 CSV 路径（可选）")
	verbose := flag.Bool("v", false, "输出调试日志")
	flag.Parse()

	lg := logger.NewNop()
	if *verbose {
		var err error
		lg, err = logger.New(logger.Config{Level: "debug", Outputs: []string{"stdout"}, Format: "console"})
		if err != nil {
			log.Fatalf("init logger: %v", err)
		}
	}

	var sinks []order.ResultSink
	if *csvPath != "" {
		j, err := store.OpenJournal(*csvPath, "")
		if err != nil {
			log.Fatalf("open csv: %v", err)
		}
		defer j.Close()
		sinks = append(sinks, j)
	}

	runner, err := sim.BuildRunner(sim.RunnerConfig{
		Assets:         splitAssets(*assets),
		TickInterval:   *tick,
		Duration:       *duration,
		CandleInterval: *candle,
		Signal:         strategy.SignalType(*signalType),
		Martingale: risk.MartingaleConfig{
			BaseStake:  decimal.NewFromFloat(*baseStake),
			Multiplier: decimal.NewFromFloat(*multiplier),
			MaxSteps:   *maxSteps,
		},
		Reinforce:  *reinforce,
		AdversePct: *adverse,
		Guard:      risk.GuardConfig{StopLoss: decimal.NewFromFloat(*stopLoss)},
		Paper: sim.PaperConfig{
			Payout:         decimal.NewFromFloat(*payout),
			Volatility:     *vol,
			Seed:           *seed,
			PushDropRate:   *dropRate,
			QueryErrorRate: *errRate,
		},
		Sinks:  sinks,
		Logger: lg,
	})
	if err != nil {
		log.Fatalf("build runner: %v", err)
	}

	ctx := context.Background()
	runner.Run(ctx, *steps)
	rep := runner.Drain(ctx, int((*duration+30*time.Second) / *tick))

	fmt.Printf("steps=%d opened=%d reinforcements=%d rejected=%d pending=%d\n",
		rep.Steps, rep.Opened, rep.Reinforcements, rep.Rejected, rep.Pending)
	fmt.Printf("primary resolved=%d win=%d loss=%d draw=%d martingale_step=%d\n",
		rep.Resolved, rep.Wins, rep.Losses, rep.Draws, rep.MartingaleStep)
	fmt.Printf("closed=%d forced=%d win_rate=%.2f%% net=%s max_drawdown=%s\n",
		rep.Stats.Total, rep.Stats.Forced, rep.Stats.WinRate*100, rep.NetProfit.StringFixed(2), rep.MaxDrawdown.StringFixed(2))
	for asset, as := range rep.Stats.ByAsset {
		fmt.Printf("  %s total=%d wins=%d net=%s\n", asset, as.Total, as.Wins, as.NetProfit.StringFixed(2))
	}
}

func splitAssets(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(strings.ToUpper(a)); a != "" {
			out = append(out, a)
		}
	}
	return out
}
