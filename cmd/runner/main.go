package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"binary-trader-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	envFile := flag.String("env", ".env", "环境变量文件，不存在时忽略")
	healthEvery := flag.Duration("health", 30*time.Second, "健康检查间隔")
	flag.Parse()

	// .env 只补充未设置的变量，已有环境变量优先
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("加载 %s 失败: %v", *envFile, err)
	}

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	lg := c.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		lg.Error("启动失败", zap.Error(err))
		_ = c.Stop()
		os.Exit(1)
	}
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		lg.Warn("sd_notify failed", zap.Error(err))
	} else if ok {
		lg.Info("systemd notified ready")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watchHealth(gctx, c, *healthEvery)
	})
	g.Go(func() error {
		// 收到退出信号
		<-gctx.Done()
		return gctx.Err()
	})

	err = g.Wait()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	lg.Info("shutting down", zap.NamedError("reason", err))

	stats := c.Engine().GetStatistics()
	summary := fmt.Sprintf("opened=%d resolved=%d wins=%d losses=%d draws=%d reinforcements=%d",
		stats.TotalOpened, stats.Resolved, stats.Wins, stats.Losses, stats.Draws, stats.Reinforcements)
	if err := c.Stop(); err != nil {
		log.Printf("停止时出现错误: %v", err)
	}
	fmt.Println(summary)
	if err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}

// watchHealth 周期性检查组件健康并向 systemd 发送看门狗心跳。
// 连续三次不健康时返回错误，触发退出。
func watchHealth(ctx context.Context, c *container.Container, every time.Duration) error {
	if every <= 0 {
		return nil
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.HealthCheck(); err != nil {
				failures++
				c.Logger().Warn("health check failed", zap.Error(err), zap.Int("consecutive", failures))
				if failures >= 3 {
					return fmt.Errorf("unhealthy: %w", err)
				}
				continue
			}
			failures = 0
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
