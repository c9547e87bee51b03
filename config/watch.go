package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 监听配置文件变化，校验通过后回调。
// 监听所在目录而不是文件本身，编辑器 rename 覆盖时也能收到事件。
type Watcher struct {
	Path     string
	Cooldown time.Duration // 防抖：最后一次变化后静默该时长才重载，默认 1s
	Logger   *zap.Logger

	mu      sync.Mutex
	reloads int
}

// Start 阻塞直到 ctx 取消；onUpdate 只会收到校验通过的配置。
func (w *Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Cooldown <= 0 {
		w.Cooldown = time.Second
	}
	if w.Logger == nil {
		w.Logger = zap.NewNop()
	}
	log := w.Logger.Named("config_watcher")

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	abs, err := filepath.Abs(w.Path)
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}
	log.Info("watching config", zap.String("path", abs))

	debounce := time.NewTimer(w.Cooldown)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-debounce.C:
			w.reload(log, onUpdate)
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			// 只处理写入和创建事件
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce.Reset(w.Cooldown)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload(log *zap.Logger, onUpdate func(AppConfig)) {
	cfg, err := LoadWithEnvOverrides(w.Path)
	if err != nil {
		log.Warn("reload rejected, keeping previous config", zap.Error(err))
		return
	}
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	log.Info("config reloaded")
	if onUpdate != nil {
		onUpdate(cfg)
	}
}

// Reloads 已成功重载的次数
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}
