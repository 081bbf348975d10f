package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"namesmith-ai-api/pkg/logger"
)

// Manager 持有当前生效的配置，并在配置文件变更时热更新
type Manager struct {
	dir     string
	current atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(*Config)

	debounce time.Duration
}

// NewManager 以已加载的配置创建管理器
func NewManager(dir string, cfg *Config) *Manager {
	m := &Manager{dir: dir, debounce: 200 * time.Millisecond}
	m.current.Store(cfg)
	return m
}

// NewStaticManager 创建不监听文件的管理器（测试与 CLI 使用）
func NewStaticManager(cfg *Config) *Manager {
	return NewManager("", cfg)
}

// Current 返回当前配置快照，调用方不应修改返回值
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// OnChange 注册配置变更回调
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Swap 替换当前配置并通知订阅者
func (m *Manager) Swap(cfg *Config) {
	m.current.Store(cfg)

	m.mu.Lock()
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// Reload 从磁盘重新加载；加载失败时保留旧配置
func (m *Manager) Reload() error {
	if m.dir == "" {
		return fmt.Errorf("config manager has no directory to reload from")
	}
	cfg, err := LoadFrom(m.dir)
	if err != nil {
		return err
	}
	m.Swap(cfg)
	return nil
}

// Watch 监听配置目录，直到 ctx 结束
func (m *Manager) Watch(ctx context.Context) error {
	if m.dir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config dir %s: %w", m.dir, err)
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isConfigEvent(ev) {
					continue
				}
				// 编辑器保存通常产生多次事件，合并为一次重载
				if timer == nil {
					timer = time.NewTimer(m.debounce)
				} else {
					timer.Reset(m.debounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				if err := m.Reload(); err != nil {
					logger.Error(ctx, "config reload failed, keeping previous config", err, "dir", m.dir)
					continue
				}
				logger.Info(ctx, "config reloaded", "dir", m.dir)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn(ctx, "config watcher error", "error", err.Error())
			}
		}
	}()

	return nil
}

func isConfigEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(ev.Name))
	return ext == ".yaml" || ext == ".yml"
}
