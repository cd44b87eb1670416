// Package strategy 定义策略回调契约和注册表。
// 策略通过静态注册的窄接口接入：只多态于产出信号这一件事，拿不到账本。
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"athena-engine/internal/model"
	"athena-engine/internal/service"
)

// Strategy 策略回调契约：输入 (时间标签, 价格)，输出信号。
// 实现可以跨调用累积内部状态（例如滚动窗口），但在预热期未满时
// 必须返回 SignalNone。严禁直接改动账本。
type Strategy interface {
	Signal(timeLabel string, price float64) model.Signal
}

// Factory 按配置构造一个策略实例
type Factory func(cfg *service.StrategyConfig) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register 注册一个命名策略。同名重复注册会 panic，注册应在 init 中完成。
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("strategy %q registered twice", name))
	}
	registry[name] = factory
}

// New 按名字构造策略。未注册的名字属于配置错误。
func New(cfg *service.StrategyConfig) (Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (registered: %v)", cfg.Name, Names())
	}
	return factory(cfg)
}

// Names 已注册的策略名列表，用于报错提示
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SafeSignal 调用策略并捕获 panic：策略异常不允许带崩引擎。
// 返回的 err 非空时信号一律是 SignalNone，由调用方按错误策略决定继续或终止。
func SafeSignal(s Strategy, timeLabel string, price float64) (sig model.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = model.SignalNone
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()
	sig = s.Signal(timeLabel, price)
	if sig == "" {
		sig = model.SignalNone
	}
	return sig, nil
}
