// control/hotreload.go
// Manages reload hooks fired when the config file changes on disk.

package control

import (
	"fmt"
	"slices"
	"sync"

	"github.com/knadh/koanf/providers/file"
)

var (
	hooksMu     sync.Mutex
	reloadHooks []func(*Config)
)

// RegisterReloadHook adds a component reload listener.
func RegisterReloadHook(fn func(*Config)) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	reloadHooks = append(reloadHooks, fn)
}

// TriggerHotReloadSync invokes all hooks in registration order.
func TriggerHotReloadSync(cfg *Config) {
	hooksMu.Lock()
	hooks := slices.Clone(reloadHooks)
	hooksMu.Unlock()
	for _, fn := range hooks {
		fn(cfg)
	}
}

// WatchConfig reloads path on every change and fires the hooks with the new
// Config. Load failures are passed to onError and the previous config stays.
func WatchConfig(path string, onError func(error)) error {
	fp := file.Provider(path)
	err := fp.Watch(func(_ interface{}, err error) {
		if err != nil {
			onError(fmt.Errorf("watch %s: %w", path, err))
			return
		}
		cfg, err := Load(path)
		if err != nil {
			onError(err)
			return
		}
		TriggerHotReloadSync(cfg)
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return nil
}
