package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FlagSpec declares one feature flag and its per-channel shipped defaults.
// Shipped defaults seed the store on first sight of a key; operator
// mutations own the rows afterwards.
type FlagSpec struct {
	Key      string          `mapstructure:"key"`
	Name     string          `mapstructure:"name"`
	Channels map[string]bool `mapstructure:"channels"`
}

type FlagCatalog struct {
	Flags []FlagSpec `mapstructure:"flags"`
}

func DefaultFlagCatalog() FlagCatalog {
	return FlagCatalog{
		Flags: []FlagSpec{
			{
				Key:      "dispatch.auto_assign",
				Name:     "Automatic load assignment",
				Channels: map[string]bool{"internal": true, "pilot": true, "general": false},
			},
			{
				Key:      "dispatch.load_board_v2",
				Name:     "Redesigned load board",
				Channels: map[string]bool{"internal": true, "pilot": false, "general": false},
			},
			{
				Key:      "routing.live_traffic",
				Name:     "Live traffic aware routing",
				Channels: map[string]bool{"internal": true, "pilot": true, "general": true},
			},
			{
				Key:      "billing.consolidated_invoices",
				Name:     "Consolidated invoice runs",
				Channels: map[string]bool{"internal": true, "pilot": false, "general": false},
			},
			{
				Key:      "mobile.driver_messaging",
				Name:     "Driver messaging",
				Channels: map[string]bool{"internal": true, "pilot": true, "general": false},
			},
		},
	}
}

type FlagCatalogHolder struct {
	current atomic.Value // holds FlagCatalog

	mu       sync.Mutex
	onChange []func(FlagCatalog)
}

func NewFlagCatalogHolder() (*FlagCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("flags")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/gatehouse/config") // Volume-mounted config
	v.AddConfigPath("/etc/gatehouse")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("GATEHOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, ship the built-in catalog
		defaults := DefaultFlagCatalog()
		v.SetDefault("catalog.flags", defaults.Flags)
	}

	var cat FlagCatalog
	if err := v.UnmarshalKey("catalog", &cat); err != nil {
		return nil, err
	}
	if err := validateFlagCatalog(cat); err != nil {
		return nil, err
	}

	holder := &FlagCatalogHolder{}
	holder.current.Store(cat)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated FlagCatalog
		if err := v.UnmarshalKey("catalog", &updated); err != nil {
			log.Printf("[flag-catalog] reload failed: %v", err)
			return
		}
		if err := validateFlagCatalog(updated); err != nil {
			log.Printf("[flag-catalog] invalid catalog ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[flag-catalog] reloaded from %s", e.Name)
		holder.notify(updated)
	})

	return holder, nil
}

func (h *FlagCatalogHolder) Get() FlagCatalog {
	return h.current.Load().(FlagCatalog)
}

// OnChange registers fn to run after every successful hot reload.
func (h *FlagCatalogHolder) OnChange(fn func(FlagCatalog)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

func (h *FlagCatalogHolder) notify(cat FlagCatalog) {
	h.mu.Lock()
	fns := make([]func(FlagCatalog), len(h.onChange))
	copy(fns, h.onChange)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(cat)
	}
}

func validateFlagCatalog(cat FlagCatalog) error {
	if len(cat.Flags) == 0 {
		return errors.New("catalog.flags cannot be empty")
	}
	seen := make(map[string]struct{}, len(cat.Flags))
	for _, f := range cat.Flags {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			return errors.New("catalog.flags entry with empty key")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("catalog.flags duplicate key %q", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
