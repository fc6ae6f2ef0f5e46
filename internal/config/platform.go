package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlatformConfig carries platform billing settings that can change without a restart.
type PlatformConfig struct {
	BillingPageURL        string     `mapstructure:"billingPageUrl"`
	SiteURL               string     `mapstructure:"siteUrl"`
	DefaultCurrency       string     `mapstructure:"defaultCurrency"`
	ApplicationFeePercent float64    `mapstructure:"applicationFeePercent"`
	Plans                 []PlanRule `mapstructure:"plans"`
}

// PlanRule maps a platform Stripe product to a local plan type.
type PlanRule struct {
	ProductID string `mapstructure:"productId"`
	PlanType  string `mapstructure:"planType"`
}

func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{
		BillingPageURL:        "http://localhost:3000/settings/billing",
		SiteURL:               "http://localhost:3000",
		DefaultCurrency:       "usd",
		ApplicationFeePercent: 0,
		Plans:                 []PlanRule{},
	}
}

// PlanTypeForProduct returns the plan type configured for a platform product.
func (c PlatformConfig) PlanTypeForProduct(productID string) (string, bool) {
	productID = strings.TrimSpace(productID)
	for _, rule := range c.Plans {
		if rule.ProductID == productID {
			return rule.PlanType, true
		}
	}
	return "", false
}

type PlatformConfigHolder struct {
	current atomic.Value // holds PlatformConfig
}

// NewStaticPlatformConfigHolder returns a holder that never reloads.
func NewStaticPlatformConfigHolder(cfg PlatformConfig) *PlatformConfigHolder {
	holder := &PlatformConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPlatformConfigHolder() (*PlatformConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("platform")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/market")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlatformConfig()
	v.SetDefault("platform.billingPageUrl", defaults.BillingPageURL)
	v.SetDefault("platform.siteUrl", defaults.SiteURL)
	v.SetDefault("platform.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("platform.applicationFeePercent", defaults.ApplicationFeePercent)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg PlatformConfig
	if err := v.UnmarshalKey("platform", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlatformConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPlatformConfigHolder(cfg)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlatformConfig
		if err := v.UnmarshalKey("platform", &updated); err != nil {
			log.Printf("[platform-config] reload failed: %v", err)
			return
		}
		if err := validatePlatformConfig(updated); err != nil {
			log.Printf("[platform-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[platform-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PlatformConfigHolder) Get() PlatformConfig {
	return h.current.Load().(PlatformConfig)
}

func validatePlatformConfig(cfg PlatformConfig) error {
	if strings.TrimSpace(cfg.BillingPageURL) == "" {
		return errors.New("platform.billingPageUrl cannot be empty")
	}
	if _, err := url.Parse(cfg.BillingPageURL); err != nil {
		return fmt.Errorf("platform.billingPageUrl: %w", err)
	}
	if strings.TrimSpace(cfg.SiteURL) == "" {
		return errors.New("platform.siteUrl cannot be empty")
	}
	if cfg.ApplicationFeePercent < 0 || cfg.ApplicationFeePercent > 100 {
		return errors.New("platform.applicationFeePercent must be between 0 and 100")
	}
	seen := map[string]struct{}{}
	for _, rule := range cfg.Plans {
		if strings.TrimSpace(rule.ProductID) == "" || strings.TrimSpace(rule.PlanType) == "" {
			return errors.New("platform.plans entries need productId and planType")
		}
		if _, ok := seen[rule.ProductID]; ok {
			return fmt.Errorf("platform.plans has duplicate product %s", rule.ProductID)
		}
		seen[rule.ProductID] = struct{}{}
	}
	return nil
}
