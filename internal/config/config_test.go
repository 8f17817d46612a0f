package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHROMIUM_CDP_ADDRESS", "")
	t.Setenv("CHROMIUM_CDP_PORT", "")
	t.Setenv("CAPTUREWATCH_BIND_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := cfg.CDPURL(), "http://127.0.0.1:9220"; got != want {
		t.Fatalf("CDPURL() = %q; want %q", got, want)
	}
	if got, want := cfg.BindAddr, "127.0.0.1:8190"; got != want {
		t.Fatalf("BindAddr = %q; want %q", got, want)
	}
	if !cfg.CDPEnabled || !cfg.PortAutoFallback {
		t.Fatalf("CDPEnabled=%v PortAutoFallback=%v; want both true", cfg.CDPEnabled, cfg.PortAutoFallback)
	}
	if got, want := cfg.DetectTimeout(), 10*time.Second; got != want {
		t.Fatalf("DetectTimeout() = %v; want %v", got, want)
	}
	if cfg.LaunchBrowser || cfg.BrowserStartURL != "about:blank" {
		t.Fatalf("LaunchBrowser=%v BrowserStartURL=%q", cfg.LaunchBrowser, cfg.BrowserStartURL)
	}
	if cfg.DomainBlocklist != nil {
		t.Fatalf("DomainBlocklist = %v; want nil so defaults apply", cfg.DomainBlocklist)
	}
}

func TestLoadOverridesAndClamps(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHROMIUM_CDP_PORT", "9333")
	t.Setenv("CAPTUREWATCH_CDP_ENABLED", "false")
	t.Setenv("CAPTUREWATCH_DETECT_TIMEOUT_MS", "10")
	t.Setenv("CAPTUREWATCH_MAX_CONCURRENT_DETECTIONS", "0")
	t.Setenv("CAPTUREWATCH_PORT_CANDIDATES", " 127.0.0.1:9001, ,127.0.0.1:9002 ")
	t.Setenv("CAPTUREWATCH_DOMAIN_BLOCKLIST", "ads.test,tracker.test")
	t.Setenv("CAPTUREWATCH_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CDPPort != 9333 || cfg.CDPEnabled {
		t.Fatalf("CDPPort=%d CDPEnabled=%v", cfg.CDPPort, cfg.CDPEnabled)
	}
	if got, want := cfg.DetectTimeoutMS, 500; got != want {
		t.Fatalf("DetectTimeoutMS = %d; want %d", got, want)
	}
	if got, want := cfg.MaxConcurrentDetects, 1; got != want {
		t.Fatalf("MaxConcurrentDetects = %d; want %d", got, want)
	}
	if got, want := cfg.PortCandidates, []string{"127.0.0.1:9001", "127.0.0.1:9002"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("PortCandidates = %v; want %v", got, want)
	}
	if got, want := cfg.DomainBlocklist, []string{"ads.test", "tracker.test"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("DomainBlocklist = %v; want %v", got, want)
	}
	if got, want := cfg.LogLevel, "debug"; got != want {
		t.Fatalf("LogLevel = %q; want %q", got, want)
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHROMIUM_CDP_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil; want invalid port")
	}
}
