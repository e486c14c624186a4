package config

import (
	"os"
	"reflect"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "TRANSFER_EXPIRY_MINUTES")
	unsetEnvWithCleanup(t, "POINTS_REFERENCE_CURRENCY")
	unsetEnvWithCleanup(t, "POINTS_DISCOUNT_PAIRS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.TransferExpiryMinutes != 30 {
		t.Fatalf("expected default expiry of 30 minutes, got %d", cfg.TransferExpiryMinutes)
	}
	if cfg.PointsReferenceCurrency != "USD" {
		t.Fatalf("expected default reference currency USD, got %q", cfg.PointsReferenceCurrency)
	}
	if want := []string{"RUB:NGN"}; !reflect.DeepEqual(cfg.DiscountPairs(), want) {
		t.Fatalf("expected default discount pairs %v, got %v", want, cfg.DiscountPairs())
	}
}

func TestLoadConfig_PortEnvOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9999")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9999" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_NonPositiveExpiryFallsBackToDefault(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "TRANSFER_EXPIRY_MINUTES", "-5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TransferExpiryMinutes != 30 {
		t.Fatalf("expected expiry clamped to 30, got %d", cfg.TransferExpiryMinutes)
	}
}

func TestDiscountPairs_SplitsAndTrims(t *testing.T) {
	cfg := Config{PointsDiscountPairs: " RUB:NGN , RUB:USD ,, "}

	want := []string{"RUB:NGN", "RUB:USD"}
	if got := cfg.DiscountPairs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
