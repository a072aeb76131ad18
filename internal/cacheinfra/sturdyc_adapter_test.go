package cacheinfra

import (
	"errors"
	"sort"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capacity != 1024 {
		t.Errorf("expected Capacity to be 1024, got %d", cfg.Capacity)
	}

	if cfg.NumShards != 16 {
		t.Errorf("expected NumShards to be 16, got %d", cfg.NumShards)
	}

	if cfg.TTL < 365*24*time.Hour {
		t.Errorf("expected TTL to outlive a session, got %v", cfg.TTL)
	}

	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantField string
		wantMsg   string
	}{
		{
			name: "valid default config",
			cfg:  DefaultConfig(),
		},
		{
			name: "invalid capacity - zero",
			cfg: Config{
				Capacity:           0,
				NumShards:          16,
				TTL:                time.Hour,
				EvictionPercentage: 10,
			},
			wantField: "Capacity",
			wantMsg:   "must be greater than 0",
		},
		{
			name: "invalid capacity - negative",
			cfg: Config{
				Capacity:           -4,
				NumShards:          16,
				TTL:                time.Hour,
				EvictionPercentage: 10,
			},
			wantField: "Capacity",
			wantMsg:   "must be greater than 0",
		},
		{
			name: "invalid num shards - zero",
			cfg: Config{
				Capacity:           100,
				NumShards:          0,
				TTL:                time.Hour,
				EvictionPercentage: 10,
			},
			wantField: "NumShards",
			wantMsg:   "must be greater than 0",
		},
		{
			name: "invalid TTL - zero",
			cfg: Config{
				Capacity:           100,
				NumShards:          16,
				TTL:                0,
				EvictionPercentage: 10,
			},
			wantField: "TTL",
			wantMsg:   "must be greater than 0",
		},
		{
			name: "invalid eviction percentage - too high",
			cfg: Config{
				Capacity:           100,
				NumShards:          16,
				TTL:                time.Hour,
				EvictionPercentage: 101,
			},
			wantField: "EvictionPercentage",
			wantMsg:   "must be between 1 and 100",
		},
		{
			name: "invalid eviction interval - negative",
			cfg: Config{
				Capacity:           100,
				NumShards:          16,
				TTL:                time.Hour,
				EvictionPercentage: 10,
				EvictionInterval:   -time.Second,
			},
			wantField: "EvictionInterval",
			wantMsg:   "must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("expected no validation error but got: %v", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T (%v)", err, err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, cfgErr.Field)
			}
			if cfgErr.Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, cfgErr.Message)
			}
		})
	}
}

func TestConfig_ToSturdycOptions(t *testing.T) {
	cfg := DefaultConfig()
	if got := len(cfg.ToSturdycOptions()); got != 0 {
		t.Errorf("expected no sturdyc options for default config, got %d", got)
	}

	cfg.EvictionInterval = time.Minute
	if got := len(cfg.ToSturdycOptions()); got != 1 {
		t.Errorf("expected 1 sturdyc option with eviction interval, got %d", got)
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{
		Field:   "TestField",
		Message: "test message",
	}

	expected := "config error in field TestField: test message"
	if err.Error() != expected {
		t.Errorf("expected error message %q, got %q", expected, err.Error())
	}
}

func TestNewSturdycStore(t *testing.T) {
	store, err := NewSturdycStore[string](DefaultConfig())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if store == nil {
		t.Fatal("expected store to be non-nil")
	}

	bad := DefaultConfig()
	bad.Capacity = 0
	store, err = NewSturdycStore[string](bad)
	if err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if err.Error() != "config error in field Capacity: must be greater than 0" {
		t.Errorf("unexpected error message %q", err.Error())
	}
	if store != nil {
		t.Error("expected store to be nil when error occurs")
	}
}

func TestSturdycStore_GetSetDelete(t *testing.T) {
	store, err := NewSturdycStore[int](DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}

	store.Set("a", 1)
	store.Set("a", 2)

	got, ok := store.Get("a")
	if !ok || got != 2 {
		t.Errorf("expected replaced value 2, got %d (ok=%v)", got, ok)
	}

	store.Delete("a")
	if _, ok := store.Get("a"); ok {
		t.Error("expected key to be deleted")
	}
}

func TestSturdycStore_DeleteByPrefix(t *testing.T) {
	store, err := NewSturdycStore[int](DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	store.Set("registrations::fetch::1", 1)
	store.Set("registrations::fetch::2", 2)
	store.Set("billing::fetch::1", 3)

	removed := store.DeleteByPrefix("registrations::")
	if removed != 2 {
		t.Errorf("expected 2 keys removed, got %d", removed)
	}

	keys := store.Keys()
	sort.Strings(keys)
	if len(keys) != 1 || keys[0] != "billing::fetch::1" {
		t.Errorf("unexpected remaining keys: %v", keys)
	}
	if store.Len() != 1 {
		t.Errorf("expected Len 1, got %d", store.Len())
	}
}
