package config

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AgentKeysObjectKey is the bucket path holding provisioned agent credentials.
const AgentKeysObjectKey = "config/agent_keys.json"

// AgentKey describes one provisioned agent credential from the S3 overlay.
type AgentKey struct {
	Key      string   `json:"key"`
	Enabled  bool     `json:"enabled"`
	Name     string   `json:"name"`
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes,omitempty"`
}

type agentKeyFile struct {
	Keys []AgentKey `json:"keys"`
}

// AgentKeyLoader serves agent API keys from the S3 overlay. Lookups hit an
// in-memory map; refreshes happen in the background off the request path.
type AgentKeyLoader struct {
	loader *S3Loader
	logger *slog.Logger

	mu    sync.RWMutex
	byKey map[string]*AgentKey
}

// NewAgentKeyLoader creates a loader over the given client and bucket.
// A nil client yields a loader that never matches anything.
func NewAgentKeyLoader(client *s3.Client, bucket string, logger *slog.Logger) *AgentKeyLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentKeyLoader{
		loader: NewS3Loader(S3LoaderConfig{
			Client: client,
			Bucket: bucket,
			Key:    AgentKeysObjectKey,
			Logger: logger,
		}),
		logger: logger,
		byKey:  map[string]*AgentKey{},
	}
}

// Enabled reports whether the overlay is configured.
func (a *AgentKeyLoader) Enabled() bool {
	return a.loader.Enabled()
}

// MaybeRefresh kicks off a background refresh when one is due. Callers on the
// request path never wait for S3.
func (a *AgentKeyLoader) MaybeRefresh(ctx context.Context) {
	if !a.loader.ShouldRefresh() {
		return
	}
	go a.refresh(context.WithoutCancel(ctx))
}

// Refresh fetches and applies the key file synchronously. Used at startup.
func (a *AgentKeyLoader) Refresh(ctx context.Context) error {
	return a.refresh(ctx)
}

func (a *AgentKeyLoader) refresh(ctx context.Context) error {
	data, changed, err := a.loader.Fetch(ctx)
	if err != nil || !changed {
		return err
	}

	var file agentKeyFile
	if err := json.Unmarshal(data, &file); err != nil {
		a.logger.Error("failed to parse agent key file", "error", err)
		return err
	}

	a.apply(file.Keys)
	a.logger.Info("agent keys loaded", "count", a.Count())
	return nil
}

func (a *AgentKeyLoader) apply(keys []AgentKey) {
	byKey := make(map[string]*AgentKey, len(keys))
	for i := range keys {
		k := &keys[i]
		if k.Key == "" {
			continue
		}
		byKey[k.Key] = k
	}

	a.mu.Lock()
	a.byKey = byKey
	a.mu.Unlock()
}

// Lookup returns the credential for key, or nil when unknown or disabled.
func (a *AgentKeyLoader) Lookup(key string) *AgentKey {
	a.mu.RLock()
	defer a.mu.RUnlock()
	k, ok := a.byKey[key]
	if !ok || !k.Enabled {
		return nil
	}
	return k
}

// Count returns the number of loaded keys.
func (a *AgentKeyLoader) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byKey)
}
