package providers

import "testing"

func TestRegistry_Reload(t *testing.T) {
	cfg := RegistryConfig{
		LLMProviders: map[string]LLMProviderConfig{
			"openrouter": {Type: "openrouter", APIKey: "k", Model: "m", Enabled: true},
			"disabled":   {Type: "openrouter", APIKey: "k", Enabled: false},
			"nokey":      {Type: "openrouter", Enabled: true},
		},
	}

	r := NewRegistryFromConfig(cfg)
	if !r.HasLLM("openrouter") {
		t.Fatal("expected openrouter to be registered")
	}
	if r.HasLLM("disabled") || r.HasLLM("nokey") {
		t.Errorf("expected only enabled providers with keys, got %v", r.ListLLM())
	}

	first, _ := r.GetLLM("openrouter")

	t.Run("unchanged config keeps client", func(t *testing.T) {
		r.Reload(cfg)
		again, _ := r.GetLLM("openrouter")
		if again != first {
			t.Error("expected same client instance")
		}
	})

	t.Run("changed config rebuilds client", func(t *testing.T) {
		cfg.LLMProviders["openrouter"] = LLMProviderConfig{Type: "openrouter", APIKey: "k2", Model: "m", Enabled: true}
		r.Reload(cfg)
		updated, _ := r.GetLLM("openrouter")
		if updated == first {
			t.Error("expected a new client instance")
		}
	})

	t.Run("removed provider is unregistered", func(t *testing.T) {
		r.RegisterLLM("mock", NewMockClient())
		r.Reload(RegistryConfig{})
		if r.HasLLM("openrouter") {
			t.Error("expected openrouter to be removed")
		}
		if !r.HasLLM("mock") {
			t.Error("expected manually registered client to remain")
		}
	})

	t.Run("unknown type is skipped", func(t *testing.T) {
		r.Reload(RegistryConfig{LLMProviders: map[string]LLMProviderConfig{
			"weird": {Type: "weird", APIKey: "k", Enabled: true},
		}})
		if r.HasLLM("weird") {
			t.Error("expected unknown provider type to be skipped")
		}
	})

	if _, err := r.GetLLM("missing"); err == nil {
		t.Error("expected error for missing client")
	}
}
