package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/model/anthropic"
	"github.com/hupe1980/agentrelay/model/openai"
)

const googleOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// buildProviders creates one provider per provider kind the configuration
// references. Credentials come from <KIND>_API_KEYS (comma separated, for
// rotation) or <KIND>_API_KEY. Kinds without credentials are skipped; the
// runner fails over past their models.
func buildProviders(cfg *config.Config, mock bool, logger logging.Logger) (map[string]model.Provider, error) {
	kinds := requiredKinds(cfg)
	providers := make(map[string]model.Provider, len(kinds))

	for _, kind := range kinds {
		if mock {
			providers[kind.String()] = model.NewMockProvider(kind)
			continue
		}

		keys := apiKeys(kind)
		if len(keys) == 0 {
			continue
		}

		switch kind {
		case model.KindAnthropic:
			providers[kind.String()] = anthropic.NewProvider(func(o *anthropic.Options) {
				o.APIKeys = keys
				o.Logger = logger
			})
		case model.KindOpenAI:
			providers[kind.String()] = openai.NewProvider(func(o *openai.Options) {
				o.APIKeys = keys
				o.Logger = logger
			})
		case model.KindGoogle:
			providers[kind.String()] = openai.NewProvider(func(o *openai.Options) {
				o.APIKeys = keys
				o.Logger = logger
				o.BaseURL = googleOpenAIBaseURL
				o.Kind = model.KindGoogle
			})
		}
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no provider credentials found (set ANTHROPIC_API_KEY, OPENAI_API_KEY or GOOGLE_API_KEY, or use --mock)")
	}

	return providers, nil
}

// requiredKinds lists the provider kinds of every model id in cfg, in a
// stable order.
func requiredKinds(cfg *config.Config) []model.ProviderKind {
	ids := []string{cfg.DefaultModel}
	for _, a := range cfg.Agents {
		ids = append(ids, a.Model)
	}
	for _, f := range cfg.Fallbacks {
		ids = append(ids, f.Primary)
		ids = append(ids, f.Models...)
	}

	seen := make(map[model.ProviderKind]bool)
	for _, id := range ids {
		if id == "" {
			continue
		}
		kind, ok := cfg.ProviderKind(id)
		if !ok {
			prefix, _ := model.SplitModelID(id)
			kind = model.ParseProviderKind(prefix)
		}
		if kind != model.KindOther {
			seen[kind] = true
		}
	}

	var kinds []model.ProviderKind
	for _, k := range []model.ProviderKind{model.KindAnthropic, model.KindOpenAI, model.KindGoogle} {
		if seen[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func apiKeys(kind model.ProviderKind) []string {
	prefix := strings.ToUpper(kind.String())
	if v := os.Getenv(prefix + "_API_KEYS"); v != "" {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		return keys
	}
	if v := os.Getenv(prefix + "_API_KEY"); v != "" {
		return []string{v}
	}
	return nil
}
