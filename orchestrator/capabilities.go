// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

// ProviderCapabilities is the static, per-back-end descriptor consulted
// by the query analyzer when scoring candidates. Scores are in [0, 1].
type ProviderCapabilities struct {
	Name               string      `json:"name"`
	StrongFor          []QueryType `json:"strong_for"`
	RecencyScore       float64     `json:"recency_score"`
	ComplexityHandling float64     `json:"complexity_handling"`
	OperatorSupport    float64     `json:"operator_support"`

	// GoodWithDomains lists hostname fragments the provider handles
	// well; "*" matches every mentioned domain.
	GoodWithDomains []string `json:"good_with_domains"`

	AIPowered      bool `json:"ai_powered"`
	PrivacyFocused bool `json:"privacy_focused"`
	NoAds          bool `json:"no_ads"`
	FastResponse   bool `json:"fast_response"`
}

// providerCapabilities is the capability table for the standard
// back-ends. The score contributions derived from these values are
// load-bearing: selection tests pin them down.
var providerCapabilities = map[string]ProviderCapabilities{
	"tavily": {
		Name:               "tavily",
		StrongFor:          []QueryType{QueryTypeFactual, QueryTypeAcademic, QueryTypeCurrentEvents},
		RecencyScore:       0.9,
		ComplexityHandling: 0.8,
		OperatorSupport:    0.9,
		GoodWithDomains:    []string{"*"},
		AIPowered:          true,
		FastResponse:       true,
	},
	"brave": {
		Name:               "brave",
		StrongFor:          []QueryType{QueryTypeTechnical, QueryTypeCode, QueryTypeLocal},
		RecencyScore:       0.7,
		ComplexityHandling: 0.6,
		OperatorSupport:    0.9,
		PrivacyFocused:     true,
		FastResponse:       true,
	},
	"kagi": {
		Name:               "kagi",
		StrongFor:          []QueryType{QueryTypeTechnical, QueryTypeFactual, QueryTypeDefinition},
		RecencyScore:       0.7,
		ComplexityHandling: 0.9,
		OperatorSupport:    0.8,
		GoodWithDomains:    []string{"*"},
		PrivacyFocused:     true,
		NoAds:              true,
	},
	"exa": {
		Name:               "exa",
		StrongFor:          []QueryType{QueryTypeAcademic, QueryTypeCode, QueryTypeHowTo},
		RecencyScore:       0.6,
		ComplexityHandling: 0.9,
		OperatorSupport:    0.5,
		AIPowered:          true,
	},
	"perplexity": {
		Name:               "perplexity",
		StrongFor:          []QueryType{QueryTypeCurrentEvents, QueryTypeFactual, QueryTypeGeneral},
		RecencyScore:       0.9,
		ComplexityHandling: 0.9,
		OperatorSupport:    0.3,
		GoodWithDomains:    []string{"*"},
		AIPowered:          true,
	},
	"kagi_fastgpt": {
		Name:               "kagi_fastgpt",
		StrongFor:          []QueryType{QueryTypeFactual, QueryTypeDefinition, QueryTypeGeneral},
		RecencyScore:       0.7,
		ComplexityHandling: 0.7,
		OperatorSupport:    0.3,
		AIPowered:          true,
		PrivacyFocused:     true,
		NoAds:              true,
		FastResponse:       true,
	},
}

// CapabilitiesFor returns the static descriptor for a provider.
// Unknown providers get a neutral descriptor so third-party adapters
// still participate in scoring.
func CapabilitiesFor(name string) ProviderCapabilities {
	if caps, ok := providerCapabilities[name]; ok {
		return caps
	}
	return ProviderCapabilities{Name: name, RecencyScore: 0.5, ComplexityHandling: 0.5, OperatorSupport: 0.5}
}
