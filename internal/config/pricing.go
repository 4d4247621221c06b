package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/theirongolddev/cpusage/internal/model"
)

// ErrPricingConfig marks a pricing artifact that cannot be used. Fatal to a run.
var ErrPricingConfig = errors.New("pricing configuration")

// PricingRule holds per-million-token USD rates for one model.
type PricingRule struct {
	InputPerMTok  decimal.Decimal
	OutputPerMTok decimal.Decimal
}

// Cost prices prompt and completion tokens under this rule.
func (r PricingRule) Cost(promptTokens, completionTokens int64) model.CostBreakdown {
	in := decimal.NewFromInt(promptTokens).Mul(r.InputPerMTok).Shift(-6)
	out := decimal.NewFromInt(completionTokens).Mul(r.OutputPerMTok).Shift(-6)
	return model.CostBreakdown{
		InputCost:  in,
		OutputCost: out,
		TotalCost:  in.Add(out),
	}
}

// CostOf prices a usage record. Unsplit tokens are priced as output tokens
// on top of the split counts; the second return value reports whether any
// were.
func (r PricingRule) CostOf(rec model.UsageRecord) (model.CostBreakdown, bool) {
	rec = rec.MarkUnsplit()
	return r.Cost(rec.PromptTokens, rec.CompletionTokens+rec.UnsplitTokens), rec.UnsplitTokens > 0
}

// Pricing resolves model names to rules. Immutable once loaded.
type Pricing struct {
	def    PricingRule
	models map[string]PricingRule
}

// rawRate mirrors one rate block of the pricing file. Pointers tell absent from zero.
type rawRate struct {
	InputPerMillion  *decimal.Decimal `json:"input_token_per_million"`
	OutputPerMillion *decimal.Decimal `json:"output_token_per_million"`
}

type rawPricing struct {
	Pricing struct {
		Default *rawRate `json:"default"`
	} `json:"pricing"`
	Models map[string]rawRate `json:"models"`
}

// LoadPricing reads the pricing JSON file at path.
func LoadPricing(path string) (*Pricing, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from flags or config
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrPricingConfig, path, err)
	}
	p, err := ParsePricing(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParsePricing decodes a pricing document.
//
// The document must carry pricing.default with both rates. Entries under
// models may set either rate; a missing one inherits the default rule's rate.
func ParsePricing(data []byte) (*Pricing, error) {
	var raw rawPricing
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPricingConfig, err)
	}

	d := raw.Pricing.Default
	if d == nil || d.InputPerMillion == nil || d.OutputPerMillion == nil {
		return nil, fmt.Errorf("%w: pricing.default must set input_token_per_million and output_token_per_million", ErrPricingConfig)
	}

	p := &Pricing{
		def: PricingRule{
			InputPerMTok:  *d.InputPerMillion,
			OutputPerMTok: *d.OutputPerMillion,
		},
		models: make(map[string]PricingRule, len(raw.Models)),
	}
	if err := checkRule("default", p.def); err != nil {
		return nil, err
	}

	for name, rr := range raw.Models {
		rule := p.def
		if rr.InputPerMillion != nil {
			rule.InputPerMTok = *rr.InputPerMillion
		}
		if rr.OutputPerMillion != nil {
			rule.OutputPerMTok = *rr.OutputPerMillion
		}
		if err := checkRule(name, rule); err != nil {
			return nil, err
		}
		p.models[name] = rule
	}

	return p, nil
}

func checkRule(name string, r PricingRule) error {
	if r.InputPerMTok.IsNegative() || r.OutputPerMTok.IsNegative() {
		return fmt.Errorf("%w: %s has a negative rate", ErrPricingConfig, name)
	}
	return nil
}

// NewPricing builds a resolver from in-memory rules.
func NewPricing(def PricingRule, models map[string]PricingRule) *Pricing {
	p := &Pricing{def: def, models: make(map[string]PricingRule, len(models))}
	for k, v := range models {
		p.models[k] = v
	}
	return p
}

// Resolve returns the rule for model: an exact override if one exists,
// otherwise the default rule.
func (p *Pricing) Resolve(name string) PricingRule {
	if r, ok := p.models[name]; ok {
		return r
	}
	return p.def
}

// Default returns the default rule.
func (p *Pricing) Default() PricingRule {
	return p.def
}

// Models returns the override names in sorted order.
func (p *Pricing) Models() []string {
	names := lo.Keys(p.models)
	sort.Strings(names)
	return names
}
