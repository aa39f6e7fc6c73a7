package research

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
	"github.com/xeipuuv/gojsonschema"
)

// Profile names.
const (
	ProfileMarket        = "market"
	ProfileCompetitors   = "competitors"
	ProfileOpportunities = "opportunities"
)

// Contract turns the synthesizer's final text into the caller's payload
type Contract interface {
	// Structured reports whether Decode produces a payload beyond the raw text.
	Structured() bool
	// Decode validates text against the contract and returns the decoded payload.
	Decode(text string) (any, error)
}

// Profile pairs planner and synthesizer instructions with an output contract.
type Profile struct {
	Name                   string
	PlannerInstruction     string
	SynthesizerInstruction string
	Contract               Contract
}

// TextContract accepts any narrative unchanged
type TextContract struct{}

func (TextContract) Structured() bool { return false }

func (TextContract) Decode(text string) (any, error) { return text, nil }

// JSONContract validates text against a schema reflected from T and decodes it into *T.
type JSONContract[T any] struct {
	profile string
	schema  *gojsonschema.Schema
}

// NewJSONContract reflects the schema of T and compiles it for validation
func NewJSONContract[T any](profile string) (*JSONContract[T], error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
		Anonymous:                 true,
	}
	var v T
	reflected := reflector.Reflect(v)
	reflected.Version = ""

	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s schema: %w", profile, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s schema: %w", profile, err)
	}

	return &JSONContract[T]{profile: profile, schema: schema}, nil
}

func (c *JSONContract[T]) Structured() bool { return true }

// Decode returns *T. Text must be a bare JSON document; code fences are rejected.
func (c *JSONContract[T]) Decode(text string) (any, error) {
	text = strings.TrimSpace(text)

	result, err := c.schema.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return nil, &PayloadDecodeError{Profile: c.profile, Detail: "invalid JSON: " + err.Error(), Raw: text}
	}
	if !result.Valid() {
		details := lo.Map(result.Errors(), func(e gojsonschema.ResultError, _ int) string {
			return e.String()
		})
		return nil, &PayloadDecodeError{Profile: c.profile, Detail: strings.Join(details, "; "), Raw: text}
	}

	out := new(T)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return nil, &PayloadDecodeError{Profile: c.profile, Detail: err.Error(), Raw: text}
	}
	return out, nil
}

func mustJSONContract[T any](profile string) *JSONContract[T] {
	c, err := NewJSONContract[T](profile)
	if err != nil {
		panic(err)
	}
	return c
}

var builtinProfiles = map[string]Profile{
	ProfileMarket: {
		Name:                   ProfileMarket,
		PlannerInstruction:     marketResearchInstruction,
		SynthesizerInstruction: marketSummaryInstruction,
		Contract:               TextContract{},
	},
	ProfileCompetitors: {
		Name:                   ProfileCompetitors,
		PlannerInstruction:     marketResearchInstruction,
		SynthesizerInstruction: competitorComparisonInstruction,
		Contract:               mustJSONContract[CompetitorReport](ProfileCompetitors),
	},
	ProfileOpportunities: {
		Name:                   ProfileOpportunities,
		PlannerInstruction:     opportunityResearchInstruction,
		SynthesizerInstruction: opportunitySummaryInstruction,
		Contract:               mustJSONContract[OpportunityReport](ProfileOpportunities),
	},
}

// ProfileByName returns a built-in profile. An empty name selects market.
func ProfileByName(name string) (Profile, error) {
	if name == "" {
		name = ProfileMarket
	}
	p, ok := builtinProfiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return p, nil
}

// ProfileNames lists the built-in profiles in sorted order
func ProfileNames() []string {
	names := lo.Keys(builtinProfiles)
	sort.Strings(names)
	return names
}
