package research

import (
	"encoding/json"
)

// Extra holds members a payload object does not name. They survive decode and
// re-encode so the caller sees the document the model produced.
type Extra map[string]any

// Competitor is one company in the space of the idea.
type Competitor struct {
	Name              string  `json:"name" jsonschema:"description=Company name"`
	Description       string  `json:"description" jsonschema:"description=What the company does"`
	MarketFocus       *string `json:"market_focus,omitempty" jsonschema:"description=Enterprise or Consumer"`
	URL               *string `json:"url,omitempty" jsonschema:"description=Company website"`
	UniquePerspective *string `json:"unique_perspective,omitempty" jsonschema:"description=What they offer that others do not"`
	Extra             Extra   `json:"-"`
}

// Validation is the uniqueness verdict for the idea.
type Validation struct {
	Unique string `json:"unique" jsonschema:"description=Whether the idea is unique and why"`
	Extra  Extra  `json:"-"`
}

// CompetitorReport is the competitors profile payload.
type CompetitorReport struct {
	Competitors []Competitor `json:"competitors"`
	Validation  Validation   `json:"validation"`
	Extra       Extra        `json:"-"`
}

// Opportunity is a market gap the idea could address.
type Opportunity struct {
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	TargetSegment *string `json:"target_segment,omitempty"`
	Rationale     *string `json:"rationale,omitempty"`
	Extra         Extra   `json:"-"`
}

// OpportunityValidation is the viability verdict for the idea.
type OpportunityValidation struct {
	Viable string `json:"viable" jsonschema:"description=Whether the idea addresses a real gap and why"`
	Extra  Extra  `json:"-"`
}

// OpportunityReport is the opportunities profile payload.
type OpportunityReport struct {
	Opportunities []Opportunity         `json:"opportunities"`
	Validation    OpportunityValidation `json:"validation"`
	Extra         Extra                 `json:"-"`
}

func (c Competitor) MarshalJSON() ([]byte, error) {
	type plain Competitor
	return marshalWithExtra(plain(c), c.Extra)
}

func (c *Competitor) UnmarshalJSON(data []byte) error {
	type plain Competitor
	return unmarshalWithExtra(data, (*plain)(c), &c.Extra)
}

func (v Validation) MarshalJSON() ([]byte, error) {
	type plain Validation
	return marshalWithExtra(plain(v), v.Extra)
}

func (v *Validation) UnmarshalJSON(data []byte) error {
	type plain Validation
	return unmarshalWithExtra(data, (*plain)(v), &v.Extra)
}

func (r CompetitorReport) MarshalJSON() ([]byte, error) {
	type plain CompetitorReport
	return marshalWithExtra(plain(r), r.Extra)
}

func (r *CompetitorReport) UnmarshalJSON(data []byte) error {
	type plain CompetitorReport
	return unmarshalWithExtra(data, (*plain)(r), &r.Extra)
}

func (o Opportunity) MarshalJSON() ([]byte, error) {
	type plain Opportunity
	return marshalWithExtra(plain(o), o.Extra)
}

func (o *Opportunity) UnmarshalJSON(data []byte) error {
	type plain Opportunity
	return unmarshalWithExtra(data, (*plain)(o), &o.Extra)
}

func (v OpportunityValidation) MarshalJSON() ([]byte, error) {
	type plain OpportunityValidation
	return marshalWithExtra(plain(v), v.Extra)
}

func (v *OpportunityValidation) UnmarshalJSON(data []byte) error {
	type plain OpportunityValidation
	return unmarshalWithExtra(data, (*plain)(v), &v.Extra)
}

func (r OpportunityReport) MarshalJSON() ([]byte, error) {
	type plain OpportunityReport
	return marshalWithExtra(plain(r), r.Extra)
}

func (r *OpportunityReport) UnmarshalJSON(data []byte) error {
	type plain OpportunityReport
	return unmarshalWithExtra(data, (*plain)(r), &r.Extra)
}

// marshalWithExtra encodes known and merges extra members into the object.
// Named fields win over extras with the same key.
func marshalWithExtra(known any, extra Extra) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range extra {
		if _, taken := merged[key]; taken {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		merged[key] = raw
	}
	return json.Marshal(merged)
}

// unmarshalWithExtra decodes data into known and collects the members known does not name.
func unmarshalWithExtra(data []byte, known any, extra *Extra) error {
	if err := json.Unmarshal(data, known); err != nil {
		return err
	}

	members := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}

	// Re-encoding known gives exactly the keys it claims, including empty optionals.
	claimed := make(map[string]json.RawMessage)
	if encoded, err := json.Marshal(known); err == nil {
		_ = json.Unmarshal(encoded, &claimed)
	}

	*extra = nil
	for key, raw := range members {
		if _, ok := claimed[key]; ok {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return err
		}
		if *extra == nil {
			*extra = make(Extra)
		}
		(*extra)[key] = value
	}
	return nil
}
