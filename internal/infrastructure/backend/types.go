package backend

import (
	"bytes"
	"encoding/json"

	"github.com/turtacn/FeatureScope/internal/domain/projection"
)

// ScatterQuery selects the projection to fetch. Query and LLM are optional.
type ScatterQuery struct {
	SAEID string `json:"sae_id"`
	Query string `json:"query,omitempty"`
	LLM   string `json:"llm,omitempty"`
}

// DetailQuery selects one feature's detail record.
type DetailQuery struct {
	FeatureID projection.FeatureID `json:"feature_id"`
	SAEID     string               `json:"sae_id"`
	LLM       string               `json:"llm,omitempty"`
}

// SimilarFeatures is the parallel id/value table inside raw_stats.
type SimilarFeatures struct {
	FeatureIDs []projection.FeatureID `json:"feature_ids"`
	Values     []float64              `json:"values"`
}

// RawStats carries the statistics block of a feature detail.
type RawStats struct {
	SimilarFeatures SimilarFeatures `json:"similar_features"`
}

// FeatureDetail is the detail payload for one feature. Fields the render
// engine does not interpret are kept verbatim in Raw.
type FeatureDetail struct {
	FeatureID   projection.FeatureID `json:"feature_id"`
	Description string               `json:"description,omitempty"`
	RawStats    RawStats             `json:"raw_stats"`
	Raw         json.RawMessage      `json:"-"`
}

// SimilarIDs returns the similar feature ids in upstream order.
func (d *FeatureDetail) SimilarIDs() []projection.FeatureID {
	return d.RawStats.SimilarFeatures.FeatureIDs
}

// Neighbours pairs similar ids with their values. describe resolves a
// description for each id; it may be nil.
func (d *FeatureDetail) Neighbours(describe func(projection.FeatureID) string) []projection.NearestFeature {
	sf := d.RawStats.SimilarFeatures
	out := make([]projection.NearestFeature, 0, len(sf.FeatureIDs))
	for i, id := range sf.FeatureIDs {
		nf := projection.NearestFeature{FeatureID: id}
		if i < len(sf.Values) {
			nf.Similarity = sf.Values[i]
		}
		if describe != nil {
			nf.Description = describe(id)
		}
		out = append(out, nf)
	}
	return out
}

// SelectedToken is one prompt token picked by the analyst. TokenIndex is
// zero-based; the wire form is one-based.
type SelectedToken struct {
	Prompt     string `json:"prompt"`
	TokenIndex int    `json:"token_index"`
}

// TokenAnalysisRequest asks which features fire on the selected tokens.
type TokenAnalysisRequest struct {
	FeatureID      projection.FeatureID `json:"feature_id"`
	SAEID          string               `json:"sae_id"`
	LLM            string               `json:"llm,omitempty"`
	SelectedTokens []SelectedToken      `json:"selected_tokens"`
}

type tokenAnalysisWire struct {
	FeatureID      projection.FeatureID `json:"feature_id"`
	SAEID          string               `json:"sae_id"`
	LLM            string               `json:"llm,omitempty"`
	SelectedTokens []SelectedToken      `json:"selected_prompt_tokens"`
}

func (r TokenAnalysisRequest) wire() tokenAnalysisWire {
	w := tokenAnalysisWire{FeatureID: r.FeatureID, SAEID: r.SAEID, LLM: r.LLM}
	w.SelectedTokens = make([]SelectedToken, len(r.SelectedTokens))
	for i, t := range r.SelectedTokens {
		w.SelectedTokens[i] = SelectedToken{Prompt: t.Prompt, TokenIndex: t.TokenIndex + 1}
	}
	return w
}

// FeatureActivation is one feature firing on a token.
type FeatureActivation struct {
	FeatureID  projection.FeatureID `json:"feature_id"`
	Activation float64              `json:"activation"`
}

// PromptTokenFeatures lists the features firing on one selected token.
type PromptTokenFeatures struct {
	Prompt     string              `json:"prompt"`
	TokenIndex int                 `json:"token_index"`
	Features   []FeatureActivation `json:"features"`
}

// PromptTokenList decodes either a JSON array or an object keyed by
// position; object entries are ordered by key.
type PromptTokenList []PromptTokenFeatures

// UnmarshalJSON accepts both layouts.
func (l *PromptTokenList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '[' {
		var arr []PromptTokenFeatures
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		*l = arr
		return nil
	}
	var obj map[string]PromptTokenFeatures
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	projection.SortLevelKeys(keys)
	out := make(PromptTokenList, 0, len(keys))
	for _, k := range keys {
		out = append(out, obj[k])
	}
	*l = out
	return nil
}

// TokenAnalysis is the token-analysis payload.
type TokenAnalysis struct {
	RelatedFeaturesUnion        []projection.FeatureID `json:"related_features_union"`
	RelatedFeaturesIntersection []projection.FeatureID `json:"related_features_intersection"`
	PromptTokenFeatures         PromptTokenList        `json:"prompt_token_features"`
}

// Related maps every union id to its activations across the selected
// tokens, in prompt order. Union ids that fire on no listed token map to an
// empty slice, which the store treats as unrelated.
func (a *TokenAnalysis) Related() map[projection.FeatureID][]projection.RelatedToken {
	out := make(map[projection.FeatureID][]projection.RelatedToken, len(a.RelatedFeaturesUnion))
	for _, id := range a.RelatedFeaturesUnion {
		var tokens []projection.RelatedToken
		for _, ptf := range a.PromptTokenFeatures {
			for _, f := range ptf.Features {
				if f.FeatureID == id {
					tokens = append(tokens, projection.RelatedToken{
						Prompt:     ptf.Prompt,
						TokenIndex: ptf.TokenIndex,
						Activation: f.Activation,
					})
					break
				}
			}
		}
		out[id] = tokens
	}
	return out
}
