package schema

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Kind identifies the contract a value is validated against.
type Kind int

const (
	KindDirector Kind = iota + 1
	KindProfile
	KindResponse
	KindTrace
	KindSummary
)

func (k Kind) String() string {
	switch k {
	case KindDirector:
		return "director_output"
	case KindProfile:
		return "persona_profile"
	case KindResponse:
		return "persona_response"
	case KindTrace:
		return "decision_trace"
	case KindSummary:
		return "experiment_summary"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func ptr(f float64) *float64 { return &f }

func str() *jsonschema.Schema     { return &jsonschema.Schema{Type: "string"} }
func boolean() *jsonschema.Schema { return &jsonschema.Schema{Type: "boolean"} }

func stringList() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: str()}
}

func enum(values ...string) *jsonschema.Schema {
	e := make([]any, len(values))
	for i, v := range values {
		e[i] = v
	}
	return &jsonschema.Schema{Type: "string", Enum: e}
}

func number(lo, hi float64) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number", Minimum: ptr(lo), Maximum: ptr(hi)}
}

func integer(lo, hi float64) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Minimum: ptr(lo), Maximum: ptr(hi)}
}

func object(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

func arrayOf(items *jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: items}
}

// Every constructor returns a fresh schema: a resolved contract must be a
// tree, so no *Schema may appear twice in it.
func level() *jsonschema.Schema { return enum("low", "medium", "high") }

// factor is validated after factor/cue keys have been folded into name.
func factor() *jsonschema.Schema {
	return object([]string{"name", "effect", "note"}, map[string]*jsonschema.Schema{
		"name":   str(),
		"value":  {},
		"effect": enum("positive", "negative", "neutral"),
		"note":   str(),
	})
}

var (
	profileSchema = object(
		[]string{"one_liner", "pain_points", "alternatives", "communication_style"},
		map[string]*jsonschema.Schema{
			"one_liner":    str(),
			"pain_points":  stringList(),
			"alternatives": stringList(),
			"communication_style": object([]string{"tone", "verbosity"}, map[string]*jsonschema.Schema{
				"tone":      str(),
				"verbosity": level(),
			}),
		})

	responseSchema = object(
		[]string{"scores", "verdict", "free_text", "top_objections", "what_would_change_my_mind", "confidence", "uncertainty_notes"},
		map[string]*jsonschema.Schema{
			"scores": object([]string{"purchase_intent", "trust", "clarity", "differentiation"}, map[string]*jsonschema.Schema{
				"purchase_intent": integer(1, 5),
				"trust":           integer(1, 5),
				"clarity":         integer(1, 5),
				"differentiation": integer(1, 5),
			}),
			"verdict": object([]string{"would_try", "would_pay"}, map[string]*jsonschema.Schema{
				"would_try": boolean(),
				"would_pay": boolean(),
			}),
			"free_text":                 str(),
			"top_objections":            stringList(),
			"what_would_change_my_mind": stringList(),
			"confidence":                number(0, 1),
			"uncertainty_notes":         stringList(),
		})

	traceSchema = object(
		[]string{"persona_factors_used", "stimulus_cues", "top_objections", "what_would_change_my_mind", "confidence", "uncertainty_notes"},
		map[string]*jsonschema.Schema{
			"persona_factors_used":      arrayOf(factor()),
			"stimulus_cues":             arrayOf(factor()),
			"top_objections":            stringList(),
			"what_would_change_my_mind": stringList(),
			"confidence":                number(0, 1),
			"uncertainty_notes":         stringList(),
		})

	directorSchema = object(
		[]string{"personas", "risks", "plan", "scorecard", "recommendation"},
		map[string]*jsonschema.Schema{
			"personas": {
				Type:     "array",
				MinItems: intPtr(1),
				Items: object([]string{"demographics"}, map[string]*jsonschema.Schema{
					"demographics": object([]string{"name"}, map[string]*jsonschema.Schema{
						"name": {Type: "string", MinLength: intPtr(1)},
					}),
				}),
			},
			"risks": arrayOf(object([]string{"id", "type", "severity", "likelihood", "mitigation"}, map[string]*jsonschema.Schema{
				"id":          str(),
				"type":        str(),
				"title":       str(),
				"severity":    enum("low", "medium", "high", "critical"),
				"likelihood":  level(),
				"mitigation":  str(),
				"chatPrefill": str(),
			})),
			"plan": arrayOf(object([]string{"id", "title", "description"}, map[string]*jsonschema.Schema{
				"id":          str(),
				"title":       str(),
				"description": str(),
				"riskId":      str(),
				"chatPrefill": str(),
				"options": arrayOf(object([]string{"id", "label", "summary"}, map[string]*jsonschema.Schema{
					"id":          str(),
					"label":       str(),
					"summary":     str(),
					"chatPrefill": str(),
					"nextStep": object([]string{"id", "title"}, map[string]*jsonschema.Schema{
						"id":          str(),
						"title":       str(),
						"description": str(),
						"chatPrefill": str(),
					}),
					"stop":       boolean(),
					"stopReason": str(),
				})),
			})),
			"scorecard": object([]string{"desirability", "feasibility", "clarity", "differentiation", "justification"}, map[string]*jsonschema.Schema{
				"desirability":    number(0, 100),
				"feasibility":     number(0, 100),
				"clarity":         number(0, 100),
				"differentiation": number(0, 100),
				"justification":   str(),
			}),
			"recommendation": object([]string{"summary"}, map[string]*jsonschema.Schema{
				"winnerId": str(),
				"summary":  str(),
			}),
		})

	summarySchema = object(
		[]string{"headline", "overall_stance", "adoption_likelihood", "key_objections", "key_insights", "recommended_changes"},
		map[string]*jsonschema.Schema{
			"headline":            str(),
			"overall_stance":      enum("support", "oppose", "mixed", "neutral"),
			"adoption_likelihood": number(0, 1),
			"key_objections": arrayOf(object([]string{"objection", "frequency"}, map[string]*jsonschema.Schema{
				"objection": str(),
				"frequency": {Type: "integer", Minimum: ptr(0)},
			})),
			"key_insights":        stringList(),
			"recommended_changes": stringList(),
		})
)

func intPtr(n int) *int { return &n }

// contract is the descriptor of one Kind: an optional normalization step
// applied to a copy of the value, then schema validation.
type contract struct {
	schema  *jsonschema.Resolved
	prepare func(v any) any
}

var contracts = map[Kind]*contract{
	KindDirector: mustContract(directorSchema, nil),
	KindProfile:  mustContract(profileSchema, nil),
	KindResponse: mustContract(responseSchema, nil),
	KindTrace:    mustContract(traceSchema, normalizeTraceFactors),
	KindSummary:  mustContract(summarySchema, coerceObjectionFrequency),
}

func mustContract(s *jsonschema.Schema, prepare func(any) any) *contract {
	resolved, err := s.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("schema: resolve contract: %v", err))
	}
	return &contract{schema: resolved, prepare: prepare}
}
