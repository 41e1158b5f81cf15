package prompts

// Local prompt ids of the embedded templates.
const (
	DirectorLocal = "local:simulation_director"
	ProfileLocal  = "local:persona_profile"
	ResponseLocal = "local:persona_response"
	TraceLocal    = "local:decision_trace"
	SummaryLocal  = "local:experiment_summary"
)

// IDs selects the prompt used for each pipeline stage. Any id without the
// "local:" prefix is sent to the gateway as a managed prompt.
type IDs struct {
	Director string
	Profile  string
	Response string
	Trace    string
	Summary  string
}

// DefaultIDs uses the embedded templates for every stage.
func DefaultIDs() IDs {
	return IDs{
		Director: DirectorLocal,
		Profile:  ProfileLocal,
		Response: ResponseLocal,
		Trace:    TraceLocal,
		Summary:  SummaryLocal,
	}
}
