package legalai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/maplecourt/legalai/internal/textbudget"
	"github.com/maplecourt/legalai/providers"
)

// ErrFeatureDisabled is returned when a feature has been switched off via
// the admin flag surface.
var ErrFeatureDisabled = errors.New("feature is disabled")

// Feature label constants used for metrics and request logging.
const (
	FeatureChat                = "chat"
	FeatureResearch            = "research"
	FeatureContractAnalysis    = "contract_analysis"
	FeatureDocumentEnhancement = "document_enhancement"
)

// GenerateChatResponse answers a single user message. Degraded answers come
// back as a successful Result with Degraded set; the caller can always render
// Result.Text.
func (o *Orchestrator) GenerateChatResponse(ctx context.Context, message string, opts Options) (*Result, error) {
	if !o.flags.Snapshot().Chat {
		return nil, ErrFeatureDisabled
	}
	opts.Feature = FeatureChat
	return o.Request(ctx, message, opts)
}

// EnhanceDocument rewrites a document per the given instructions, preserving
// its legal meaning. The text is fitted to the contract token budget first so
// oversized documents degrade gracefully instead of failing.
func (o *Orchestrator) EnhanceDocument(ctx context.Context, text, instructions string, opts Options) (*Result, error) {
	if !o.flags.Snapshot().DocumentEnhancement {
		return nil, ErrFeatureDisabled
	}
	opts.Feature = FeatureDocumentEnhancement

	fitted := textbudget.ProcessForBudget(ctx, o.completeForBudget(opts.Feature), text, o.cfg.ContractTokenBudget)

	if instructions == "" {
		instructions = "Improve clarity, structure, and plain-language readability. Preserve all legal meaning, obligations, and defined terms."
	}
	prompt := fmt.Sprintf("Revise the following legal document.\nInstructions: %s\n\nDocument:\n%s", instructions, fitted)
	return o.Request(ctx, prompt, opts)
}

// ---------------------------------------------------------------- Research --

// ResearchLaw is one statute or regulation relevant to a research query.
type ResearchLaw struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ResearchCase is one decision relevant to a research query.
type ResearchCase struct {
	Name      string `json:"name"`
	Citation  string `json:"citation,omitempty"`
	Relevance string `json:"relevance,omitempty"`
}

// ResearchResult is the structured answer to a legal research query. When
// Error is set the result is a degraded fallback and only Summary (the
// user-facing message) is meaningful.
type ResearchResult struct {
	RelevantLaws  []ResearchLaw  `json:"relevantLaws"`
	RelevantCases []ResearchCase `json:"relevantCases"`
	Summary       string         `json:"summary"`
	LegalConcepts []string       `json:"legalConcepts"`

	Error     bool   `json:"error,omitempty"`
	ErrorType string `json:"errorType,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}

const researchSchemaJSON = `{
	"type": "object",
	"properties": {
		"relevantLaws": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"description": {"type": "string"}
				},
				"required": ["title"]
			}
		},
		"relevantCases": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"citation": {"type": "string"},
					"relevance": {"type": "string"}
				},
				"required": ["name"]
			}
		},
		"summary": {"type": "string"},
		"legalConcepts": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["summary"]
}`

var researchSchema = providers.MustCompileSchema("research.json", researchSchemaJSON)

// LegalResearch runs a structured research query for a jurisdiction and
// practice area. Vendor output is validated against a schema; anything that
// fails validation is still returned best-effort with the raw text in
// Summary, never as an error.
func (o *Orchestrator) LegalResearch(ctx context.Context, query, jurisdiction, practiceArea string, opts Options) (*ResearchResult, error) {
	if !o.flags.Snapshot().Research {
		return nil, ErrFeatureDisabled
	}
	opts.Feature = FeatureResearch
	opts.JSONResponse = true

	if jurisdiction == "" {
		jurisdiction = "Canada"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Conduct legal research for the following query in %s", jurisdiction)
	if practiceArea != "" {
		fmt.Fprintf(&b, " (practice area: %s)", practiceArea)
	}
	b.WriteString(".\n\nQuery: ")
	b.WriteString(query)
	b.WriteString("\n\nRespond with a JSON object with these fields:\n" +
		`- "relevantLaws": array of {"title", "description"} for applicable statutes and regulations` + "\n" +
		`- "relevantCases": array of {"name", "citation", "relevance"} for leading decisions` + "\n" +
		`- "summary": a plain-language summary of the legal position` + "\n" +
		`- "legalConcepts": array of key legal concepts involved`)

	res, err := o.Request(ctx, b.String(), opts)
	if err != nil {
		return nil, err
	}
	if res.Degraded {
		return degradedResearch(res), nil
	}

	var out ResearchResult
	if err := providers.DecodeStructured(res.Text, researchSchema, &out); err != nil {
		// Best-effort: keep the prose answer rather than surfacing a parse
		// failure to the caller.
		return &ResearchResult{Summary: res.Text}, nil
	}
	return &out, nil
}

func degradedResearch(res *Result) *ResearchResult {
	var env degradedEnvelope
	if raw, ok := providers.ExtractJSON(res.Text); ok {
		_ = json.Unmarshal(raw, &env)
	}
	message := env.Message
	if message == "" {
		message = res.Text
	}
	return &ResearchResult{
		Summary:   message,
		Error:     true,
		ErrorType: res.ErrorType,
		Fallback:  true,
	}
}

// ---------------------------------------------------- Contract Analysis ----

// ContractRisk is one identified risk in an analyzed contract.
type ContractRisk struct {
	Description string `json:"description"`
	Severity    string `json:"severity,omitempty"` // "low", "medium", "high"
}

// ContractAnalysis is the structured result of analyzing a contract. When
// Error is set the result is a degraded fallback and only Summary is
// meaningful.
type ContractAnalysis struct {
	Summary         string         `json:"summary"`
	RiskLevel       string         `json:"riskLevel,omitempty"` // "low", "medium", "high"
	KeyProvisions   []string       `json:"keyProvisions"`
	Risks           []ContractRisk `json:"risks"`
	Recommendations []string       `json:"recommendations"`
	// Truncated reports that the document was condensed to fit the token
	// budget before analysis.
	Truncated bool `json:"truncated,omitempty"`

	Error     bool   `json:"error,omitempty"`
	ErrorType string `json:"errorType,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}

const contractSchemaJSON = `{
	"type": "object",
	"properties": {
		"summary": {"type": "string"},
		"riskLevel": {"type": "string"},
		"keyProvisions": {"type": "array", "items": {"type": "string"}},
		"risks": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"description": {"type": "string"},
					"severity": {"type": "string"}
				},
				"required": ["description"]
			}
		},
		"recommendations": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["summary"]
}`

var contractSchema = providers.MustCompileSchema("contract.json", contractSchemaJSON)

// AnalyzeContract analyzes contract text for a jurisdiction and contract
// type. Documents over the token budget are chunked and summarized first.
func (o *Orchestrator) AnalyzeContract(ctx context.Context, text, jurisdiction, contractType string, opts Options) (*ContractAnalysis, error) {
	if !o.flags.Snapshot().ContractAnalysis {
		return nil, ErrFeatureDisabled
	}
	opts.Feature = FeatureContractAnalysis
	opts.JSONResponse = true

	fitted := textbudget.ProcessForBudget(ctx, o.completeForBudget(opts.Feature), text, o.cfg.ContractTokenBudget)
	truncated := fitted != text

	if jurisdiction == "" {
		jurisdiction = "Canada"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following contract under the law of %s", jurisdiction)
	if contractType != "" {
		fmt.Fprintf(&b, " (contract type: %s)", contractType)
	}
	b.WriteString(".\n\nRespond with a JSON object with these fields:\n" +
		`- "summary": a plain-language summary of the contract` + "\n" +
		`- "riskLevel": overall risk as "low", "medium", or "high"` + "\n" +
		`- "keyProvisions": array of the most important provisions` + "\n" +
		`- "risks": array of {"description", "severity"} for identified risks` + "\n" +
		`- "recommendations": array of suggested actions` + "\n\nContract:\n")
	b.WriteString(fitted)

	res, err := o.Request(ctx, b.String(), opts)
	if err != nil {
		return nil, err
	}
	if res.Degraded {
		var env degradedEnvelope
		if raw, ok := providers.ExtractJSON(res.Text); ok {
			_ = json.Unmarshal(raw, &env)
		}
		message := env.Message
		if message == "" {
			message = res.Text
		}
		return &ContractAnalysis{
			Summary:   message,
			Error:     true,
			ErrorType: res.ErrorType,
			Fallback:  true,
			Truncated: truncated,
		}, nil
	}

	var out ContractAnalysis
	if err := providers.DecodeStructured(res.Text, contractSchema, &out); err != nil {
		return &ContractAnalysis{Summary: res.Text, Truncated: truncated}, nil
	}
	out.Truncated = truncated
	return &out, nil
}

// completeForBudget adapts the orchestrator into the plain completion
// function textbudget uses for summarization. Summarization calls skip the
// queue: they run before (or inside) a queued pipeline and must not compete
// for its slots.
func (o *Orchestrator) completeForBudget(feature string) textbudget.CompleteFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		res, err := o.Request(ctx, prompt, Options{
			SkipQueue: true,
			Feature:   feature,
			LogPrefix: "summarize: ",
		})
		if err != nil {
			return "", err
		}
		if res.Degraded {
			return "", fmt.Errorf("summarization degraded: %s", res.ErrorType)
		}
		return res.Text, nil
	}
}
