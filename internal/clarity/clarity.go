// Package clarity is the deterministic question generator and completeness
// analyzer behind the discussion engine's collaborator interfaces.
//
// It evaluates the accumulated Q&A history across weighted dimensions
// (the areas where ambiguity causes the worst downstream hallucinations)
// and produces a 0..1 confidence from weighted coverage. Given identical
// input it always returns identical output, so the whole engine is
// testable (and usable offline) without a live model. A model-backed
// implementation can replace it behind the same two interfaces.
package clarity

import (
	"context"
	"sort"
	"strings"

	"github.com/barnent1/neuro-dock-sub000/internal/discussion"
)

// Dimension is one axis of requirement clarity. Keywords are the evidence
// that the dimension has been addressed; Questions is the bank drawn from
// when it has not.
type Dimension struct {
	Name        string
	Description string
	Weight      int // relative importance, 1-10
	Keywords    []string
	Questions   []string
}

// Dimensions returns the standard clarity dimensions, highest weight first.
func Dimensions() []Dimension {
	dims := []Dimension{
		{
			Name:        "core_functionality",
			Description: "What does the system DO? Are the main features unambiguous?",
			Weight:      10,
			Keywords:    []string{"feature", "manage", "create", "track", "support", "allow", "app", "workflow"},
			Questions: []string{
				"What are the two or three core things a user must be able to do?",
				"Which single feature, if missing, would make the product pointless?",
			},
		},
		{
			Name:        "scope_boundaries",
			Description: "Is it clear what the system does NOT do? Are boundaries explicit?",
			Weight:      9,
			Keywords:    []string{"out of scope", "exclude", "won't", "not include", "only", "mvp", "later"},
			Questions: []string{
				"What is explicitly out of scope for the first version?",
				"Which tempting features should be deferred past the initial release?",
			},
		},
		{
			Name:        "target_users",
			Description: "Who are the target users? Are personas clearly defined?",
			Weight:      8,
			Keywords:    []string{"user", "team", "admin", "customer", "developer", "audience", "persona", "single"},
			Questions: []string{
				"Who will use this — a single person, a team, or the public?",
				"What level of technical skill can you assume from the users?",
			},
		},
		{
			Name:        "edge_cases",
			Description: "Are error scenarios and edge cases addressed?",
			Weight:      8,
			Keywords:    []string{"error", "fail", "invalid", "edge", "offline", "empty", "conflict", "retry"},
			Questions: []string{
				"What should happen when an operation fails partway through?",
				"Are there inputs or states that must be rejected outright?",
			},
		},
		{
			Name:        "data_model",
			Description: "What data does the system manage? Are entities and relationships clear?",
			Weight:      7,
			Keywords:    []string{"data", "store", "database", "record", "field", "entity", "schema", "persist"},
			Questions: []string{
				"What are the main kinds of data the system stores, and how do they relate?",
				"Does any data need to survive restarts or be exportable?",
			},
		},
		{
			Name:        "security",
			Description: "Are authentication, authorization, and data protection requirements clear?",
			Weight:      7,
			Keywords:    []string{"auth", "login", "password", "permission", "role", "encrypt", "private", "public"},
			Questions: []string{
				"Does the system need accounts, logins, or permission levels?",
				"Is any of the data sensitive enough to need special protection?",
			},
		},
		{
			Name:        "integrations",
			Description: "What external systems does it interact with? Are APIs/protocols defined?",
			Weight:      6,
			Keywords:    []string{"integrat", "api", "third-party", "webhook", "external", "import", "export", "sync"},
			Questions: []string{
				"Does this need to talk to any external services or APIs?",
				"Should data flow in or out of other tools the users already have?",
			},
		},
		{
			Name:        "scale_performance",
			Description: "Are performance expectations and scale requirements defined?",
			Weight:      5,
			Keywords:    []string{"scale", "performance", "concurrent", "load", "latency", "fast", "realtime", "volume"},
			Questions: []string{
				"Roughly how many users or records should the first version handle?",
				"Are there operations that must feel instant rather than merely correct?",
			},
		},
	}

	sort.SliceStable(dims, func(i, j int) bool { return dims[i].Weight > dims[j].Weight })
	return dims
}

// --- Config ---

// Config holds analyzer tunables.
type Config struct {
	// Threshold is the weighted coverage score (0-100) at which the
	// discussion is considered complete.
	Threshold int
	// MaxQuestions caps a generated batch.
	MaxQuestions int
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{Threshold: 80, MaxQuestions: 5}
}

// --- Analyzer ---

// Analyzer implements both discussion.QuestionGenerator and
// discussion.CompletenessAnalyzer from dimension coverage.
type Analyzer struct {
	cfg  Config
	dims []Dimension
}

// New creates an Analyzer. Zero config fields fall back to defaults.
func New(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.Threshold <= 0 || cfg.Threshold > 100 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = def.MaxQuestions
	}
	return &Analyzer{cfg: cfg, dims: Dimensions()}
}

// Generate produces the opening question batch for a prompt: the lead
// question of every dimension the prompt leaves uncovered, most important
// first, capped at MaxQuestions. A prompt that somehow covers everything
// still yields the scope question: a discussion with zero questions is a
// discussion that never happened.
func (a *Analyzer) Generate(ctx context.Context, prompt string) ([]discussion.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	evidence := strings.ToLower(prompt)
	var out []discussion.Question
	for _, d := range a.dims {
		if len(out) >= a.cfg.MaxQuestions {
			break
		}
		if covered(evidence, d) {
			continue
		}
		out = append(out, discussion.Question{Text: d.Questions[0]})
	}

	if len(out) == 0 {
		for _, d := range a.dims {
			if d.Name == "scope_boundaries" {
				out = append(out, discussion.Question{Text: d.Questions[0]})
			}
		}
	}
	return out, nil
}

// Analyze scores the history: a dimension counts as covered when the
// combined answer text carries any of its evidence keywords. Confidence is
// the weighted coverage; completeness is confidence against the threshold.
// Follow-ups are the next unasked bank question of each uncovered
// dimension. A dimension whose bank is exhausted proposes nothing more,
// leaving carry-over of still-open questions to the engine.
func (a *Analyzer) Analyze(ctx context.Context, history []discussion.Turn) (discussion.CompletenessResult, error) {
	if err := ctx.Err(); err != nil {
		return discussion.CompletenessResult{}, err
	}

	evidence := answerEvidence(history)
	asked := askedQuestions(history)

	totalWeight := 0
	coveredWeight := 0
	var followUps []discussion.Question
	for _, d := range a.dims {
		totalWeight += d.Weight
		if covered(evidence, d) {
			coveredWeight += d.Weight
			continue
		}
		for _, q := range d.Questions {
			if !asked[discussion.NormalizeText(q)] {
				followUps = append(followUps, discussion.Question{Text: q})
				break
			}
		}
	}

	score := 0
	if totalWeight > 0 {
		score = coveredWeight * 100 / totalWeight
	}

	result := discussion.CompletenessResult{
		Confidence: float64(score) / 100,
		IsComplete: score >= a.cfg.Threshold,
	}
	if !result.IsComplete {
		result.FollowUpQuestions = followUps
	}
	return result, nil
}

// --- Internals ---

// answerEvidence concatenates all answer text in the history, lowercased.
func answerEvidence(history []discussion.Turn) string {
	var sb strings.Builder
	for _, t := range history {
		if t.Kind != discussion.KindAnswerBatch {
			continue
		}
		for _, text := range t.Answers {
			sb.WriteString(strings.ToLower(text))
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// askedQuestions collects the normalized text of every question ever asked.
func askedQuestions(history []discussion.Turn) map[string]bool {
	asked := make(map[string]bool)
	for _, t := range history {
		if t.Kind != discussion.KindQuestionBatch {
			continue
		}
		for _, q := range t.Questions {
			asked[discussion.NormalizeText(q.Text)] = true
		}
	}
	return asked
}

// covered reports whether the evidence text carries any of the dimension's
// keywords.
func covered(evidence string, d Dimension) bool {
	for _, kw := range d.Keywords {
		if strings.Contains(evidence, kw) {
			return true
		}
	}
	return false
}
