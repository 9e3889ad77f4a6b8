// Package prompt assembles the evaluation prompt sent to the judge model.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/samber/lo"
)

// SystemInstruction is sent alongside every prompt
const SystemInstruction = "You are an expert Arabic language tutor."

const persona = "You are an Arabic language tutor grading how well a student recalls a grammar lesson."

const gradingInstructions = `Instructions:
- Identify what the student got right, what they got wrong, and what they left out.
- Give a score from 0 to 100.
- Provide a brief feedback paragraph addressed to the student.
- Rewrite the student's answer to be more complete and accurate.`

var groundingRules = map[domain.GroundingPolicy]string{
	domain.GroundingStrict:    "- Use only the textbook excerpts below to judge the answer. Never use your own knowledge, even when the excerpts are incomplete.",
	domain.GroundingPreferred: "- Base your judgement on the textbook excerpts below. Use your own knowledge only when the excerpts are silent on a point and you are confident.",
}

// Builder assembles prompts with a default grounding policy
type Builder struct {
	Policy domain.GroundingPolicy
}

// NewBuilder creates a builder. An invalid policy falls back to strict.
func NewBuilder(policy domain.GroundingPolicy) Builder {
	if !policy.Valid() {
		policy = domain.GroundingStrict
	}
	return Builder{Policy: policy}
}

// Build assembles the prompt for req. A valid req.Grounding overrides the
// builder's policy.
func (b Builder) Build(req domain.EvaluationRequest) string {
	policy := b.Policy
	if req.Grounding.Valid() {
		policy = req.Grounding
	}
	return Build(req.LearnerAnswer, req.RetrievedContext, req.LessonKeyPoints, policy)
}

// Build assembles the evaluation prompt. It is pure: the same inputs always
// produce the same string. Content is inserted literally and wrapped in
// boundary lines that never occur inside the content itself.
func Build(answer, retrieved string, keyPoints []string, policy domain.GroundingPolicy) string {
	rule, ok := groundingRules[policy]
	if !ok {
		rule = groundingRules[domain.GroundingStrict]
	}

	var sb strings.Builder

	sb.WriteString(persona)
	sb.WriteString("\n\n")
	sb.WriteString(gradingInstructions)
	sb.WriteString("\n")
	sb.WriteString(rule)
	sb.WriteString("\n\n")

	sb.WriteString("Here is the relevant content retrieved from the textbook:\n")
	writeDelimited(&sb, "TEXTBOOK", retrieved)
	sb.WriteString("\n")

	sb.WriteString("Here are the key points the student should recall:\n")
	sb.WriteString(bullets(keyPoints))
	sb.WriteString("\n\n")

	sb.WriteString("The student wrote:\n")
	writeDelimited(&sb, "ANSWER", answer)
	sb.WriteString("\n")

	sb.WriteString("# Example\n")
	sb.WriteString(example())
	sb.WriteString("\n")

	sb.WriteString("Respond with a single JSON object and nothing else. It must have exactly these fields, in this order:\n")
	sb.WriteString(schemaBlock())

	return sb.String()
}

// writeDelimited writes content between "<<<TAG" and "TAG>>>" lines. The
// markers grow by one angle bracket on each side until neither occurs in
// the content.
func writeDelimited(sb *strings.Builder, tag, content string) {
	begin, end := Boundary(tag, content)
	sb.WriteString(begin)
	sb.WriteString("\n")
	sb.WriteString(content)
	sb.WriteString("\n")
	sb.WriteString(end)
	sb.WriteString("\n")
}

// Boundary returns the opening and closing marker lines for content
func Boundary(tag, content string) (string, string) {
	arrows := 3
	for {
		begin := strings.Repeat("<", arrows) + tag
		end := tag + strings.Repeat(">", arrows)
		if !strings.Contains(content, begin) && !strings.Contains(content, end) {
			return begin, end
		}
		arrows++
	}
}

func bullets(points []string) string {
	if len(points) == 0 {
		return "- (none)"
	}
	return strings.Join(lo.Map(points, func(p string, _ int) string {
		return "- " + p
	}), "\n")
}

type workedExample struct {
	Retrieved string
	KeyPoints []string
	Answer    string
	Result    domain.EvaluationResult
}

var casesExample = workedExample{
	Retrieved: `Nominative: the subject of a verbal sentence is usually in the nominative case, for example "الولد يدرس".
Accusative: the direct object of a verb is in the accusative case, for example "أنا أقرأ الكتاب".
Genitive: the genitive case is used after prepositions, to indicate ownership, and in idhaafa.`,
	KeyPoints: []string{
		"الرفع is primarily used for the subject, predicate, and doer.",
		"النصب is primarily used for the done-to and after حروف which trigger its use.",
		"الجر is primarily used after prepositions.",
	},
	Answer: "Arabic has three cases. One of the cases is رفع, another is جر, and finally we have نصب. Raf' is used for subjects, jarr is used for prepositions, and nasb is used for the done-to.",
	Result: domain.EvaluationResult{
		Score:           70,
		CorrectPoints:   []string{"الرفع is primarily used for the subject", "النصب is primarily used for the done-to"},
		IncorrectPoints: []string{"You stated that الجر is used for prepositions. It is used after prepositions."},
		MissedPoints: []string{
			"You didn't mention that النصب is used after حروف which trigger its use",
			"You didn't mention that الرفع is used for the predicate and doer",
		},
		GeneratedFeedback: "You have a solid idea of how cases work in Arabic. Focus on the specific details of when each case is used, go through the lesson once more, then try recalling it again.",
		RewrittenAnswer:   "Arabic has three cases: رفع, نصب and جر. Raf' is used for the subject, predicate, and doer; nasb is used for the done-to and after حروف which trigger it; jarr is used after prepositions.",
	},
}

func example() string {
	out, err := json.MarshalIndent(casesExample.Result, "", "  ")
	if err != nil {
		// A fixed literal always marshals
		out = []byte("{}")
	}

	var sb strings.Builder
	sb.WriteString("Relevant retrieved text:\n")
	sb.WriteString(casesExample.Retrieved)
	sb.WriteString("\n\nKey points:\n")
	sb.WriteString(bullets(casesExample.KeyPoints))
	sb.WriteString("\n\nStudent recall:\n")
	sb.WriteString(casesExample.Answer)
	sb.WriteString("\n\nYour response:\n")
	sb.Write(out)
	sb.WriteString("\n")
	return sb.String()
}

var fieldTypes = map[string]string{
	domain.FieldScore:             "integer from 0 to 100",
	domain.FieldCorrectPoints:     "array of strings, may be empty",
	domain.FieldIncorrectPoints:   "array of strings, may be empty",
	domain.FieldMissedPoints:      "array of strings, may be empty",
	domain.FieldGeneratedFeedback: "non-empty string",
	domain.FieldRewrittenAnswer:   "non-empty string",
}

func schemaBlock() string {
	lines := lo.Map(domain.ResultFields, func(f string, _ int) string {
		return fmt.Sprintf("  %q: <%s>", f, fieldTypes[f])
	})
	return "{\n" + strings.Join(lines, ",\n") + "\n}\n"
}
