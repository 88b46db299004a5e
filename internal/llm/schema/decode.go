package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/convhealth/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var unquotedKeyRegex = regexp.MustCompile(`(\{|,)\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)

type choiceWire struct {
	SelectedResponse string                 `json:"selected_response" validate:"required"`
	Reasoning        string                 `json:"reasoning"`
	Confidence       domain.ConfidenceLevel `json:"confidence" validate:"required"`
}

type detectionWire struct {
	Detected   *bool                  `json:"detected" validate:"required"`
	Reasoning  string                 `json:"reasoning"`
	Confidence domain.ConfidenceLevel `json:"confidence" validate:"required"`
}

// DecodeChoice decodes a criterion judgment and checks the selected response
// against c. The bool reports whether a repair was needed.
func DecodeChoice(raw []byte, c *Choice) (domain.CriterionJudgment, bool, error) {
	var w choiceWire
	repaired, err := decode(raw, &w)
	if err != nil {
		return domain.CriterionJudgment{}, repaired, err
	}
	if _, err := c.Parse(w.SelectedResponse); err != nil {
		return domain.CriterionJudgment{}, repaired, err
	}
	if err := checkConfidence(w.Confidence); err != nil {
		return domain.CriterionJudgment{}, repaired, err
	}
	return domain.CriterionJudgment{
		SelectedResponse: w.SelectedResponse,
		Reasoning:        strings.TrimSpace(w.Reasoning),
		Confidence:       w.Confidence,
	}, repaired, nil
}

// DecodeDetection decodes an indicator judgment.
func DecodeDetection(raw []byte) (domain.IndicatorJudgment, bool, error) {
	var w detectionWire
	repaired, err := decode(raw, &w)
	if err != nil {
		return domain.IndicatorJudgment{}, repaired, err
	}
	if err := checkConfidence(w.Confidence); err != nil {
		return domain.IndicatorJudgment{}, repaired, err
	}
	return domain.IndicatorJudgment{
		Detected:   *w.Detected,
		Reasoning:  strings.TrimSpace(w.Reasoning),
		Confidence: w.Confidence,
	}, repaired, nil
}

// DecodeConcerns decodes concern identification output. An empty list is valid.
func DecodeConcerns(raw []byte) (domain.IdentifiedConcerns, bool, error) {
	var out domain.IdentifiedConcerns
	repaired, err := decode(raw, &out)
	if err != nil {
		return domain.IdentifiedConcerns{}, repaired, err
	}
	if out.Concerns == nil {
		out.Concerns = []domain.Concern{}
	}
	return out, repaired, nil
}

func checkConfidence(c domain.ConfidenceLevel) error {
	if !c.IsValid() {
		return fmt.Errorf("%w: unknown confidence %q", ErrNonConforming, c)
	}
	return nil
}

// decode parses raw into v and validates struct tags. Malformed JSON gets a
// single repair attempt; schema violations in well-formed JSON are not repaired.
func decode(raw []byte, v any) (bool, error) {
	if err := json.Unmarshal(raw, v); err == nil {
		return false, validateStruct(v)
	}

	repairedJSON := repairCommonJSONIssues(string(raw))
	if repairedJSON == string(raw) {
		return false, fmt.Errorf("%w: malformed JSON", ErrNonConforming)
	}
	if err := json.Unmarshal([]byte(repairedJSON), v); err != nil {
		return true, fmt.Errorf("%w: JSON still invalid after repair: %v", ErrNonConforming, err)
	}
	return true, validateStruct(v)
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrNonConforming, err)
	}
	return nil
}

// repairCommonJSONIssues applies conservative fixes for typical model output
// problems: markdown fences, trailing commas, unquoted keys, single quotes.
// Returns the input unchanged if nothing applies.
func repairCommonJSONIssues(jsonStr string) string {
	repaired := strings.TrimSpace(jsonStr)

	repaired = strings.TrimPrefix(repaired, "```json")
	repaired = strings.TrimPrefix(repaired, "```")
	repaired = strings.TrimSuffix(repaired, "```")

	repaired = strings.ReplaceAll(repaired, ",\n}", "\n}")
	repaired = strings.ReplaceAll(repaired, ",\r\n}", "\r\n}")
	repaired = strings.ReplaceAll(repaired, ", }", " }")
	repaired = strings.ReplaceAll(repaired, ",}", "}")
	repaired = strings.ReplaceAll(repaired, ",]", "]")

	repaired = unquotedKeyRegex.ReplaceAllString(repaired, `$1"$2":`)

	if !strings.Contains(repaired, `"`) && strings.Contains(repaired, `'`) {
		repaired = strings.ReplaceAll(repaired, `'`, `"`)
	}

	repaired = strings.TrimSpace(repaired)
	if repaired == jsonStr {
		return jsonStr
	}
	return repaired
}
