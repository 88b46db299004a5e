package stage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ahrav/convhealth/internal/domain"
)

const confidenceScale = `Confidence levels:
- very_high: evidence is explicit and leaves no room for another reading
- high: evidence is strong with only minor doubt; reserve this for claims you can point to directly
- moderate: evidence supports the judgment but some ambiguity remains
- low: evidence is thin and the judgment is uncertain
- very_low: almost no evidence; the judgment is close to a guess`

const systemPrompt = "You are an analyst assessing the health of a conversation. Answer only from what the transcript shows."

func concernIdentificationPrompt(transcript string) string {
	return fmt.Sprintf(`Read the conversation transcript below and list the concerns and questions participants raised.

Transcript:
%s

For every concern:
1. Describe what was raised.
2. Rate how well it was addressed: not_addressed, partially_addressed, mostly_addressed or fully_addressed.
3. Explain the rating.

Look for direct questions, stated problems, requests for help or information, complaints, and goals participants named.
Only list items the transcript clearly supports. An empty list is a valid answer.`, transcript)
}

func concernHandlingPrompt(spec *domain.CriterionSpec, concerns *domain.IdentifiedConcerns) string {
	listed, _ := json.MarshalIndent(concerns, "", "  ")
	return fmt.Sprintf(`Judge how well the conversation handled the concerns identified below.

Identified concerns:
%s

%s

Consider whether questions were answered thoroughly, whether there was a real effort to respond, whether any concern was dismissed or ignored, and whether the conversation met its apparent purpose.

Available response options:
%s

Respond with the selected option, one short sentence of reasoning, and your confidence on the scale above.`,
		listed, confidenceScale, optionList(spec))
}

func criterionPrompt(spec *domain.CriterionSpec, transcript string) string {
	return fmt.Sprintf(`Analyze this conversation transcript for: %s

Transcript:
%s

%s

Available response options:
%s

%s

Respond with the selected option, one short sentence of reasoning, and your confidence on the scale above.
Acknowledge limits in the evidence honestly.`,
		spec.Description, transcript, spec.Prompt, optionList(spec), confidenceScale)
}

func indicatorPrompt(spec *domain.IndicatorSpec, transcript string) string {
	return fmt.Sprintf(`Decide whether the following communication pattern appears in the conversation.

Pattern: %s
Description: %s

Transcript:
%s

%s

Respond with whether the pattern is present, one short sentence of reasoning, and your confidence on the scale above.
Flag a pattern only when you can point to it. Ambiguous evidence calls for low or very_low confidence; explicit examples warrant high or very_high.`,
		spec.Name, spec.Description, transcript, confidenceScale)
}

func synthesisPrompt(hs *domain.HealthScore) string {
	criteria, _ := json.Marshal(hs.CriteriaResults)
	indicators, _ := json.Marshal(hs.IndicatorResults)
	return fmt.Sprintf(`Write a short health assessment of the conversation from the scored analysis below.

Criteria results: %s
Indicator results: %s
Final score: %d/100
Health level: %s
Total criteria points: %g
Indicator adjustment: %g
Raw score: %g

If the conversation was effective overall, answer with a single short sentence naming what went well.
Otherwise give one sentence on the main strengths and weaknesses followed by two or three concrete recommendations drawn from the findings.`,
		criteria, indicators, hs.FinalScore, hs.Range.Label,
		hs.TotalCriteriaPoints, hs.TotalIndicatorAdjustment, hs.RawScore)
}

func optionList(spec *domain.CriterionSpec) string {
	var b strings.Builder
	for i, o := range spec.ResponseOptions {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", o.Name, o.Description)
	}
	return b.String()
}
