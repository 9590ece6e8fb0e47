package processor

import "fmt"

// AnalysisTemperature keeps the document review close to deterministic
const AnalysisTemperature = 0.2

// AnalysisPrompt asks for the JSON review of a redacted document
func AnalysisPrompt(maskedText string) string {
	return fmt.Sprintf(`Analyze the following document and provide the following in a JSON format:
1. A "summary" of the document in simple and clear words.
2. A "risk_score" from 1 (low risk) to 100 (high risk).
3. A list of "pros" (favorable terms) as an array of strings.
4. A list of "cons" (risk factors or unfavorable terms) as an array of strings.

Placeholders such as [REDACTED:PERSON] stand for removed personal data. Keep them as they are.

Document:
%s
`, maskedText)
}

// QuestionPrompt asks a question about a redacted document
func QuestionPrompt(maskedText, question string) string {
	return fmt.Sprintf("Answer the question based on the following document:\n\n%s\n\nQuestion: %s", maskedText, question)
}
