package analyzer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const systemPrompt = "You are a GitHub Actions security expert. You answer with a single JSON object and nothing else."

const promptTemplate = `Analyze the following workflow file and execution logs for security vulnerabilities and best practice violations.

WORKFLOW NAME: %s

WORKFLOW FILE (.yml):
` + "```yaml" + `
%s
` + "```" + `

LATEST RUN LOGS:
` + "```" + `
%s
` + "```" + `

Provide a detailed security analysis in the following JSON format ONLY (no markdown, just valid JSON):
{
  "overallRisk": "critical|high|medium|low",
  "summary": "Brief summary of security posture",
  "issues": [
    {
      "severity": "critical|high|medium|low",
      "title": "Issue title",
      "description": "Detailed description of the issue",
      "location": "line X or step name",
      "recommendation": "How to fix this issue",
      "suggestedFix": "Example code or configuration fix",
      "category": "secrets|permissions|dependencies|best-practices|credentials|code-quality"
    }
  ]
}

Focus on:
1. Exposed secrets or credentials in logs
2. Overly permissive permissions (read-all, write-all)
3. Unvalidated external inputs
4. Insecure dependency versions
5. Missing SBOM or vulnerability scanning
6. Hardcoded values
7. Unencrypted artifact storage
8. Missing branch protection rules references
9. Insecure code practices

Return ONLY valid JSON, no additional text.`

// buildPrompt renders the user prompt. Logs longer than maxLogChars keep their tail,
// where failures usually are. The cut never splits a rune.
func buildPrompt(workflowName, workflowContent, logs string, maxLogChars int) string {
	if maxLogChars > 0 && len(logs) > maxLogChars {
		start := len(logs) - maxLogChars
		for start < len(logs) && !utf8.RuneStart(logs[start]) {
			start++
		}
		logs = "[... truncated ...]\n" + logs[start:]
	}
	return fmt.Sprintf(promptTemplate, workflowName, strings.TrimSpace(workflowContent), logs)
}
