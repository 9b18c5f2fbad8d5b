package conversation

import (
	"regexp"
	"strings"
)

// OutputGuardResult contains the result of scanning an outbound reply.
type OutputGuardResult struct {
	// Leaked is true if the reply contains information that should not be sent.
	Leaked bool
	// Reasons lists the detection signals that fired.
	Reasons []string
	// Sanitized is the cleaned reply, or empty when the reply must be blocked.
	Sanitized string
}

type outputLeakPattern struct {
	re     *regexp.Regexp
	reason string
	block  bool // false: the sentence can be stripped instead of blocking
}

var outputLeakPatterns = []outputLeakPattern{
	// Prompt and instruction disclosure
	{regexp.MustCompile(`(?i)my (system\s+)?prompt\s+(is|says|tells|instructs)`), "leak:system_prompt", true},
	{regexp.MustCompile(`(?i)my instructions?\s+(are|say|tell|include|require)`), "leak:instructions_disclosure", true},
	{regexp.MustCompile(`(?i)i('m| am) (programmed|instructed|told|designed|configured) to`), "leak:programming_disclosure", true},
	{regexp.MustCompile(`(?i)(here are|these are|the following are)\s+(my )?(system )?(instructions|rules|guidelines|prompts)`), "leak:rules_listing", true},
	{regexp.MustCompile(`(?i)(booking placement|booking update|booking cancel) instructions`), "leak:prompt_section", true},

	// Assistant identity
	{regexp.MustCompile(`(?i)i('m| am) (a|an) (AI|artificial intelligence|language model|LLM|chatbot|chat bot)\b`), "leak:ai_identity", false},
	{regexp.MustCompile(`(?i)(powered by|built on|running on|using)\s+(Gemini|Google AI|Bedrock|AWS|OpenAI|GPT)`), "leak:tech_stack", true},

	// Credentials and infrastructure
	{regexp.MustCompile(`(?i)(api[_\s]?key|secret[_\s]?key|access[_\s]?token|bearer\s+token)\s*[:=]\s*\S+`), "leak:credential", true},
	{regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`), "leak:google_key", true},
	{regexp.MustCompile(`(?i)AKIA[A-Z0-9]{16}`), "leak:aws_key", true},
	{regexp.MustCompile(`(?i)(postgres|postgresql|redis)://\S+`), "leak:database_url", true},
	{regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d{2,5}`), "leak:ip_port", true},
	{regexp.MustCompile(`(?i)/admin/|/webhooks/|/internal/|/debug/`), "leak:internal_path", true},

	// Raw identifiers from the context block
	{regexp.MustCompile(`(?i)\b(table_id|booking_id|customer_id)\b`), "leak:field_name", true},
	{regexp.MustCompile(`(?i)other (customer|guest)'?s?\s+(name|phone|number|booking|reservation)`), "leak:other_customer_ref", true},
}

var aiIdentitySentence = regexp.MustCompile(`(?i)[^.!?]*\bi('m| am) (a|an) (AI|artificial intelligence|language model|LLM|chatbot|chat bot)\b[^.!?]*[.!?]?\s*`)

// ScanReply checks an outbound reply for prompt, credential and identifier leaks.
func ScanReply(reply string) OutputGuardResult {
	if strings.TrimSpace(reply) == "" {
		return OutputGuardResult{Sanitized: reply}
	}

	var reasons []string
	shouldBlock := false
	for _, p := range outputLeakPatterns {
		if p.re.MatchString(reply) {
			reasons = append(reasons, p.reason)
			if p.block {
				shouldBlock = true
			}
		}
	}
	if len(reasons) == 0 {
		return OutputGuardResult{Sanitized: reply}
	}

	result := OutputGuardResult{Leaked: true, Reasons: reasons}
	if !shouldBlock {
		result.Sanitized = strings.TrimSpace(aiIdentitySentence.ReplaceAllString(reply, ""))
	}
	return result
}
