// Package credential defines the credential-type taxonomy for bubbles
// and classifies each type for readiness validation. A credential type
// is either system-managed (the platform injects it, the user never
// selects one), optional (the bubble runs without it), or user-required
// (the default for every tag, known or not).
package credential

// Type is a credential-type tag as it appears in a flow's
// required-credentials map, e.g. "SLACK_CRED".
type Type string

// Credential types known to the platform. Flows may reference tags
// outside this list; those are treated as user-required.
const (
	TypeOpenAI    Type = "OPENAI_CRED"
	TypeGemini    Type = "GOOGLE_GEMINI_CRED"
	TypeAnthropic Type = "ANTHROPIC_CRED"
	TypeSlack     Type = "SLACK_CRED"
	TypeGmail     Type = "GMAIL_CRED"
	TypeFirecrawl Type = "FIRECRAWL_API_KEY"
	TypeResend    Type = "RESEND_CRED"
	TypeGitHub    Type = "GITHUB_CRED"
	TypeTelegram  Type = "TELEGRAM_CRED"
	TypeDatabase  Type = "DATABASE_CRED"
)

// systemManaged holds credential types the platform supplies
// automatically. They are never reported as missing.
var systemManaged = map[Type]bool{
	TypeOpenAI:    true,
	TypeGemini:    true,
	TypeAnthropic: true,
}

// optional holds credential types a bubble can operate without.
// Database bubbles fall back to the platform scratch database when no
// credential is selected.
var optional = map[Type]bool{
	TypeDatabase: true,
}

// IsSystemManaged reports whether the platform injects this credential
// type automatically.
func IsSystemManaged(t Type) bool {
	return systemManaged[t]
}

// IsOptional reports whether a bubble can run without this credential
// type.
func IsOptional(t Type) bool {
	return optional[t]
}

// RequiresSelection reports whether the user must select a credential
// of this type before the owning bubble is executable.
func RequiresSelection(t Type) bool {
	return !IsSystemManaged(t) && !IsOptional(t)
}
