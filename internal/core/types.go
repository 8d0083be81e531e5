package core

import "time"

const (
	ParleyName    = "Parley"
	ParleyVersion = "0.1.0"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the wire shape handed to a model provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the root of a conversation. Soft-deleted, never removed.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	IsDeleted bool      `json:"is_deleted"`
}

// Message is one persisted turn entry. Content is immutable after creation;
// the only mutation is the soft-delete flag flipped during compaction.
// ID is assigned by the store in insertion order, which is the sole
// sequencing invariant within a session.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	IsDeleted bool      `json:"is_deleted"`
}

// UserProfile splits what the user wants from what constrains them.
type UserProfile struct {
	Preferences []string `json:"preferences"`
	Constraints []string `json:"constraints"`
}

// Summary is one compaction result. Records are append-only; the most
// recently updated live record for a session is authoritative.
type Summary struct {
	ID            string      `json:"id"`
	SessionID     string      `json:"session_id"`
	UserProfile   UserProfile `json:"user_profile"`
	KeyFacts      []string    `json:"key_facts"`
	Decisions     []string    `json:"decisions"`
	OpenQuestions []string    `json:"open_questions"`
	Todos         []string    `json:"todos"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// RewriteResult lives for one turn and is never persisted. When IsAmbiguous
// is true exactly one of RewrittenQuery / ClarifyingQuestions is set; when
// false both are empty and the original query is used verbatim.
type RewriteResult struct {
	OriginalQuery       string   `json:"original_query"`
	IsAmbiguous         bool     `json:"is_ambiguous"`
	RewrittenQuery      string   `json:"rewritten_query,omitempty"`
	ClarifyingQuestions []string `json:"clarifying_questions,omitempty"`
}

// EffectiveQuery is what generation should answer.
func (r RewriteResult) EffectiveQuery() string {
	if r.RewrittenQuery != "" {
		return r.RewrittenQuery
	}
	return r.OriginalQuery
}

// NeedsClarification reports whether the turn must short-circuit to
// clarifying questions instead of generating an answer.
func (r RewriteResult) NeedsClarification() bool {
	return r.IsAmbiguous && r.RewrittenQuery == "" && len(r.ClarifyingQuestions) > 0
}
