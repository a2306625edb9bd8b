package core

// Intent is the closed-set classification of a user query driving routing.
// Each agent declares the subset it understands; producing a value outside
// that subset is a routing contract violation.
type Intent string

const (
	// IntentGeneralQuestion is an ordinary knowledge question.
	IntentGeneralQuestion Intent = "general_question"
	// IntentSetupDiscussion is an explicit request to set up a panel discussion.
	IntentSetupDiscussion Intent = "setup_discussion"
	// IntentStartDiscussion is a request to start a previously set up discussion.
	IntentStartDiscussion Intent = "start_discussion"
	// IntentDiscussableTopic is a subject that could be turned into a discussion.
	IntentDiscussableTopic Intent = "discussable_topic"
	// IntentNonDiscussable is smalltalk or anything a discussion cannot be built on.
	IntentNonDiscussable Intent = "non_discussable"
)

// Turn is one prior exchange element of a conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Delta is a partial state update returned by a stage. Keys address the open
// extension map of State; returned keys overwrite, all other keys persist.
type Delta map[string]any

// Conventional extension keys shared between stages and the response
// translator.
const (
	// KeyStream holds a *StreamDirective the translator renders declaratively.
	KeyStream = "stream"
	// KeyDisplayText holds plain displayable text picked up by the
	// translator's generic extractor when no override exists for a stage.
	KeyDisplayText = "display_text"
	// KeyFinalAnswer holds the completed answer persisted to short-term
	// memory after the run.
	KeyFinalAnswer = "final_answer"
	// KeyMemoryText holds a fuller bot-side rendition for persistence when
	// the final answer alone would lose content, such as a discussion
	// script with its closing summary. It replaces KeyFinalAnswer in the
	// stored exchange only.
	KeyMemoryText = "memory_text"
)

// StreamDirective is a structured streaming instruction a stage can attach to
// its delta under KeyStream. The translator emits it without per-agent code.
type StreamDirective struct {
	Kind       EventKind
	Text       string
	Role       string
	Links      []string
	Images     []string
	CharPacing bool
}

// State is the mutable record threaded through one graph execution. It is
// created per request, owned exclusively by that request's executor, and
// discarded after the terminal stage apart from values explicitly written to
// memory.
//
// Base fields are fixed; agent-specific fields live in the open extension map
// and pass through unchanged when a stage does not touch them.
type State struct {
	Query       string
	History     []Turn
	SessionID   string
	UserID      string
	AgentID     string
	Intent      Intent // empty until classified, immutable afterward
	UserContext map[string]string

	ext map[string]any
}

// NewState creates a State for one request.
func NewState(query, userID, sessionID, agentID string, history []Turn) *State {
	return &State{
		Query:       query,
		History:     history,
		SessionID:   sessionID,
		UserID:      userID,
		AgentID:     agentID,
		UserContext: map[string]string{},
		ext:         map[string]any{},
	}
}

// Get returns an extension value and an existence flag.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.ext[key]
	return v, ok
}

// GetString returns the extension value as a string, or "" when absent or of
// another type.
func (s *State) GetString(key string) string {
	if v, ok := s.ext[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// Set stores one extension value.
func (s *State) Set(key string, v any) { s.ext[key] = v }

// Merge applies a stage's partial update. Shallow merge: returned keys
// overwrite, all other keys persist untouched.
func (s *State) Merge(d Delta) {
	for k, v := range d {
		s.ext[k] = v
	}
}

// Ext returns a shallow copy of the extension map for inspection.
func (s *State) Ext() map[string]any {
	out := make(map[string]any, len(s.ext))
	for k, v := range s.ext {
		out[k] = v
	}
	return out
}

// Clone returns a deep-enough copy safe for speculative processing: the
// extension map, history slice and user context are copied, values are
// shared.
func (s *State) Clone() *State {
	c := &State{
		Query:       s.Query,
		History:     make([]Turn, len(s.History)),
		SessionID:   s.SessionID,
		UserID:      s.UserID,
		AgentID:     s.AgentID,
		Intent:      s.Intent,
		UserContext: make(map[string]string, len(s.UserContext)),
		ext:         make(map[string]any, len(s.ext)),
	}
	copy(c.History, s.History)
	for k, v := range s.UserContext {
		c.UserContext[k] = v
	}
	for k, v := range s.ext {
		c.ext[k] = v
	}
	return c
}

// Request is one inbound user turn.
type Request struct {
	AgentCode     string `json:"agent_code"`
	UserID        string `json:"user_id"`
	SessionID     string `json:"session_id,omitempty"`
	Query         string `json:"query"`
	PriorMessages []Turn `json:"prior_messages,omitempty"`
}
