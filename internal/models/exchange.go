package models

// Exchange is one full prompt/response thread, anchored by an initial
// prompt/response pair and extended in place by follow-ups.
type Exchange struct {
	ID       string `json:"id"`
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
	ImageURL string `json:"imageUrl,omitempty"`
	// Timestamp is the creation instant in milliseconds since epoch.
	Timestamp int64 `json:"timestamp"`
	// ConversationHistory always holds an even number of turns: the
	// seeding user/assistant pair plus one pair per follow-up.
	ConversationHistory []ConversationTurn `json:"conversationHistory"`
}

// LastAssistantContent returns the content of the most recent assistant
// turn, or the empty string when the history holds none.
func (e *Exchange) LastAssistantContent() string {
	for i := len(e.ConversationHistory) - 1; i >= 0; i-- {
		if e.ConversationHistory[i].Role == RoleAssistant {
			return e.ConversationHistory[i].Content
		}
	}
	return ""
}

// Clone returns a deep copy so callers cannot mutate store-owned state.
func (e *Exchange) Clone() *Exchange {
	if e == nil {
		return nil
	}
	cp := *e
	cp.ConversationHistory = make([]ConversationTurn, len(e.ConversationHistory))
	copy(cp.ConversationHistory, e.ConversationHistory)
	return &cp
}
