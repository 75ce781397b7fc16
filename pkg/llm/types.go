package llm

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleDeveloper Role = "developer"
)

// Message is one entry of the ordered sequence sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a single chat-completion call.
type ChatRequest struct {
	Model    string
	APIKey   string
	Messages []Message
	Stream   bool
}

// StreamHandlers receive streaming progress. Both callbacks are optional.
type StreamHandlers struct {
	// OnToken receives each incremental token exactly as it arrived.
	OnToken func(token string)
	// OnDone fires once when the stream ends, with or without the sentinel.
	OnDone func()
}

func (h StreamHandlers) token(t string) {
	if h.OnToken != nil {
		h.OnToken(t)
	}
}

func (h StreamHandlers) done() {
	if h.OnDone != nil {
		h.OnDone()
	}
}

// chatRequestBody is the JSON body posted to the completion endpoint.
type chatRequestBody struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// APIError is the error object some providers embed in a response or frame.
type APIError struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

// ChatResponse is the non-streaming response shape.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *APIError `json:"error,omitempty"`
}

// StreamingChatResponse is one decoded `data:` frame.
type StreamingChatResponse struct {
	ID      string            `json:"id"`
	Model   string            `json:"model"`
	Choices []StreamingChoice `json:"choices"`
	Error   *APIError         `json:"error,omitempty"`
}

// StreamingChoice represents a streaming response choice
type StreamingChoice struct {
	Index        int            `json:"index"`
	Delta        StreamingDelta `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

// StreamingDelta contains incremental updates
type StreamingDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}
