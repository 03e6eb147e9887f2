package providers

// Base provides common fields and methods shared by the vendor adapters.
// Embed this struct to avoid repeating name, apiKey, and baseURL handling.
type Base struct {
	name         string
	apiKey       string
	baseURL      string
	defaultModel string
}

// Name returns the provider name.
func (b *Base) Name() string { return b.name }

// DefaultModel returns the model used when a request does not name one.
func (b *Base) DefaultModel() string { return b.defaultModel }

// withDefaults fills in the adapter's default model and, when the caller
// supplied no system message, the fixed legal-information system prompt.
func withDefaults(req Request, defaultModel string) Request {
	if req.Model == "" {
		req.Model = defaultModel
	}
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			return req
		}
	}
	msgs := make([]Message, 0, len(req.Messages)+1)
	msgs = append(msgs, Message{Role: RoleSystem, Content: DefaultSystemPrompt})
	msgs = append(msgs, req.Messages...)
	req.Messages = msgs
	return req
}
