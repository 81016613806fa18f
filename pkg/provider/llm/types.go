package llm

import "encoding/base64"

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Images are attached after Content. Only "user" messages may carry
	// images.
	Images []Image
}

// Image is an inline image attachment.
type Image struct {
	// MediaType is the IANA media type, e.g. "image/png".
	MediaType string

	// Data is the raw encoded image file.
	Data []byte
}

// DataURL returns the image as a base64 data URL. An empty MediaType is
// sent as image/png.
func (i Image) DataURL() string {
	mt := i.MediaType
	if mt == "" {
		mt = "image/png"
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsVision indicates the model can process image inputs.
	SupportsVision bool

	// SupportsJSONMode indicates the provider honours CompletionRequest.JSONMode
	// natively.
	SupportsJSONMode bool
}
