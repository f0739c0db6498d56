package qwen

import (
	"vlshowcase/internal/imageproc"
	"vlshowcase/internal/models"
)

// Message is one role-tagged message in the chat-completions wire format.
// Content is an ordered list of text and image parts.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is a tagged fragment of a message: Type selects between a
// text fragment and an image reference.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageRef wraps an image URL or data URI for the wire format.
type ImageRef struct {
	URL string `json:"url"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image content part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageRef{URL: url}}
}

// ImageSourceKind tags how an inbound image payload is interpreted.
type ImageSourceKind string

const (
	// ImageSourceFile marks Data as base64 image content, with or
	// without a data-URI header.
	ImageSourceFile ImageSourceKind = "file"
	// ImageSourceURL marks Data as a remote URL used verbatim.
	ImageSourceURL ImageSourceKind = "url"
)

// ImageSource is the inbound image descriptor of a generate request.
type ImageSource struct {
	Kind ImageSourceKind
	Data string
}

// BuildMessages assembles the ordered message list for the upstream
// model: prior history first, then the current prompt as a final user
// message. User turns carrying an image emit the image part before the
// text part.
func BuildMessages(prompt string, image *ImageSource, history []models.ConversationTurn) []Message {
	messages := make([]Message, 0, len(history)+1)

	for _, turn := range history {
		content := make([]ContentPart, 0, 2)
		if turn.Role == models.RoleUser && turn.ImageURL != "" {
			content = append(content, ImagePart(turn.ImageURL))
		}
		content = append(content, TextPart(turn.Content))
		messages = append(messages, Message{Role: string(turn.Role), Content: content})
	}

	current := make([]ContentPart, 0, 2)
	if image != nil {
		var url string
		switch image.Kind {
		case ImageSourceURL:
			url = image.Data
		default: // file: base64 payload, data-URI header added when missing
			url = imageproc.EnsureDataURI(image.Data)
		}
		current = append(current, ImagePart(url))
	}
	current = append(current, TextPart(prompt))
	messages = append(messages, Message{Role: string(models.RoleUser), Content: current})

	return messages
}
