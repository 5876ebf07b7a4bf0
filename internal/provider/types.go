package provider

// PartType distinguishes the content blocks of a multimodal request.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// Part is one block of a multimodal prompt. Image parts carry both the
// original path (for the durable record) and the base64 payload (for the
// wire).
type Part struct {
	Type      PartType
	Text      string
	ImagePath string
	B64       string
	MIME      string
}

// Request is the provider-neutral prompt structure handed to Send.
type Request struct {
	Parts []Part
	Meta  map[string]string // advisory metadata (category, index)
}

// Params are the generation parameters included with every request.
type Params struct {
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Seed        *int64
}

// Text concatenates the text parts of the request, separated by newlines.
func (r Request) Text() string {
	var out string
	for _, p := range r.Parts {
		if p.Type != PartText {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

// ImagePaths returns the file paths of all image parts, in order.
func (r Request) ImagePaths() []string {
	var paths []string
	for _, p := range r.Parts {
		if p.Type == PartImage && p.ImagePath != "" {
			paths = append(paths, p.ImagePath)
		}
	}
	return paths
}
