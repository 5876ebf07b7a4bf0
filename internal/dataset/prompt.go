package dataset

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/promptbatch/promptbatch/internal/provider"
)

const instruction = "You are a helpful multimodal assistant. Answer the question based on the image."

// BuildRequest turns one dataset item into the provider-neutral prompt
// structure: instruction text, the question, and the image embedded as
// base64.
func BuildRequest(item Item) (provider.Request, error) {
	b64, err := imageToBase64(item.ImagePath)
	if err != nil {
		return provider.Request{}, err
	}

	return provider.Request{
		Parts: []provider.Part{
			{Type: provider.PartText, Text: instruction},
			{Type: provider.PartText, Text: "Question: " + item.Question},
			{Type: provider.PartImage, ImagePath: item.ImagePath, B64: b64, MIME: "image/jpeg"},
		},
		Meta: map[string]string{
			"category": item.Category,
			"index":    item.Index,
		},
	}, nil
}

func imageToBase64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
