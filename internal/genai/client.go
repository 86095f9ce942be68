package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Part is one unit of multimodal content exchanged with the backend: either
// text or inline base64 media, never both.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries base64-encoded bytes tagged with a media type.
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// TextPart builds a text-only part.
func TextPart(text string) Part { return Part{Text: text} }

// ImagePart builds an inline media part.
func ImagePart(mimeType, data string) Part {
	return Part{InlineData: &InlineData{MimeType: mimeType, Data: data}}
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("genai: status=%d message=%s", e.StatusCode, e.Message)
}

// policyRejectionSignature is the marker the backend embeds in content-policy
// refusals. Matched verbatim; the backend does not return a structured code.
const policyRejectionSignature = "Responsible AI practices"

// IsPolicyRejection reports whether err is a backend content-policy refusal.
func IsPolicyRejection(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.Message, policyRejectionSignature)
	}
	return strings.Contains(err.Error(), policyRejectionSignature)
}

// Client talks to the generative backend over REST.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	ChatModel  string
	ImageModel string
	EditModel  string
}

func NewClient(apiKey, chatModel, imageModel, editModel string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		BaseURL:    defaultBaseURL,
		APIKey:     apiKey,
		ChatModel:  chatModel,
		ImageModel: imageModel,
		EditModel:  editModel,
	}
}

type generateImagesRequest struct {
	Instances  []imageInstance `json:"instances"`
	Parameters imageParameters `json:"parameters"`
}

type imageInstance struct {
	Prompt string `json:"prompt"`
}

type imageParameters struct {
	SampleCount    int    `json:"sampleCount"`
	OutputMimeType string `json:"outputMimeType,omitempty"`
}

type generateImagesResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

// GenerateImage renders count images for the prompt and returns their base64
// bytes. Single-shot, no streaming.
func (c *Client) GenerateImage(ctx context.Context, prompt string, count int, outputMimeType string) ([]string, error) {
	if count < 1 {
		count = 1
	}
	body := generateImagesRequest{
		Instances:  []imageInstance{{Prompt: prompt}},
		Parameters: imageParameters{SampleCount: count, OutputMimeType: outputMimeType},
	}
	var out generateImagesResponse
	if err := c.post(ctx, "/models/"+c.ImageModel+":predict", body, &out); err != nil {
		return nil, err
	}
	if len(out.Predictions) == 0 {
		return nil, fmt.Errorf("genai: no images in response")
	}
	images := make([]string, 0, len(out.Predictions))
	for _, p := range out.Predictions {
		images = append(images, p.BytesBase64Encoded)
	}
	return images, nil
}

type generateContentRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GenerateOrEditImage sends multimodal parts to the image-capable model and
// returns the response parts (text and/or inline images) in backend order.
func (c *Client) GenerateOrEditImage(ctx context.Context, parts []Part) ([]Part, error) {
	body := generateContentRequest{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{ResponseModalities: []string{"IMAGE", "TEXT"}},
	}
	var out generateContentResponse
	if err := c.post(ctx, "/models/"+c.EditModel+":generateContent", body, &out); err != nil {
		return nil, err
	}
	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("genai: empty candidates")
	}
	return out.Candidates[0].Content.Parts, nil
}

// post sends a JSON request and decodes a JSON response, mapping non-2xx
// statuses to *APIError.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	if c.APIKey == "" {
		return fmt.Errorf("genai: api key missing")
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var wrapped struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(b))
	if err := json.Unmarshal(b, &wrapped); err == nil && wrapped.Error.Message != "" {
		msg = wrapped.Error.Message
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
