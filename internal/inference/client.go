// Package inference talks to the remote multimodal model. One Analyze call is
// exactly one HTTP request; retrying is left to whoever triggered it.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/example/trustlens/internal/imageprocessor"
	"github.com/example/trustlens/internal/logging"
)

// DefaultEndpoint is the Gemini generateContent URL used when none is configured.
const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"

// Analyzer is the subset of the client the session controller depends on.
type Analyzer interface {
	Analyze(ctx context.Context, img *imageprocessor.Image, credential string) (*AnalysisResult, error)
}

// Client implements Analyzer against a generateContent endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	prompt     string
	generation GenerationConfig
}

// NewClient constructs a client. A nil httpClient gets one without a timeout;
// the call then lasts until the transport or ctx ends it.
func NewClient(endpoint string, httpClient *http.Client, logger *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger.Named("inference_client"),
		prompt:     AnalysisPrompt,
		generation: DefaultGenerationConfig,
	}
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Analyze sends img to the model and normalizes its verdict. Every failure is an *Error.
func (c *Client) Analyze(ctx context.Context, img *imageprocessor.Image, credential string) (*AnalysisResult, error) {
	if img == nil {
		return nil, &Error{Kind: KindInvalidRequest, Message: "Invalid request: no image provided"}
	}

	payload, err := json.Marshal(c.buildRequest(img))
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Message: "Invalid request: could not encode payload", Err: err}
	}

	endpoint, err := c.requestURL(credential)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Message: "Invalid request: bad endpoint", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Message: "Invalid request: could not build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("inference request failed", zap.Error(err))
		return nil, &Error{Kind: KindTransport, Message: "Could not reach the Gemini API", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, StatusCode: resp.StatusCode, Message: "Could not read the Gemini API response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := errorMessage(body, resp.StatusCode)
		c.logger.Error("inference api error",
			zap.Int("status", resp.StatusCode),
			zap.String("message", message),
			logging.KeyPrefix(credential),
		)
		return nil, statusError(resp.StatusCode, message)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &Error{Kind: KindRemote, StatusCode: resp.StatusCode, Message: "Malformed response from Gemini API", Err: err}
	}

	text := parsed.firstText()
	if text == "" {
		return nil, &Error{Kind: KindEmptyResponse, StatusCode: resp.StatusCode, Message: "No response received from Gemini API."}
	}

	result := ParseResult(text)
	c.logger.Debug("inference completed", zap.String("verdict", result.Verdict), zap.String("confidence", result.Confidence))
	return result, nil
}

func (c *Client) buildRequest(img *imageprocessor.Image) generateRequest {
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = imageprocessor.DefaultMIMEType
	}
	return generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: c.prompt},
				{InlineData: &inlineData{MIMEType: mimeType, Data: img.Base64()}},
			},
		}},
		GenerationConfig: c.generation,
	}
}

func (c *Client) requestURL(credential string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *generateResponse) firstText() string {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Parts[0].Text
}

// errorMessage pulls error.message out of a failure body, falling back to the status line.
func errorMessage(body []byte, status int) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return fmt.Sprintf("API Error: %d %s", status, http.StatusText(status))
}
