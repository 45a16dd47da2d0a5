package contentsafety

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

const (
	textAnalyzePath  = "/contentsafety/text:analyze"
	imageAnalyzePath = "/contentsafety/image:analyze"

	// DefaultOutputType selects the 0/2/4/6 severity scale of the API.
	DefaultOutputType = "FourSeverityLevels"
)

// The four content categories scored by Azure AI Content Safety.
const (
	CategoryHate     = "Hate"
	CategorySelfHarm = "SelfHarm"
	CategorySexual   = "Sexual"
	CategoryViolence = "Violence"
)

// DefaultCategories is the category set used when a request names none.
var DefaultCategories = []string{CategoryHate, CategorySelfHarm, CategorySexual, CategoryViolence}

// CategoryScore is one entry of the categoriesAnalysis array.
type CategoryScore struct {
	Category string `json:"category"`
	Severity int    `json:"severity"`
}

// Outcome is the result of a single analyze call. Body always holds the raw
// response body; Analysis is populated only when the call returned 2xx.
type Outcome struct {
	StatusCode int
	Body       json.RawMessage
	Analysis   []CategoryScore
}

// OK reports whether the upstream call returned 2xx.
func (o *Outcome) OK() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

type Client struct {
	endpoint   string
	apiKey     string
	apiVersion string
	httpClient *http.Client
}

func NewClient(endpoint, apiKey, apiVersion string) *Client {
	if apiVersion == "" {
		apiVersion = "2024-09-01"
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		apiVersion: apiVersion,
		httpClient: &http.Client{},
	}
}

func (c *Client) APIVersion() string { return c.apiVersion }

type textAnalyzeRequest struct {
	Text       string   `json:"text"`
	Categories []string `json:"categories,omitempty"`
	OutputType string   `json:"outputType,omitempty"`
}

type imageContent struct {
	Content string `json:"content"`
}

type imageAnalyzeRequest struct {
	Image      imageContent `json:"image"`
	Categories []string     `json:"categories,omitempty"`
	OutputType string       `json:"outputType,omitempty"`
}

type analyzeResponse struct {
	CategoriesAnalysis []CategoryScore `json:"categoriesAnalysis"`
}

// AnalyzeText performs a single best-effort text:analyze call. A non-2xx
// status is not an error; the upstream body comes back verbatim in Outcome.
func (c *Client) AnalyzeText(ctx context.Context, text string, categories []string, outputType string) (*Outcome, error) {
	if outputType == "" {
		outputType = DefaultOutputType
	}
	return c.analyze(ctx, textAnalyzePath, textAnalyzeRequest{
		Text:       text,
		Categories: categories,
		OutputType: outputType,
	})
}

// AnalyzeImage performs a single image:analyze call with base64-encoded bytes.
func (c *Client) AnalyzeImage(ctx context.Context, base64Content string, categories []string, outputType string) (*Outcome, error) {
	if outputType == "" {
		outputType = DefaultOutputType
	}
	return c.analyze(ctx, imageAnalyzePath, imageAnalyzeRequest{
		Image:      imageContent{Content: base64Content},
		Categories: categories,
		OutputType: outputType,
	})
}

func (c *Client) analyze(ctx context.Context, path string, payload any) (*Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling request")
	}

	url := c.endpoint + path + "?api-version=" + c.apiVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "error creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "error calling Azure AI Content Safety API")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read response body (status code: %d)", resp.StatusCode)
	}

	// Keep the body storable in a JSON column even when the upstream answers
	// with a non-JSON payload.
	if !json.Valid(raw) {
		raw, _ = json.Marshal(string(raw))
	}

	out := &Outcome{StatusCode: resp.StatusCode, Body: json.RawMessage(raw)}
	if !out.OK() {
		return out, nil
	}

	var decoded analyzeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrap(err, "error decoding API response")
	}
	out.Analysis = decoded.CategoriesAnalysis
	return out, nil
}
