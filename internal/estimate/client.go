// Package estimate turns a food photo into a nutrition estimate via a
// generative model endpoint, with a secondary model fallback.
package estimate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/valetudoapp/valetudo/internal/normalize"
	"github.com/valetudoapp/valetudo/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultApiUrl is the generative language endpoint base.
	DefaultApiUrl = "https://generativelanguage.googleapis.com/v1beta"

	DefaultPrimaryModel   = "gemini-2.0-flash"
	DefaultSecondaryModel = "gemini-1.5-flash"
)

// estimatePrompt demands strict JSON so the response survives the
// parser. Models still wrap it in code fences now and then, which
// parseEstimate strips.
const estimatePrompt = `Look at the food in this photo and estimate its nutrition for one typical portion. ` +
	`Respond with strict JSON only, no markdown, exactly these fields: ` +
	`{"name": string, "calories": number, "protein": number, "carbs": number, "fat": number, "detail": string}. ` +
	`The detail field is a short human-readable description of the portion.`

var ErrEstimateFailed = errors.New("food estimation failed")

// Estimate is a parsed model response, macros normalized.
type Estimate struct {
	Name     string `json:"name"`
	Calories int    `json:"calories"`
	Protein  int    `json:"protein"`
	Carbs    int    `json:"carbs"`
	Fat      int    `json:"fat"`
	Detail   string `json:"detail"`
}

type Client struct {
	apiUrl     string
	models     []string
	httpClient *http.Client
}

func NewClient(apiUrl string, httpClient *http.Client) *Client {
	return &Client{
		apiUrl:     apiUrl,
		models:     []string{DefaultPrimaryModel, DefaultSecondaryModel},
		httpClient: httpClient,
	}
}

// Estimate sends the JPEG to the primary model, retrying once with
// the secondary model on any failure (HTTP error, missing candidates,
// unparseable output) before giving up.
func (c *Client) Estimate(ctx context.Context, apiKey string, jpegImage []byte) (estimate *Estimate, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "estimateClient.estimate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var lastErr error
	for _, model := range c.models {
		estimate, modelErr := c.estimateWithModel(ctx, model, apiKey, jpegImage)
		if modelErr != nil {
			log.Warnf("estimate with model %s: %s", model, modelErr)
			lastErr = modelErr
			continue
		}
		return estimate, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrEstimateFailed, lastErr)
}

func (c *Client) estimateWithModel(ctx context.Context, model, apiKey string, jpegImage []byte) (*Estimate, error) {
	reqPayload := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: estimatePrompt},
				{InlineData: &inlineData{
					MimeType: "image/jpeg",
					Data:     base64.StdEncoding.EncodeToString(jpegImage),
				}},
			},
		}},
	}
	reqBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	generateUrl := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.apiUrl, model, apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", generateUrl, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read generate response bytes: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generate response status %d", resp.StatusCode)
	}

	var generateResp generateResponse
	if err := json.Unmarshal(respBytes, &generateResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal generate response bytes: %w", err)
	}

	text := generateResp.text()
	if text == "" {
		return nil, errors.New("no candidates in generate response")
	}

	return parseEstimate(text)
}

// parseEstimate strips optional markdown code fences and parses the
// strict JSON body the prompt demands.
func parseEstimate(text string) (*Estimate, error) {
	text = stripCodeFences(text)

	var raw struct {
		Name     string  `json:"name"`
		Calories float64 `json:"calories"`
		Protein  float64 `json:"protein"`
		Carbs    float64 `json:"carbs"`
		Fat      float64 `json:"fat"`
		Detail   string  `json:"detail"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal estimate text: %w", err)
	}

	return &Estimate{
		Name:     normalize.CleanText(raw.Name, normalize.FallbackMeal),
		Calories: normalize.SafeInt(raw.Calories),
		Protein:  normalize.SafeInt(raw.Protein),
		Carbs:    normalize.SafeInt(raw.Carbs),
		Fat:      normalize.SafeInt(raw.Fat),
		Detail:   normalize.CleanText(raw.Detail, ""),
	}, nil
}

func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:]
	} else {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r generateResponse) text() string {
	for _, candidate := range r.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}
