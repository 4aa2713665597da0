// Package openai provides OpenAI chat-completions integration, including
// vision content parts and SSE streaming.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AltairaLabs/barre/runtime/logger"
	"github.com/AltairaLabs/barre/runtime/providers"
	"github.com/AltairaLabs/barre/runtime/types"
)

// HTTP constants
const (
	openAIPredictCompletionsPath = "/chat/completions"
	contentTypeHeader            = "Content-Type"
	applicationJSON              = "application/json"
	authorizationHeader          = "Authorization"
	bearerPrefix                 = "Bearer "

	providerName = "OpenAI"
)

// DefaultBaseURL is the public OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// Fallback pricing (GPT-4o) for models without configured pricing.
const (
	defaultInputCostPer1K  = 0.0025
	defaultOutputCostPer1K = 0.01
)

func init() {
	providers.RegisterProviderFactory("openai", func(spec providers.ProviderSpec) (providers.Provider, error) {
		return NewProvider(spec), nil
	})
}

// Provider implements providers.Provider for the OpenAI chat-completions API.
type Provider struct {
	providers.BaseProvider
	baseURL  string
	apiKey   string
	defaults providers.ProviderDefaults
}

// NewProvider creates a new OpenAI provider. The API key is read from
// spec.APIKeyEnv, falling back to OPENAI_API_KEY.
func NewProvider(spec providers.ProviderSpec) *Provider {
	keyEnv := spec.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	baseURL := spec.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, apiKey := providers.NewBaseProviderWithAPIKey(spec.ID, spec.Model, keyEnv, spec.HTTPClient)

	return &Provider{
		BaseProvider: base,
		baseURL:      baseURL,
		apiKey:       apiKey,
		defaults:     spec.Defaults,
	}
}

// OpenAI API request/response structures
type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float32               `json:"temperature,omitempty"`
	TopP           float32               `json:"top_p,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
	Stream         bool                  `json:"stream,omitempty"`
	StreamOptions  *openAIStreamOptions  `json:"stream_options,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []openAIContentPart
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Index        int                   `json:"index"`
	Message      openAIResponseMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

type openAIResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIUsage struct {
	PromptTokens        int                  `json:"prompt_tokens"`
	CompletionTokens    int                  `json:"completion_tokens"`
	TotalTokens         int                  `json:"total_tokens"`
	PromptTokensDetails *openAIPromptDetails `json:"prompt_tokens_details,omitempty"`
}

type openAIPromptDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// openAIStreamChunk represents the structure of OpenAI streaming response chunks
type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage,omitempty"`
}

// prepareOpenAIMessages converts request messages to OpenAI format with the
// system message first.
func prepareOpenAIMessages(req *providers.PredictionRequest) ([]openAIMessage, error) {
	messages := make([]openAIMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	for i := range req.Messages {
		converted, err := convertMessageToOpenAI(&req.Messages[i])
		if err != nil {
			return nil, fmt.Errorf("failed to convert message: %w", err)
		}
		messages = append(messages, converted)
	}
	return messages, nil
}

// convertMessageToOpenAI converts a single message. Multimodal messages keep
// their part order, so text preceding images stays first.
func convertMessageToOpenAI(msg *types.Message) (openAIMessage, error) {
	if !msg.IsMultimodal() {
		return openAIMessage{Role: msg.Role, Content: msg.Content}, nil
	}

	parts := make([]openAIContentPart, 0, len(msg.Parts))
	for i := range msg.Parts {
		part := &msg.Parts[i]
		if err := part.Validate(); err != nil {
			return openAIMessage{}, err
		}
		switch part.Type {
		case types.ContentTypeText:
			parts = append(parts, openAIContentPart{Type: "text", Text: *part.Text})
		case types.ContentTypeImage:
			parts = append(parts, openAIContentPart{
				Type: "image_url",
				ImageURL: &openAIImageURL{
					URL:    part.Media.DataURL(),
					Detail: part.Media.Detail,
				},
			})
		}
	}
	return openAIMessage{Role: msg.Role, Content: parts}, nil
}

// buildRequest applies provider defaults to zero-valued request parameters.
func (p *Provider) buildRequest(req *providers.PredictionRequest, stream bool) (*openAIRequest, error) {
	messages, err := prepareOpenAIMessages(req)
	if err != nil {
		return nil, err
	}

	out := &openAIRequest{
		Model:       p.Model(),
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
	if out.Temperature == 0 {
		out.Temperature = p.defaults.Temperature
	}
	if out.TopP == 0 {
		out.TopP = p.defaults.TopP
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = p.defaults.MaxTokens
	}
	if req.ResponseFormat != providers.ResponseFormatText {
		out.ResponseFormat = &openAIResponseFormat{Type: req.ResponseFormat}
	}
	if stream {
		out.Stream = true
		out.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}
	return out, nil
}

func (p *Provider) newHTTPRequest(ctx context.Context, body *openAIRequest) (*http.Request, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	url := p.baseURL + openAIPredictCompletionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set(contentTypeHeader, applicationJSON)
	httpReq.Header.Set(authorizationHeader, bearerPrefix+p.apiKey)
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	logger.APIRequest(providerName, http.MethodPost, url, map[string]string{
		contentTypeHeader:   applicationJSON,
		authorizationHeader: bearerPrefix + p.apiKey,
	}, body)
	return httpReq, nil
}

// Predict sends a non-streaming completion request.
func (p *Provider) Predict(ctx context.Context, req providers.PredictionRequest) (providers.PredictionResponse, error) {
	start := time.Now()
	predictResp := providers.PredictionResponse{}

	openAIReq, err := p.buildRequest(&req, false)
	if err != nil {
		return predictResp, fmt.Errorf("failed to prepare messages: %w", err)
	}
	predictResp.RawRequest = openAIReq

	httpReq, err := p.newHTTPRequest(ctx, openAIReq)
	if err != nil {
		return predictResp, err
	}

	resp, err := p.GetHTTPClient().Do(httpReq)
	if err != nil {
		predictResp.Latency = time.Since(start)
		logger.APIResponse(providerName, 0, "", err)
		return predictResp, fmt.Errorf("failed to send request: %w", err)
	}
	if err := providers.CheckHTTPError(resp, "predict"); err != nil {
		predictResp.Latency = time.Since(start)
		return predictResp, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	predictResp.Latency = time.Since(start)
	if err != nil {
		return predictResp, fmt.Errorf("failed to read response body: %w", err)
	}
	predictResp.Raw = respBody
	logger.APIResponse(providerName, resp.StatusCode, string(respBody), nil)

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return predictResp, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if openAIResp.Error != nil {
		return predictResp, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return predictResp, fmt.Errorf("no choices in response")
	}

	cost := p.CalculateCost(&openAIResp.Usage)
	predictResp.Content = openAIResp.Choices[0].Message.Content
	predictResp.CostInfo = &cost
	return predictResp, nil
}

// PredictStream sends a streaming completion request. The returned channel
// yields one chunk per content delta and is closed after the final chunk,
// which carries a FinishReason or an Error.
func (p *Provider) PredictStream(ctx context.Context, req providers.PredictionRequest) (<-chan providers.StreamChunk, error) {
	openAIReq, err := p.buildRequest(&req, true)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare messages: %w", err)
	}

	httpReq, err := p.newHTTPRequest(ctx, openAIReq)
	if err != nil {
		return nil, err
	}

	//nolint:bodyclose // body is closed in streamResponse goroutine
	resp, err := p.GetHTTPClient().Do(httpReq)
	if err != nil {
		logger.APIResponse(providerName, 0, "", err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if err := providers.CheckHTTPError(resp, "stream"); err != nil {
		return nil, err
	}

	outChan := make(chan providers.StreamChunk)
	go p.streamResponse(ctx, resp.Body, outChan)
	return outChan, nil
}

// streamResponse reads the SSE stream and forwards chunks.
func (p *Provider) streamResponse(ctx context.Context, body io.ReadCloser, outChan chan<- providers.StreamChunk) {
	defer close(outChan)
	defer body.Close()

	send := func(chunk providers.StreamChunk) bool {
		select {
		case outChan <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := providers.NewSSEScanner(body)
	accumulated := ""
	totalTokens := 0
	var finishReason *string
	var usage *openAIUsage

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		data := scanner.Data()
		if data == "[DONE]" {
			if finishReason == nil {
				finishReason = providers.StringPtr(providers.FinishReasonStop)
			}
			send(p.finalChunk(accumulated, totalTokens, finishReason, usage))
			return
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // Skip malformed chunks
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			accumulated += choice.Delta.Content
			totalTokens++
			if !send(providers.StreamChunk{
				Content:     accumulated,
				Delta:       choice.Delta.Content,
				TokenCount:  totalTokens,
				DeltaTokens: 1,
			}) {
				break
			}
		}
		if choice.FinishReason != nil {
			// Usage arrives in a trailing chunk when include_usage is set;
			// keep reading until [DONE].
			finishReason = choice.FinishReason
		}
	}

	if err := ctx.Err(); err != nil {
		// The consumer may have gone away; do not block on the send.
		select {
		case outChan <- providers.StreamChunk{
			Content:      accumulated,
			Error:        err,
			FinishReason: providers.StringPtr(providers.FinishReasonCancelled),
		}:
		default:
		}
		return
	}
	if err := scanner.Err(); err != nil {
		send(providers.StreamChunk{
			Content:      accumulated,
			Error:        err,
			FinishReason: providers.StringPtr(providers.FinishReasonError),
		})
		return
	}
	if finishReason != nil {
		send(p.finalChunk(accumulated, totalTokens, finishReason, usage))
		return
	}
	send(providers.StreamChunk{
		Content:      accumulated,
		Error:        io.ErrUnexpectedEOF,
		FinishReason: providers.StringPtr(providers.FinishReasonError),
	})
}

func (p *Provider) finalChunk(accumulated string, tokens int, finishReason *string, usage *openAIUsage) providers.StreamChunk {
	chunk := providers.StreamChunk{
		Content:      accumulated,
		TokenCount:   tokens,
		FinishReason: finishReason,
	}
	if usage != nil {
		cost := p.CalculateCost(usage)
		chunk.CostInfo = &cost
	}
	return chunk
}

// CalculateCost converts reported usage into a cost breakdown. Cached prompt
// tokens are billed at half the input rate.
func (p *Provider) CalculateCost(usage *openAIUsage) types.CostInfo {
	inputPer1K := p.defaults.Pricing.InputCostPer1K
	outputPer1K := p.defaults.Pricing.OutputCostPer1K
	if inputPer1K == 0 || outputPer1K == 0 {
		inputPer1K, outputPer1K = defaultInputCostPer1K, defaultOutputCostPer1K
	}

	cached := 0
	if usage.PromptTokensDetails != nil {
		cached = usage.PromptTokensDetails.CachedTokens
	}
	inputCost := float64(usage.PromptTokens-cached)/1000.0*inputPer1K + float64(cached)/1000.0*inputPer1K*0.5
	outputCost := float64(usage.CompletionTokens) / 1000.0 * outputPer1K

	return types.CostInfo{
		InputTokens:   usage.PromptTokens - cached,
		OutputTokens:  usage.CompletionTokens,
		CachedTokens:  cached,
		InputCostUSD:  inputCost,
		OutputCostUSD: outputCost,
		TotalCost:     inputCost + outputCost,
	}
}

var _ providers.Provider = (*Provider)(nil)
