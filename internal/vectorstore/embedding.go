package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"fastskill/internal/regerr"
)

// EmbeddingClient generates a vector embedding for a piece of text.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbeddingClient calls an OpenAI-compatible /embeddings endpoint.
// The API key is read from OPENAI_API_KEY by default, matching the env var
// every OpenAI-compatible SDK looks for.
type OpenAIEmbeddingClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKeyEnv  string
}

// NewOpenAIEmbeddingClient builds a client against baseURL (trailing slash
// optional) using model, reading its API key from apiKeyEnv (defaults to
// OPENAI_API_KEY).
func NewOpenAIEmbeddingClient(baseURL, model, apiKeyEnv string) *OpenAIEmbeddingClient {
	if apiKeyEnv == "" {
		apiKeyEnv = "OPENAI_API_KEY"
	}
	return &OpenAIEmbeddingClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		apiKeyEnv:  apiKeyEnv,
	}
}

type openAIEmbeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed calls POST {baseURL}/embeddings and returns the first embedding.
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	apiKey := os.Getenv(c.apiKeyEnv)
	if apiKey == "" {
		return nil, regerr.New(regerr.KindAuthentication, "vectorstore.Embed",
			fmt.Errorf("%s is not set", c.apiKeyEnv))
	}

	body, err := json.Marshal(openAIEmbeddingRequest{Input: text, Model: c.model})
	if err != nil {
		return nil, regerr.New(regerr.KindValidation, "vectorstore.Embed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, regerr.New(regerr.KindNetwork, "vectorstore.Embed", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, regerr.New(regerr.KindNetwork, "vectorstore.Embed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, regerr.New(regerr.KindNetwork, "vectorstore.Embed", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, regerr.New(regerr.KindNetwork, "vectorstore.Embed",
			fmt.Errorf("embeddings API error %d: %s", resp.StatusCode, string(respBody)))
	}

	var parsed openAIEmbeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, regerr.New(regerr.KindValidation, "vectorstore.Embed", err)
	}
	if len(parsed.Data) == 0 {
		return nil, regerr.New(regerr.KindValidation, "vectorstore.Embed",
			fmt.Errorf("no embeddings returned"))
	}
	return parsed.Data[0].Embedding, nil
}
