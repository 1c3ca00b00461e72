package rank

import (
	"context"
	"errors"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/rotisserie/eris"
)

var errCountMismatch = errors.New("rank: embedding count mismatch")

// Embeddings is one embedding call's output.
type Embeddings struct {
	Vectors [][]float64
	Tokens  float64
}

// Embedder turns texts into vectors, one per text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (Embeddings, error)
}

// CohereEmbedder embeds through the Cohere v2 embed endpoint.
type CohereEmbedder struct {
	client *cohereclient.Client
	model  string
}

// NewCohereEmbedder creates a Cohere-backed Embedder.
func NewCohereEmbedder(apiKey, model string) *CohereEmbedder {
	if model == "" {
		model = "embed-multilingual-v3.0"
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
	)
	return &CohereEmbedder{client: client, model: model}
}

// Embed implements Embedder.
func (c *CohereEmbedder) Embed(ctx context.Context, texts []string) (Embeddings, error) {
	if len(texts) == 0 {
		return Embeddings{}, nil
	}

	resp, err := c.client.V2.Embed(ctx, &cohere.V2EmbedRequest{
		Texts:          texts,
		Model:          c.model,
		InputType:      cohere.EmbedInputTypeSearchDocument,
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return Embeddings{}, eris.Wrap(err, "cohere: embed")
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return Embeddings{}, eris.New("cohere: embed returned no float embeddings")
	}
	if len(resp.Embeddings.Float) != len(texts) {
		return Embeddings{}, errCountMismatch
	}

	out := Embeddings{Vectors: resp.Embeddings.Float}
	if resp.Meta != nil && resp.Meta.BilledUnits != nil && resp.Meta.BilledUnits.InputTokens != nil {
		out.Tokens = *resp.Meta.BilledUnits.InputTokens
	}
	return out, nil
}
