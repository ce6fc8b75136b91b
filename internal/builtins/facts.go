// ABOUTME: Facts pack: random cat facts and random useless facts.
// ABOUTME: Each tool makes one upstream GET and returns the fact as text content.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/2389/quip-gateway/internal/packs"
)

// FactsPack creates the facts pack.
func FactsPack(client *Client, endpoints Endpoints) *packs.BuiltinPack {
	f := &factsHandlers{client: client, endpoints: endpoints.withDefaults()}
	return &packs.BuiltinPack{
		ID: "facts",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:        "get_cat_fact",
					Description: "Get a random cat fact",
					InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
				},
				Handler: f.CatFact,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:        "get_random_fact",
					Description: "Get a random useless fact",
					InputSchema: json.RawMessage(`{
						"type": "object",
						"properties": {
							"language": {"type": "string", "enum": ["en", "de"], "description": "Fact language (default en)"}
						}
					}`),
				},
				Handler: f.RandomFact,
			},
		},
	}
}

type factsHandlers struct {
	client    *Client
	endpoints Endpoints
}

func (f *factsHandlers) CatFact(ctx context.Context, _ map[string]any) (*packs.Result, error) {
	var fact struct {
		Fact string `json:"fact"`
	}
	if err := f.client.getJSON(ctx, f.endpoints.CatFacts+"/fact", &fact); err != nil {
		return nil, err
	}
	if fact.Fact == "" {
		return nil, errors.New("upstream returned an empty fact")
	}
	return packs.TextResult(fact.Fact), nil
}

func (f *factsHandlers) RandomFact(ctx context.Context, args map[string]any) (*packs.Result, error) {
	q := url.Values{}
	q.Set("language", stringArg(args, "language", "en"))

	var fact struct {
		Text string `json:"text"`
	}
	if err := f.client.getJSON(ctx, f.endpoints.UselessFacts+"/api/v2/facts/random?"+q.Encode(), &fact); err != nil {
		return nil, err
	}
	if fact.Text == "" {
		return nil, errors.New("upstream returned an empty fact")
	}
	return packs.TextResult(fact.Text), nil
}
