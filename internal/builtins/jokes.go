// ABOUTME: Jokes pack: dad jokes, programming jokes, Chuck Norris facts and JokeAPI jokes.
// ABOUTME: Each tool makes one upstream GET and returns the joke as text content.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/2389/quip-gateway/internal/packs"
)

// JokeCategories are the categories JokeAPI accepts.
var JokeCategories = []string{"Any", "Programming", "Misc", "Dark", "Pun", "Spooky", "Christmas"}

// JokesPack creates the jokes pack.
func JokesPack(client *Client, endpoints Endpoints) *packs.BuiltinPack {
	j := &jokesHandlers{client: client, endpoints: endpoints.withDefaults()}
	return &packs.BuiltinPack{
		ID: "jokes",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:        "get_dad_joke",
					Description: "Get a random dad joke",
					InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
				},
				Handler: j.DadJoke,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:        "search_dad_jokes",
					Description: "Search dad jokes by term",
					InputSchema: json.RawMessage(`{
						"type": "object",
						"properties": {
							"term": {"type": "string", "minLength": 1, "description": "Word or phrase to search for"},
							"limit": {"type": "integer", "minimum": 1, "maximum": 30, "description": "Maximum jokes to return (default 5)"}
						},
						"required": ["term"]
					}`),
				},
				Handler: j.SearchDadJokes,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:        "get_programming_joke",
					Description: "Get a random programming joke",
					InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
				},
				Handler: j.ProgrammingJoke,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:        "get_chuck_norris_joke",
					Description: "Get a random Chuck Norris joke, optionally from a category",
					InputSchema: json.RawMessage(`{
						"type": "object",
						"properties": {
							"category": {"type": "string", "description": "Category such as dev, food or sport"}
						}
					}`),
				},
				Handler: j.ChuckNorrisJoke,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:        "get_joke",
					Description: "Get a joke from JokeAPI in the given category",
					InputSchema: json.RawMessage(`{
						"type": "object",
						"properties": {
							"category": {"type": "string", "enum": ["Any", "Programming", "Misc", "Dark", "Pun", "Spooky", "Christmas"], "description": "Joke category"},
							"safe_mode": {"type": "boolean", "description": "Exclude offensive jokes (default true)"}
						},
						"required": ["category"]
					}`),
				},
				Handler: j.Joke,
			},
		},
	}
}

type jokesHandlers struct {
	client    *Client
	endpoints Endpoints
}

type dadJoke struct {
	ID   string `json:"id"`
	Joke string `json:"joke"`
}

// DadJoke returns one random dad joke.
func (j *jokesHandlers) DadJoke(ctx context.Context, _ map[string]any) (*packs.Result, error) {
	var joke dadJoke
	if err := j.client.getJSON(ctx, j.endpoints.DadJokes+"/", &joke); err != nil {
		return nil, err
	}
	if joke.Joke == "" {
		return nil, errors.New("upstream returned an empty joke")
	}
	return packs.TextResult(joke.Joke), nil
}

// SearchDadJokes returns one text block per matching joke.
func (j *jokesHandlers) SearchDadJokes(ctx context.Context, args map[string]any) (*packs.Result, error) {
	term := stringArg(args, "term", "")
	limit := intArg(args, "limit", 5)

	q := url.Values{}
	q.Set("term", term)
	q.Set("limit", strconv.Itoa(limit))

	var page struct {
		Results    []dadJoke `json:"results"`
		TotalJokes int       `json:"total_jokes"`
	}
	if err := j.client.getJSON(ctx, j.endpoints.DadJokes+"/search?"+q.Encode(), &page); err != nil {
		return nil, err
	}

	if len(page.Results) == 0 {
		return packs.TextResult(fmt.Sprintf("No dad jokes found for %q.", term)), nil
	}

	texts := make([]string, 0, len(page.Results))
	for _, r := range page.Results {
		texts = append(texts, r.Joke)
		if len(texts) == limit {
			break
		}
	}
	return packs.TextResult(texts...), nil
}

// ProgrammingJoke returns the setup and punchline as two blocks.
func (j *jokesHandlers) ProgrammingJoke(ctx context.Context, _ map[string]any) (*packs.Result, error) {
	var jokes []struct {
		Setup     string `json:"setup"`
		Punchline string `json:"punchline"`
	}
	if err := j.client.getJSON(ctx, j.endpoints.OfficialJokes+"/jokes/programming/random", &jokes); err != nil {
		return nil, err
	}
	if len(jokes) == 0 {
		return nil, errors.New("upstream returned no jokes")
	}
	return packs.TextResult(jokes[0].Setup, jokes[0].Punchline), nil
}

// ChuckNorrisJoke returns a random Chuck Norris joke.
func (j *jokesHandlers) ChuckNorrisJoke(ctx context.Context, args map[string]any) (*packs.Result, error) {
	u := j.endpoints.ChuckNorris + "/jokes/random"
	if category := stringArg(args, "category", ""); category != "" {
		u += "?category=" + url.QueryEscape(strings.ToLower(category))
	}

	var joke struct {
		Value string `json:"value"`
	}
	if err := j.client.getJSON(ctx, u, &joke); err != nil {
		return nil, err
	}
	if joke.Value == "" {
		return nil, errors.New("upstream returned an empty joke")
	}
	return packs.TextResult(joke.Value), nil
}

// Joke returns a JokeAPI joke. Two-part jokes produce two blocks.
func (j *jokesHandlers) Joke(ctx context.Context, args map[string]any) (*packs.Result, error) {
	category := stringArg(args, "category", "Any")
	u := j.endpoints.JokeAPI + "/joke/" + url.PathEscape(category)
	if boolArg(args, "safe_mode", true) {
		u += "?safe-mode"
	}

	var joke struct {
		Error    bool   `json:"error"`
		Message  string `json:"message"`
		Type     string `json:"type"`
		Joke     string `json:"joke"`
		Setup    string `json:"setup"`
		Delivery string `json:"delivery"`
	}
	if err := j.client.getJSON(ctx, u, &joke); err != nil {
		return nil, err
	}
	if joke.Error {
		return nil, fmt.Errorf("jokeapi: %s", joke.Message)
	}

	if joke.Type == "twopart" {
		return packs.TextResult(joke.Setup, joke.Delivery), nil
	}
	return packs.TextResult(joke.Joke), nil
}
