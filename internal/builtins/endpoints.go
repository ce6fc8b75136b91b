// ABOUTME: Upstream base URLs for the builtin joke and fact tools.
// ABOUTME: Defaults point at the public APIs; tests override them with local servers.

package builtins

import "strings"

// Endpoints holds the base URL of each upstream API.
type Endpoints struct {
	DadJokes      string
	OfficialJokes string
	ChuckNorris   string
	JokeAPI       string
	CatFacts      string
	UselessFacts  string
}

// DefaultEndpoints returns the public API base URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		DadJokes:      "https://icanhazdadjoke.com",
		OfficialJokes: "https://official-joke-api.appspot.com",
		ChuckNorris:   "https://api.chucknorris.io",
		JokeAPI:       "https://v2.jokeapi.dev",
		CatFacts:      "https://catfact.ninja",
		UselessFacts:  "https://uselessfacts.jsph.pl",
	}
}

// withDefaults fills empty fields from DefaultEndpoints and strips trailing slashes.
func (e Endpoints) withDefaults() Endpoints {
	d := DefaultEndpoints()
	pick := func(v, def string) string {
		if v == "" {
			v = def
		}
		return strings.TrimRight(v, "/")
	}
	return Endpoints{
		DadJokes:      pick(e.DadJokes, d.DadJokes),
		OfficialJokes: pick(e.OfficialJokes, d.OfficialJokes),
		ChuckNorris:   pick(e.ChuckNorris, d.ChuckNorris),
		JokeAPI:       pick(e.JokeAPI, d.JokeAPI),
		CatFacts:      pick(e.CatFacts, d.CatFacts),
		UselessFacts:  pick(e.UselessFacts, d.UselessFacts),
	}
}

func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

// intArg reads a JSON number argument. Schema validation guarantees the type.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func boolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}
