// Package builtins provides the tool packs the gateway serves.
//
// # Tool Packs
//
// Jokes Pack (jokes):
//
//   - get_dad_joke: a random dad joke (icanhazdadjoke)
//   - search_dad_jokes: dad jokes matching a search term
//   - get_programming_joke: a programming joke as setup and punchline
//   - get_chuck_norris_joke: a Chuck Norris fact, optionally from a category
//   - get_joke: a joke from a required JokeAPI category
//
// Facts Pack (facts):
//
//   - get_cat_fact: a random cat fact
//   - get_random_fact: a random useless fact in English or German
//
// # Upstreams
//
// Every tool calls a public HTTP API through Client, which retries transient
// failures with hashicorp/go-retryablehttp. Base URLs come from Endpoints so
// tests and private mirrors can point elsewhere.
//
// # Usage
//
//	client := builtins.NewClient(builtins.ClientConfig{Timeout: 10 * time.Second})
//	registry.RegisterPack(builtins.JokesPack(client, builtins.DefaultEndpoints()))
//	registry.RegisterPack(builtins.FactsPack(client, builtins.DefaultEndpoints()))
package builtins
