// Package auth provides optional bearer-token authentication for the gateway's
// HTTP surface.
//
// Tokens are HS256 JWTs whose "sub" claim names the caller. When a secret is
// configured, Middleware guards the MCP endpoint and the /api routes; requests
// without a valid token get 401 before any JSON-RPC processing happens, so
// authentication never changes protocol semantics.
//
//	verifier, err := auth.NewJWTVerifier([]byte(secret))
//	token, err := verifier.Generate("ci-bot", 24*time.Hour)
//	mux.Handle("/mcp", auth.Middleware(verifier, logger)(handler))
//
// Handlers read the authenticated subject with SubjectFromContext.
package auth
