// Package auth provides the service tokens used between the client and the
// analysis service.
//
// Tokens are HS256 JWTs signed with a shared secret (config
// service.jwt_secret). The client mints one per request with a short
// lifetime; the service side verifies it with RequireToken:
//
//	tokens := auth.NewServiceTokens([]byte(secret))
//	tok, err := tokens.Sign("insight-cli", auth.DefaultTTL)
//
//	mux.Handle("/", auth.RequireToken(tokens)(handler))
//
// A static token configured as service.token bypasses minting entirely and
// is sent verbatim.
package auth
