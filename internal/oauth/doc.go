// Package oauth implements the client side of the Authorization Code
// with PKCE flow used to authenticate accounts on the display.
//
// The pieces, leaf-first:
//
//   - PKCE/state generation (pkce.go): crypto/rand only; a failed random
//     source fails the attempt rather than degrading.
//   - Loopback sessions (loopback.go): one ephemeral 127.0.0.1 listener
//     per in-flight attempt, capturing exactly one redirect and yielding
//     it to exactly one waiter before tearing the socket down.
//   - Token exchange (exchange.go): code-for-token and refresh grants
//     against the provider token endpoint, with verbatim error bodies
//     and merge semantics for refresh responses.
//   - Identity lookup (identity.go): userinfo endpoint with an ID-token
//     claims fallback.
//
// Orchestration of these pieces into accounts lives in internal/account;
// nothing in this package persists secrets or touches the UI surface.
package oauth
