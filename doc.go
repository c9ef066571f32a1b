// Package oauth is an embeddable OAuth 2.0 / OpenID Connect authorization
// server.
//
// The Handler adapts the protocol engine in package server to HTTP: the
// authorization, token, introspection, revocation and device endpoints, the
// login, consent and device verification pages, logout, userinfo, discovery
// and the JWKS document. Hosts supply the store of clients, users and
// grants, a token issuer and a session store, and may hook into login and
// logout or replace the rendered pages.
//
// Example usage:
//
//	store := memory.New()
//	issuer, err := tokens.NewIssuer(tokens.KeyConfig{}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	handler, err := oauth.New(store, issuer, nil, &oauth.Config{
//	    Server:    server.Config{Issuer: "https://auth.example.com"},
//	    RateLimit: oauth.RateLimitConfig{Rate: 10, Burst: 20},
//	    Logger:    logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer handler.Close()
//
//	http.ListenAndServe(":8080", handler.Router())
package oauth
