// Package server implements the protocol engine of the authorization server.
//
// The Server type validates authorization requests, issues and exchanges
// authorization codes, serves the four token grants (authorization_code,
// client_credentials, refresh_token and the device grant), runs the device
// authorization flow, records consent, verifies logins and answers
// introspection, revocation, userinfo and discovery requests. It is free of
// HTTP plumbing: the root oauth package adapts it to endpoints.
//
// Protocol failures are returned as *Error values carrying the RFC 6749
// error code and the HTTP status to reply with. Storage failures surface as
// server_error and are logged, never echoed to clients.
//
// Example usage:
//
//	store := memory.New()
//	issuer, err := tokens.NewIssuer(tokens.KeyConfig{}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srv, err := server.New(store, issuer, &server.Config{
//	    Issuer: "https://auth.example.com",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
