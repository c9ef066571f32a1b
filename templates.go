package oauth

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
)

// Pages rendered by the handler. Each is also the name of the template
// that renders it.
const (
	PageLogin              = "login"
	PageConsent            = "consent"
	PageConsentDenied      = "consent_denied"
	PageDeviceVerification = "device_verification"
)

// Device verification outcomes shown on PageDeviceVerification.
const (
	DeviceResultInvalid  = "invalid"
	DeviceResultApproved = "approved"
)

// PageData is handed to the renderer. Only the fields of the page being
// rendered are set.
type PageData struct {
	// Action is the URL the page's form posts to.
	Action string

	// Login
	Username     string
	RememberMe   bool
	InvalidLogin bool

	// Consent
	ClientID   string
	ClientName string
	Scopes     []string

	// Device verification
	UserCode     string
	DeviceResult string

	// Extra holds the values returned by the TemplateDataFunc.
	Extra map[string]any
}

// Renderer writes the HTML pages. status is the HTTP status the page must be
// answered with.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, status int, page string, data *PageData) error
}

// TemplateRenderer renders pages from an html/template set holding one
// template per page name.
type TemplateRenderer struct {
	templates *template.Template
}

// DefaultRenderer returns the built-in pages.
func DefaultRenderer() *TemplateRenderer {
	return &TemplateRenderer{templates: template.Must(template.New("pages").Parse(builtinTemplates))}
}

// ParseTemplateFS returns the built-in pages overridden by every template
// defined in the files of fsys matching patterns.
func ParseTemplateFS(fsys fs.FS, patterns ...string) (*TemplateRenderer, error) {
	base, err := template.New("pages").Parse(builtinTemplates)
	if err != nil {
		return nil, err
	}
	t, err := base.ParseFS(fsys, patterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &TemplateRenderer{templates: t}, nil
}

// Render executes the page template into a buffer before writing, so a
// failing template never produces a half-written page.
func (t *TemplateRenderer) Render(w http.ResponseWriter, _ *http.Request, status int, page string, data *PageData) error {
	var buf bytes.Buffer
	if err := t.templates.ExecuteTemplate(&buf, page, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

const builtinTemplates = `
{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.}}</title>
<style>
body { font-family: system-ui, sans-serif; background: #f4f5f7; margin: 0; }
main { max-width: 26rem; margin: 4rem auto; background: #fff; padding: 2rem; border-radius: 8px; box-shadow: 0 1px 4px rgba(0,0,0,.1); }
label { display: block; margin: 1rem 0 .25rem; }
input[type=text], input[type=password] { width: 100%; padding: .5rem; box-sizing: border-box; }
button { margin-top: 1.5rem; padding: .5rem 1.25rem; }
.error { color: #b00020; }
.ok { color: #1b5e20; }
</style>
</head>
<body><main>{{end}}

{{define "foot"}}</main></body></html>{{end}}

{{define "login"}}{{template "head" "Sign in"}}
<h1>Sign in</h1>
{{if .InvalidLogin}}<p class="error">Invalid username or password.</p>{{end}}
<form method="post" action="{{.Action}}">
<label for="username">Username</label>
<input type="text" id="username" name="username" value="{{.Username}}" autocomplete="username" required autofocus>
<label for="password">Password</label>
<input type="password" id="password" name="password" autocomplete="current-password" required>
<label><input type="checkbox" name="rememberMe" value="true"{{if .RememberMe}} checked{{end}}> Remember me</label>
<button type="submit">Sign in</button>
</form>
{{template "foot"}}{{end}}

{{define "consent"}}{{template "head" "Authorize application"}}
<h1>Authorize {{.ClientName}}</h1>
<p>{{.ClientName}} is requesting access to:</p>
<ul>{{range .Scopes}}<li>{{.}}</li>{{end}}</ul>
<form method="post" action="{{.Action}}">
<input type="hidden" name="client_id" value="{{.ClientID}}">
<button type="submit" name="action" value="approve">Allow</button>
<button type="submit" name="action" value="deny">Deny</button>
</form>
{{template "foot"}}{{end}}

{{define "consent_denied"}}{{template "head" "Access denied"}}
<h1>Access denied</h1>
<p class="error">You denied {{if .ClientName}}{{.ClientName}}{{else}}the application{{end}} access to your account.</p>
{{template "foot"}}{{end}}

{{define "device_verification"}}{{template "head" "Connect a device"}}
<h1>Connect a device</h1>
{{if eq .DeviceResult "approved"}}<p class="ok">Your device is connected. You can return to it now.</p>
{{else}}{{if eq .DeviceResult "invalid"}}<p class="error">That code is invalid or has expired.</p>{{end}}
<form method="post" action="{{.Action}}">
<label for="user_code">Enter the code shown on your device</label>
<input type="text" id="user_code" name="user_code" value="{{.UserCode}}" autocomplete="off" required autofocus>
<button type="submit">Continue</button>
</form>{{end}}
{{template "foot"}}{{end}}
`
