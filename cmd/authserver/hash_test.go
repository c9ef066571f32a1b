package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/giantswarm/oauth-engine/security"
)

func TestHashCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		stdin   string
		secret  string
		wantErr bool
	}{
		{name: "argument", args: []string{"s3cret"}, secret: "s3cret"},
		{name: "stdin", stdin: "from-stdin\n", secret: "from-stdin"},
		{name: "stdin without newline", stdin: "no-newline", secret: "no-newline"},
		{name: "empty stdin", stdin: "", wantErr: true},
		{name: "blank line", stdin: "\n", wantErr: true},
		{name: "too many arguments", args: []string{"a", "b"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := newHashCommand()
			cmd.SetArgs(tt.args)
			cmd.SetIn(strings.NewReader(tt.stdin))
			cmd.SetOut(&out)
			cmd.SetErr(&bytes.Buffer{})

			err := cmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			hash := strings.TrimSpace(out.String())
			if !security.VerifySecret(hash, tt.secret) {
				t.Errorf("printed hash %q does not verify %q", hash, tt.secret)
			}
		})
	}
}
