package security

import "testing"

func TestVerifySecret(t *testing.T) {
	hash, err := HashSecret("s3cret")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}

	tests := []struct {
		name   string
		hash   string
		secret string
		want   bool
	}{
		{"match", hash, "s3cret", true},
		{"mismatch", hash, "s3cret!", false},
		{"empty secret", hash, "", false},
		{"empty hash", "", "s3cret", false},
		{"not a bcrypt hash", "plain", "plain", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySecret(tt.hash, tt.secret); got != tt.want {
				t.Errorf("VerifySecret() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHashToken(t *testing.T) {
	a := HashToken("token-a")
	if len(a) != 64 {
		t.Errorf("len(HashToken()) = %d, want 64", len(a))
	}
	if a == HashToken("token-b") {
		t.Error("different tokens share a digest")
	}
}
