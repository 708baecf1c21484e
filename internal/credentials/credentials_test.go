package credentials

import (
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	hasher := NewHasher(4)

	hash, err := hasher.Hash("password1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "password1" {
		t.Fatal("hash must not equal the secret")
	}
	if !hasher.Verify("password1", hash) {
		t.Fatal("correct secret should verify")
	}
	if hasher.Verify("password2", hash) {
		t.Fatal("wrong secret should not verify")
	}
	if hasher.Verify("password1", "not-a-bcrypt-hash") {
		t.Fatal("malformed hash should not verify")
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	// Out-of-range costs fall back to the bcrypt default instead of failing
	// at hash time.
	hasher := NewHasher(99)
	if _, err := hasher.Hash("password1"); err != nil {
		t.Fatalf("Hash: %v", err)
	}
}

func TestGenerateToken(t *testing.T) {
	first := GenerateToken()
	second := GenerateToken()

	if len(first) != 64 {
		t.Fatalf("token length = %d, want 64", len(first))
	}
	if first == second {
		t.Fatal("two generated tokens should not collide")
	}
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := GenerateCode()
		if len(code) != 6 {
			t.Fatalf("code %q length = %d, want 6", code, len(code))
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q contains non-digit %q", code, r)
			}
		}
		if code[0] == '0' {
			t.Fatalf("code %q should not have a leading zero", code)
		}
	}
}
