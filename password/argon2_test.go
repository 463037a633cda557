package password

import (
	"errors"
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}

	encoded, err := hasher.Hash("secret123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected hash format: %q", encoded)
	}

	ok, err := hasher.Verify("secret123", encoded)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("correct password rejected")
	}

	ok, err = hasher.Verify("wrong-password", encoded)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("wrong password accepted")
	}
}

func TestHashEmptyPassword(t *testing.T) {
	hasher, _ := NewArgon2(testConfig())

	if _, err := hasher.Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestHashesAreSalted(t *testing.T) {
	hasher, _ := NewArgon2(testConfig())

	first, err := hasher.Hash("secret123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := hasher.Hash("secret123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestVerifyRejectsMangledHash(t *testing.T) {
	hasher, _ := NewArgon2(testConfig())

	for _, encoded := range []string{
		"",
		"not-a-phc-string",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	} {
		if _, err := hasher.Verify("secret123", encoded); err == nil {
			t.Fatalf("mangled hash %q accepted", encoded)
		}
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak, _ := NewArgon2(testConfig())
	encoded, err := weak.Hash("secret123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	strongCfg := testConfig()
	strongCfg.Memory = 64 * 1024
	strong, _ := NewArgon2(strongCfg)

	needs, err := strong.NeedsUpgrade(encoded)
	if err != nil {
		t.Fatalf("needs upgrade: %v", err)
	}
	if !needs {
		t.Fatal("weaker hash not flagged for upgrade")
	}

	needs, err = weak.NeedsUpgrade(encoded)
	if err != nil {
		t.Fatalf("needs upgrade: %v", err)
	}
	if needs {
		t.Fatal("current hash flagged for upgrade")
	}

	// Upgraded parameters must not break verification of the old hash.
	ok, err := strong.Verify("secret123", encoded)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("old hash no longer verifies after parameter upgrade")
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"memory", func(c *Config) { c.Memory = 1024 }},
		{"time", func(c *Config) { c.Time = 0 }},
		{"parallelism", func(c *Config) { c.Parallelism = 0 }},
		{"salt", func(c *Config) { c.SaltLength = 8 }},
		{"key", func(c *Config) { c.KeyLength = 8 }},
	}

	for _, tc := range cases {
		cfg := testConfig()
		tc.mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("%s: weak config accepted", tc.name)
		}
	}
}
