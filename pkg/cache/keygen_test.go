package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKey_Deterministic(t *testing.T) {
	params := KeyParams{
		Category:    "review",
		Model:       "llama-3.3-70b",
		Messages:    []byte(`[{"role":"user","content":"hi"}]`),
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	k1 := GenerateKey("review", params)
	k2 := GenerateKey("review", params)
	assert.Equal(t, k1, k2)
}

func TestGenerateKey_ExtraOrderIndependent(t *testing.T) {
	base := KeyParams{
		Category:    "generation",
		Model:       "m",
		Temperature: 0.2,
		MaxTokens:   100,
	}

	a := base
	a.Extra = map[string]string{"top_p": "0.9", "seed": "42", "user": "u1"}
	b := base
	b.Extra = map[string]string{"user": "u1", "top_p": "0.9", "seed": "42"}

	// Maps iterate in random order; the key must not depend on it.
	for i := 0; i < 50; i++ {
		assert.Equal(t, GenerateKey("gen", a), GenerateKey("gen", b))
	}
}

func TestGenerateKey_DifferingArgsDiffer(t *testing.T) {
	base := KeyParams{
		Category:    "review",
		Model:       "m",
		Messages:    []byte(`[]`),
		Temperature: 0.7,
		MaxTokens:   256,
	}

	seen := map[string]string{}
	record := func(name string, p KeyParams) {
		key := GenerateKey("p", p)
		for other, otherKey := range seen {
			assert.NotEqual(t, otherKey, key, "%s and %s collided", other, name)
		}
		seen[name] = key
	}

	record("base", base)

	p := base
	p.Model = "m2"
	record("model", p)

	p = base
	p.Temperature = 0.8
	record("temperature", p)

	p = base
	p.MaxTokens = 512
	record("max_tokens", p)

	p = base
	p.Messages = []byte(`[{"role":"user","content":"x"}]`)
	record("messages", p)

	p = base
	p.Category = "documentation"
	record("category", p)

	p = base
	p.Extra = map[string]string{"seed": "1"}
	record("extra", p)
}

func TestGenerateKey_PrefixNamespacing(t *testing.T) {
	params := KeyParams{Category: "review", Model: "m"}
	assert.NotEqual(t, GenerateKey("a", params), GenerateKey("b", params))

	bare := GenerateKey("", params)
	assert.Len(t, bare, 64) // sha256 hex, no prefix
}
