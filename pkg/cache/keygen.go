package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// KeyParams contains the semantic arguments of a completion call that
// determine its cache identity. Incidental ordering of optional
// parameters must not change the key.
type KeyParams struct {
	Category    string
	Model       string
	Messages    []byte // serialized messages
	Temperature float64
	MaxTokens   int
	Extra       map[string]string // optional caller-specific params
}

// GenerateKey builds a deterministic cache key from params: a canonical
// serialization (fixed field order, Extra keys sorted) hashed with
// SHA-256, prefixed for namespace isolation. Pure function; callers use
// it to build keys, the cache itself never does.
func GenerateKey(prefix string, params KeyParams) string {
	var sb strings.Builder

	sb.WriteString("category:" + params.Category)
	sb.WriteString("|model:" + params.Model)
	if len(params.Messages) > 0 {
		sb.WriteString("|messages:")
		sb.Write(params.Messages)
	}
	fmt.Fprintf(&sb, "|temp:%.2f", params.Temperature)
	fmt.Fprintf(&sb, "|max_tokens:%d", params.MaxTokens)

	if len(params.Extra) > 0 {
		keys := make([]string, 0, len(params.Extra))
		for k := range params.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString("|" + k + ":" + params.Extra[k])
		}
	}

	sum := sha256.Sum256([]byte(sb.String()))
	digest := hex.EncodeToString(sum[:])

	if prefix == "" {
		return digest
	}
	return prefix + ":" + digest
}
