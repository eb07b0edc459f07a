package licenses

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/licensor-backend/pkg/enums"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Crockford base32: no I, L, O or U, so keys survive being read aloud.
const keyAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	keyGroups    = 4
	keyGroupSize = 5
)

// generateKey mints "<prefix>-<PLAN>-XXXXX-XXXXX-XXXXX-XXXXX": 20 symbols of
// a 32-symbol alphabet, 100 bits of randomness.
func generateKey(prefix string, plan enums.PlanType) (string, error) {
	raw, err := gonanoid.Generate(keyAlphabet, keyGroups*keyGroupSize)
	if err != nil {
		return "", fmt.Errorf("generate license key: %w", err)
	}
	groups := make([]string, 0, keyGroups+2)
	if prefix = strings.ToUpper(strings.TrimSpace(prefix)); prefix != "" {
		groups = append(groups, prefix)
	}
	groups = append(groups, plan.KeyPrefix())
	for i := 0; i < keyGroups; i++ {
		groups = append(groups, raw[i*keyGroupSize:(i+1)*keyGroupSize])
	}
	return strings.Join(groups, "-"), nil
}

// NormalizeKey canonicalises user-supplied keys before lookup.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}
