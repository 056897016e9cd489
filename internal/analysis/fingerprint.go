package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/opensource-finance/lossim/internal/domain"
)

type fingerprintInput struct {
	Engine string              `json:"engine"`
	Params domain.ParameterSet `json:"params"`
	Seed   int64               `json:"seed"`
	Paths  int                 `json:"paths"`
}

// Fingerprint identifies a deterministic run. Equal inputs always produce
// equal results, so the fingerprint is a safe cache key.
func Fingerprint(p domain.ParameterSet, seed int64, paths int) string {
	// Marshalling a struct of numbers cannot fail.
	b, _ := json.Marshal(fingerprintInput{
		Engine: EngineVersion,
		Params: p,
		Seed:   seed,
		Paths:  paths,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
