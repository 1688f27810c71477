package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Sentinels substituted into the digest input for absent fields. The chain
// is keyless by design: independent auditors must be able to recompute
// every link without a shared secret, so this is tamper evidence, not a
// MAC.
const (
	genesisSentinel = "GENESIS"
	nullTarget      = "null"
)

// hashTimeLayout is ISO-8601 with millisecond precision and a fixed UTC
// offset. Persisted hashes depend on this exact serialization; it must
// never change.
const hashTimeLayout = "2006-01-02T15:04:05.000Z"

// ComputeEntryHash returns the hex SHA-256 link hash for a single entry.
// The input is the pipe-delimited string
//
//	actorName|action|target|timestamp|previousHash
//
// with "null" for an absent target and "GENESIS" for the first entry's
// absent previous hash. Pure function: identical inputs always produce
// identical output, no clock reads, cannot fail.
func ComputeEntryHash(actorName string, action Action, target *string, ts time.Time, previousHash *string) string {
	var b strings.Builder
	b.WriteString(actorName)
	b.WriteByte('|')
	b.WriteString(string(action))
	b.WriteByte('|')
	if target != nil && *target != "" {
		b.WriteString(*target)
	} else {
		b.WriteString(nullTarget)
	}
	b.WriteByte('|')
	b.WriteString(ts.UTC().Format(hashTimeLayout))
	b.WriteByte('|')
	if previousHash != nil && *previousHash != "" {
		b.WriteString(*previousHash)
	} else {
		b.WriteString(genesisSentinel)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// sameHash compares two link hashes, treating nil and the empty string as
// the same absent value.
func sameHash(a, b *string) bool {
	av, bv := "", ""
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}
