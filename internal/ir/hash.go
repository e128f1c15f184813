package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainConnectome = "npu/connectome/v1"
	DomainConfig     = "npu/config/v1"
	DomainFireQueue  = "npu/fire-queue/v1"
)

// HashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashJSON hashes the JSON encoding of v under domain. Struct field order
// is fixed by the type and map keys are sorted by encoding/json, so equal
// values always hash equally.
func HashJSON(domain string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return HashWithDomain(domain, data), nil
}

// FireQueueDigest is the content hash of one burst's fired set, used to
// compare runs burst by burst without storing every record.
func FireQueueDigest(burst uint64, neurons []FiringNeuron) string {
	ids := make([]NeuronID, len(neurons))
	for i, n := range neurons {
		ids[i] = n.ID
	}
	data, _ := json.Marshal(struct {
		Burst uint64     `json:"burst"`
		IDs   []NeuronID `json:"ids"`
	}{burst, ids})
	return HashWithDomain(DomainFireQueue, data)
}
