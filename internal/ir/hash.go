package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with old hashes.
const (
	DomainMachineSpec = "mstate/machine-spec/v1"
	DomainTrace       = "mstate/trace/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SpecHash computes the content hash of a compiled machine definition.
// Two definitions with the same states, actions, and transitions in the
// same order hash identically.
func SpecHash(spec MachineSpec) (string, error) {
	canonical, err := MarshalCanonical(spec.ToIR())
	if err != nil {
		return "", fmt.Errorf("SpecHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMachineSpec, canonical), nil
}

// TraceHash computes the content hash of a trace. AtMS is excluded so
// that traces recorded on different clocks compare equal when the engine
// did the same work in the same order.
func TraceHash(events []TraceEvent) (string, error) {
	arr := make(IRArray, len(events))
	for i, ev := range events {
		arr[i] = IRObject{
			"seq":     IRInt(ev.Seq),
			"kind":    IRString(ev.Kind),
			"state":   IRInt(ev.State),
			"other":   IRInt(ev.Other),
			"trigger": IRInt(ev.Trigger),
		}
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("TraceHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTrace, canonical), nil
}
