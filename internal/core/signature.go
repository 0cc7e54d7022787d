package core

import "fmt"

// signatureMessagePrefix is how much of the message participates in the
// signature. Long messages frequently embed volatile detail (timings, counts)
// past this point.
const signatureMessagePrefix = 100

// Signature is a normalized key used to match issues across analysis passes.
// Two issues with the same signature are treated as the same defect when
// diffing pre-fix and post-fix results.
type Signature string

// IssueSignature computes the signature of a raw issue from its file, line,
// category, and the first 100 characters of its message.
func IssueSignature(i *Issue) Signature {
	msg := i.Message
	if len(msg) > signatureMessagePrefix {
		msg = msg[:signatureMessagePrefix]
	}
	return Signature(fmt.Sprintf("%s|%d|%s|%s", i.File, i.Line, i.Category, msg))
}

// SignatureSet builds a lookup set over the signatures of the given issues.
func SignatureSet(issues []Issue) map[Signature]bool {
	set := make(map[Signature]bool, len(issues))
	for idx := range issues {
		set[IssueSignature(&issues[idx])] = true
	}
	return set
}
