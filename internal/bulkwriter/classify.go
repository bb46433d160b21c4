package bulkwriter

import "strings"

// outcome is what the writer should do after a failed batch write attempt
// (spec.md §4.7 retry policy).
type outcome int

const (
	outcomeRetry outcome = iota
	outcomeTripAndDeadLetter
	outcomeDeadLetterAfterExhaustion
)

// classify inspects a store error and decides the retry/trip/dead-letter
// outcome. The two fatal substrings are checked first since they override
// the generic retry-then-dead-letter path regardless of remaining attempts.
func classify(err error) outcome {
	if err == nil {
		return outcomeRetry
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "filegroup full") || strings.Contains(msg, "transaction log full") {
		return outcomeTripAndDeadLetter
	}
	if strings.Contains(msg, "deadlock") {
		return outcomeRetry
	}
	return outcomeDeadLetterAfterExhaustion
}
