package framework

import (
	"math"
)

// messageOverheadTokens approximates the per-message framing cost of the
// chat wire format.
const messageOverheadTokens = 4

// EstimateTextTokens performs a cheap heuristic conversion from characters
// to tokens. Monotonic in input length so truncation stays deterministic.
func EstimateTextTokens(text string) int {
	if text == "" {
		return 0
	}
	return maxInt(1, int(math.Ceil(float64(len(text))/4.0)))
}

// EstimateMessageTokens prices one message including framing overhead.
func EstimateMessageTokens(msg Message) int {
	return messageOverheadTokens + EstimateTextTokens(msg.Content)
}

// EstimateMessagesTokens prices a rendered sequence.
func EstimateMessagesTokens(msgs []Message) int {
	total := 0
	for _, msg := range msgs {
		total += EstimateMessageTokens(msg)
	}
	return total
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
