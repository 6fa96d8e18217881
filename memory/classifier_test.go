package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/studyflow/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		response  string
		hasConvID bool
		expected  Classification
	}{
		{
			name:      "personal fact goes universal permanent",
			message:   "My name is Alex and I prefer visual examples",
			hasConvID: true,
			expected: Classification{
				Scope:     types.MemoryScopeUniversal,
				Priority:  types.MemoryPriorityHigh,
				Retention: types.MemoryRetentionPermanent,
			},
		},
		{
			name:      "plain follow-up stays session scoped",
			message:   "Can you simplify that?",
			hasConvID: true,
			expected: Classification{
				Scope:     types.MemoryScopeSession,
				Priority:  types.MemoryPriorityMedium,
				Retention: types.MemoryRetentionLongTerm,
			},
		},
		{
			name:    "no conversation id defaults to short retention",
			message: "What is a binary tree?",
			expected: Classification{
				Scope:     types.MemoryScopeSession,
				Priority:  types.MemoryPriorityLow,
				Retention: types.MemoryRetentionShort,
			},
		},
		{
			name:      "correction in user message is critical",
			message:   "Actually, I was wrong about the base case",
			hasConvID: true,
			expected: Classification{
				Scope:     types.MemoryScopeUniversal,
				Priority:  types.MemoryPriorityCritical,
				Retention: types.MemoryRetentionPermanent,
			},
		},
		{
			name:      "correction in assistant response also counts",
			message:   "Thanks",
			response:  "My mistake, the complexity is O(n log n), not O(n).",
			hasConvID: true,
			expected: Classification{
				Scope:     types.MemoryScopeUniversal,
				Priority:  types.MemoryPriorityCritical,
				Retention: types.MemoryRetentionPermanent,
			},
		},
		{
			name:      "explicit importance marker",
			message:   "Remember this: I have an exam on Friday",
			hasConvID: false,
			expected: Classification{
				Scope:     types.MemoryScopeUniversal,
				Priority:  types.MemoryPriorityHigh,
				Retention: types.MemoryRetentionPermanent,
			},
		},
		{
			name:      "correction beats personal when both present",
			message:   "Actually, my name is Sam, I misspoke earlier",
			hasConvID: true,
			expected: Classification{
				Scope:     types.MemoryScopeUniversal,
				Priority:  types.MemoryPriorityCritical,
				Retention: types.MemoryRetentionPermanent,
			},
		},
		{
			name:      "markers are case insensitive",
			message:   "I STRUGGLE WITH calculus proofs",
			hasConvID: true,
			expected: Classification{
				Scope:     types.MemoryScopeUniversal,
				Priority:  types.MemoryPriorityHigh,
				Retention: types.MemoryRetentionPermanent,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.message, tt.response, tt.hasConvID)
			assert.Equal(t, tt.expected, got)
		})
	}
}
