package memory

import (
	"strings"

	"github.com/BaSui01/studyflow/types"
)

// Classification is the outcome of classifying one turn.
type Classification struct {
	Scope     types.MemoryScope
	Priority  types.MemoryPriority
	Retention types.MemoryRetention
}

// Marker groups, checked in order. Durable cross-session markers always
// win over the conversational default, even when a conversation id is
// present.
var (
	correctionMarkers = []string{
		"actually,",
		"actually ",
		"my mistake",
		"i was wrong",
		"that was incorrect",
		"that's wrong",
		"correction:",
		"i misspoke",
		"let me correct",
	}

	personalMarkers = []string{
		"my name is",
		"call me ",
		"i am a ",
		"i'm a ",
		"i prefer",
		"i like",
		"i love",
		"i hate",
		"i dislike",
		"my favorite",
		"my goal is",
		"i struggle with",
		"i work as",
		"i study",
	}

	importanceMarkers = []string{
		"remember this",
		"remember that",
		"don't forget",
		"key concept",
		"this is important",
		"important:",
		"always ",
		"never ",
	}
)

// Classify decides scope, priority, and retention for a completed turn.
// Pure function, no I/O. First match wins:
//
//  1. correction/insight language          -> universal, critical, permanent
//  2. personal fact or preference          -> universal, high, permanent
//  3. explicit importance marker           -> universal, high, permanent
//  4. conversation id present              -> session, medium, long_term
//  5. otherwise                            -> session, low, short
func Classify(userMessage, aiResponse string, hasConversationID bool) Classification {
	msg := strings.ToLower(userMessage)
	resp := strings.ToLower(aiResponse)

	if containsAny(msg, correctionMarkers) || containsAny(resp, correctionMarkers) {
		return Classification{
			Scope:     types.MemoryScopeUniversal,
			Priority:  types.MemoryPriorityCritical,
			Retention: types.MemoryRetentionPermanent,
		}
	}

	if containsAny(msg, personalMarkers) {
		return Classification{
			Scope:     types.MemoryScopeUniversal,
			Priority:  types.MemoryPriorityHigh,
			Retention: types.MemoryRetentionPermanent,
		}
	}

	if containsAny(msg, importanceMarkers) {
		return Classification{
			Scope:     types.MemoryScopeUniversal,
			Priority:  types.MemoryPriorityHigh,
			Retention: types.MemoryRetentionPermanent,
		}
	}

	if hasConversationID {
		return Classification{
			Scope:     types.MemoryScopeSession,
			Priority:  types.MemoryPriorityMedium,
			Retention: types.MemoryRetentionLongTerm,
		}
	}

	return Classification{
		Scope:     types.MemoryScopeSession,
		Priority:  types.MemoryPriorityLow,
		Retention: types.MemoryRetentionShort,
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
