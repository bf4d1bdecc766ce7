package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptStartKey returns the cache key for an attempt's start timestamp.
func (r *CacheKeyStruct) AttemptStartKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:started_at", attemptID)
}

// AttemptAnswersKey returns the cache key for an attempt's autosaved answers.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptChatChannel returns the Redis PubSub channel for an attempt's chat stream.
func (r *CacheKeyStruct) AttemptChatChannel(attemptID string) string {
	return fmt.Sprintf("attempt:%s:chat", attemptID)
}

var CacheKey = NewCacheKeyStruct()
