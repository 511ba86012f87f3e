package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. Every section of a label run shares the same system prompt,
// so later sections read it from the prompt cache.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: ttl},
		},
	}
}
