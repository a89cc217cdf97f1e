package anthropic

// BuildCachedSystemBlocks wraps a system prompt in a single block with a
// cache breakpoint. Every extraction of the same kind shares the prompt, so
// after the first call the prefix is read from cache. An empty ttl uses the
// API default of five minutes.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: ttl},
		},
	}
}
