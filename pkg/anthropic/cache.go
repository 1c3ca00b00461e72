package anthropic

// BuildCachedSystemBlocks constructs a single system block with a cache
// breakpoint. The drafting system prompt is identical for every company in a
// batch, so workers after the first read it from the prompt cache.
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
