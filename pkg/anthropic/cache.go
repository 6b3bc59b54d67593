package anthropic

// BuildCachedSystemBlocks constructs a system block with an ephemeral cache
// breakpoint. The judge and extraction prompts are identical across records,
// so every call after the first reads them from the prompt cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{},
		},
	}
}
