package memory

// chunk is one overlapping window of entry content.
type chunk struct {
	Offset int
	Text   string
}

// chunkText splits content into windows of size characters advancing by
// size-overlap each step. The trailing remainder is appended rather than
// dropped, so no content is ever lost. 2500 characters at size 1000,
// overlap 200 yields windows at offsets 0, 800 and 1600.
func chunkText(content string, size, overlap int) []chunk {
	if content == "" {
		return nil
	}
	if size <= 0 || len(content) <= size {
		return []chunk{{Offset: 0, Text: content}}
	}
	stride := size - overlap
	if stride <= 0 {
		stride = size
	}

	chunks := make([]chunk, 0, len(content)/stride+1)
	for offset := 0; offset < len(content); offset += stride {
		end := offset + size
		if end >= len(content) {
			chunks = append(chunks, chunk{Offset: offset, Text: content[offset:]})
			break
		}
		chunks = append(chunks, chunk{Offset: offset, Text: content[offset:end]})
	}
	return chunks
}
