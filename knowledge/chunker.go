package knowledge

import (
	"github.com/lorelabs/loreengine/errors"
	"github.com/pkoukk/tiktoken-go"
)

// Chunker splits raw text into token-bounded segments. Splitting happens at
// the token level, never inside a token, and segments concatenate back to
// the original token stream.
type Chunker struct {
	encoding *tiktoken.Tiktoken
}

const encodingName = "cl100k_base"

func NewChunker() (*Chunker, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s encoding", encodingName)
	}

	return &Chunker{encoding: encoding}, nil
}

// Chunk slices text into contiguous windows of at most maxTokens tokens.
// The last window may be shorter. Empty text yields no chunks.
func (c *Chunker) Chunk(text string, maxTokens int) ([]string, error) {
	if maxTokens <= 0 {
		return nil, errors.Errorf("maxTokens must be positive, got %d", maxTokens)
	}

	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil, nil
	}

	chunks := make([]string, 0, (len(tokens)+maxTokens-1)/maxTokens)
	for start := 0; start < len(tokens); start += maxTokens {
		end := min(start+maxTokens, len(tokens))
		chunks = append(chunks, c.encoding.Decode(tokens[start:end]))
	}

	return chunks, nil
}

func (c *Chunker) CountTokens(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}
