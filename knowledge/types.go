package knowledge

import (
	"github.com/lorelabs/loreengine/entity"
)

type (
	// DocumentMeta carries everything about a source document except its
	// chunk texts. ID becomes the prefix of every chunk id.
	DocumentMeta struct {
		ID            string   `json:"id"`
		AgentID       string   `json:"agentId,omitempty"`
		Title         string   `json:"title,omitempty"`
		Heading       string   `json:"heading,omitempty"`
		Context       string   `json:"context,omitempty"`
		Topics        []string `json:"topics,omitempty"`
		Importance    int      `json:"importance,omitempty"`
		ReferenceFile string   `json:"referenceFile,omitempty"`
		IsMain        bool     `json:"isMain,omitempty"`
		IsShared      bool     `json:"isShared,omitempty"`
	}

	// Chunk is the read-side view of one stored knowledge chunk.
	Chunk struct {
		ID          string              `json:"id"`
		AgentID     string              `json:"agentId,omitempty"`
		Content     entity.ChunkContent `json:"content"`
		Embedding   []float32           `json:"embedding,omitempty"`
		CreatedAt   int64               `json:"createdAt"`
		IsMain      bool                `json:"isMain"`
		OriginalID  string              `json:"originalId,omitempty"`
		ChunkIndex  int                 `json:"chunkIndex"`
		TotalChunks int                 `json:"totalChunks"`
		IsShared    bool                `json:"isShared"`
	}

	// SearchResult pairs a chunk with its L2 distance to the query
	// embedding. Smaller scores are more similar.
	SearchResult struct {
		Chunk `json:",inline"`
		Score float64 `json:"score"`
	}
)
