package entity

import (
	"gorm.io/datatypes"
)

// ChunkContent is the structured payload stored, serialized as JSON, in the
// knowledge table's content column. The hybrid search keyword filter matches
// against Title, Heading, Context and Chunk.
type ChunkContent struct {
	Title         string   `json:"title,omitempty"`
	Heading       string   `json:"heading,omitempty"`
	Context       string   `json:"context,omitempty"`
	Chunk         string   `json:"chunk,omitempty"`
	Topics        []string `json:"topics,omitempty"`
	Importance    int      `json:"importance,omitempty"`
	ReferenceFile string   `json:"referenceFile,omitempty"`
	ChunkIndex    int      `json:"chunkIndex"`
	TotalChunks   int      `json:"totalChunks"`
}

// KnowledgeChunk is one embedded fragment of a source document.
//
// ID is derived as "{documentID}-{zero-padded chunk index}". Embedding is a
// packed little-endian float32 blob whose length must equal the configured
// embedding dimensionality times four for every row.
type KnowledgeChunk struct {
	ID          string                              `gorm:"primaryKey"`
	AgentID     string                              `gorm:"index:knowledge_agent_key;index:knowledge_agent_main_key;index:knowledge_created_key"`
	Content     datatypes.JSONType[ChunkContent]    `gorm:"type:text"`
	Embedding   []byte                              `gorm:"type:blob"`
	CreatedAt   int64                               `gorm:"index:knowledge_created_key"`
	IsMain      bool                                `gorm:"index:knowledge_agent_main_key"`
	OriginalID  string                              `gorm:"index:knowledge_original_key"`
	ChunkIndex  int
	TotalChunks int
	IsShared    bool `gorm:"index:knowledge_shared_key"`
}

func (KnowledgeChunk) TableName() string {
	return "knowledge"
}
