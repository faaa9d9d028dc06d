package knowledge

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/lorelabs/loreengine/config"
	"github.com/lorelabs/loreengine/entity"
	"github.com/lorelabs/loreengine/errors"
	"github.com/lorelabs/loreengine/internal/db"
	"github.com/lorelabs/loreengine/internal/stringslices"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SqliteStore implements Store over the single owned database file, with the
// sqlite-vec extension providing the L2 distance function.
type SqliteStore struct {
	db     *gorm.DB
	conf   *config.KnowledgeConfig
	logger *slog.Logger
}

var _ Store = (*SqliteStore)(nil)

func NewSqliteStore(conf *config.KnowledgeConfig, logger *slog.Logger) (*SqliteStore, error) {
	if conf.EmbeddingDim <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "embedding dimension must be positive, got %d", conf.EmbeddingDim)
	}

	if dir := filepath.Dir(conf.SqlitePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory")
		}
	}

	gormDB, err := db.OpenDB(conf.SqlitePath)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, errors.Wrapf(err, "failed to create schema")
	}

	return &SqliteStore{
		db:     gormDB,
		conf:   conf,
		logger: logger,
	}, nil
}

// DB exposes the underlying connection so the relational stores share it.
func (s *SqliteStore) DB() *gorm.DB {
	return s.db
}

// ChunkID derives the unique chunk id from a document id and chunk index.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s-%03d", documentID, index+1)
}

// UpsertChunks implements Store.UpsertChunks.
func (s *SqliteStore) UpsertChunks(ctx context.Context, doc DocumentMeta, chunks []string, embeddings [][]float32) (string, error) {
	if len(chunks) != len(embeddings) {
		return "", errors.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}
	if doc.ID == "" {
		return "", errors.Wrapf(errors.ErrInvalidParams, "document id is required")
	}
	if len(chunks) == 0 {
		return doc.ID, nil
	}

	now := time.Now().UnixMilli()

	_, tx := db.OpenSession(ctx, s.db)
	if err := tx.Transaction(func(tx *gorm.DB) error {
		for i, chunk := range chunks {
			if len(embeddings[i]) != s.conf.EmbeddingDim {
				return errors.Errorf("embedding for chunk %d has %d dimensions, store requires %d", i, len(embeddings[i]), s.conf.EmbeddingDim)
			}

			blob, err := sqlite_vec.SerializeFloat32(embeddings[i])
			if err != nil {
				return errors.Wrapf(err, "failed to serialize embedding for chunk %d", i)
			}

			content := entity.ChunkContent{
				Title:         doc.Title,
				Heading:       doc.Heading,
				Context:       doc.Context,
				Chunk:         chunk,
				Topics:        doc.Topics,
				Importance:    doc.Importance,
				ReferenceFile: doc.ReferenceFile,
				ChunkIndex:    i,
				TotalChunks:   len(chunks),
			}

			record := entity.KnowledgeChunk{
				ID:          ChunkID(doc.ID, i),
				AgentID:     doc.AgentID,
				Content:     datatypes.NewJSONType(content),
				Embedding:   blob,
				CreatedAt:   now,
				IsMain:      doc.IsMain && i == 0,
				OriginalID:  doc.ID,
				ChunkIndex:  i,
				TotalChunks: len(chunks),
				IsShared:    doc.IsShared,
			}

			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
				return errors.Wrapf(err, "failed to upsert chunk %s", record.ID)
			}
		}
		return nil
	}); err != nil {
		return "", err
	}

	return doc.ID, nil
}

type searchRow struct {
	ID          string
	AgentID     string
	Content     string
	Embedding   []byte
	CreatedAt   int64
	IsMain      bool
	OriginalID  string
	ChunkIndex  int
	TotalChunks int
	IsShared    bool
	Dist        float64
}

// Search implements Store.Search.
//
// The keyword filter is a recall pre-filter that bounds the candidate set
// before distances are compared against the configured threshold; ranking is
// by L2 distance alone.
func (s *SqliteStore) Search(ctx context.Context, queryEmbedding []float32, queryText, agentID string, limit int) ([]SearchResult, error) {
	if len(queryEmbedding) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "query embedding is empty")
	}
	if limit <= 0 {
		limit = 10
	}

	queryBlob, err := sqlite_vec.SerializeFloat32(queryEmbedding)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to serialize query embedding")
	}

	var sql strings.Builder
	sql.WriteString(`
		WITH candidates AS (
			SELECT k.*,
				vec_distance_l2(k.embedding, ?) AS dist,
				lower(
					coalesce(json_extract(k.content, '$.title'), '') || ' ' ||
					coalesce(json_extract(k.content, '$.heading'), '') || ' ' ||
					coalesce(json_extract(k.content, '$.context'), '') || ' ' ||
					coalesce(json_extract(k.content, '$.chunk'), '')
				) AS haystack
			FROM knowledge k
			WHERE k.embedding IS NOT NULL
			  AND length(k.embedding) = ?
			  AND (k.agent_id = ? OR k.is_shared = 1)
		)
		SELECT * FROM candidates
		WHERE dist < ?`)

	args := []any{queryBlob, len(queryBlob), agentID, s.conf.SearchMaxDistance}
	for _, term := range stringslices.Terms(queryText) {
		sql.WriteString(" AND haystack LIKE ?")
		args = append(args, "%"+term+"%")
	}
	sql.WriteString(" ORDER BY dist ASC LIMIT ?")
	args = append(args, limit)

	_, tx := db.OpenSession(ctx, s.db)
	var rows []searchRow
	if err := tx.Raw(sql.String(), args...).Scan(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "hybrid search failed")
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		var content entity.ChunkContent
		if err := json.Unmarshal([]byte(row.Content), &content); err != nil {
			s.logger.Warn("skipping chunk with malformed content", "id", row.ID, "err", err)
			continue
		}

		embedding, err := deserializeFloat32(row.Embedding)
		if err != nil {
			s.logger.Warn("skipping chunk with malformed embedding", "id", row.ID, "err", err)
			continue
		}

		results = append(results, SearchResult{
			Chunk: Chunk{
				ID:          row.ID,
				AgentID:     row.AgentID,
				Content:     content,
				Embedding:   embedding,
				CreatedAt:   row.CreatedAt,
				IsMain:      row.IsMain,
				OriginalID:  row.OriginalID,
				ChunkIndex:  row.ChunkIndex,
				TotalChunks: row.TotalChunks,
				IsShared:    row.IsShared,
			},
			Score: row.Dist,
		})
	}

	return results, nil
}

// Clear implements Store.Clear.
func (s *SqliteStore) Clear(ctx context.Context) error {
	_, tx := db.OpenSession(ctx, s.db)
	return errors.WithStack(tx.Exec("DELETE FROM knowledge").Error)
}

// Backup copies the live database file to a timestamped file in the backups
// directory and returns its path.
func (s *SqliteStore) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.conf.BackupsDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create backups directory")
	}

	// Flush WAL pages into the main file so the copy is complete.
	_, tx := db.OpenSession(ctx, s.db)
	if err := tx.Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error; err != nil {
		return "", errors.Wrapf(err, "failed to checkpoint database")
	}

	name := strings.TrimSuffix(filepath.Base(s.conf.SqlitePath), filepath.Ext(s.conf.SqlitePath))
	timestamp := time.Now().Format("20060102150405")
	backupPath := filepath.Join(s.conf.BackupsDir, fmt.Sprintf("%s-%s.sqlite", name, timestamp))

	if err := copyFile(s.conf.SqlitePath, backupPath); err != nil {
		return "", errors.Wrapf(err, "backup failed")
	}

	s.logger.Info("database backed up", "path", backupPath)
	return backupPath, nil
}

// Restore closes the live connection, overwrites the primary file with the
// backup, and reopens. Callers must not issue queries concurrently.
func (s *SqliteStore) Restore(ctx context.Context, backupPath string) error {
	if _, err := os.Stat(backupPath); err != nil {
		return errors.Wrapf(err, "backup file not readable")
	}

	if err := db.CloseDB(s.db); err != nil {
		return err
	}

	// WAL sidecar files from the old connection must not shadow the
	// restored file.
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(s.conf.SqlitePath + suffix)
	}

	if err := copyFile(backupPath, s.conf.SqlitePath); err != nil {
		return errors.Wrapf(err, "restore failed")
	}

	gormDB, err := db.OpenDB(s.conf.SqlitePath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return errors.Wrapf(err, "failed to re-create schema after restore")
	}

	s.db = gormDB
	s.logger.Info("database restored", "from", backupPath)
	return nil
}

// Close implements Store.Close.
func (s *SqliteStore) Close() error {
	return db.CloseDB(s.db)
}

func deserializeFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
