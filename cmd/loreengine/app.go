package main

import (
	"log/slog"

	"github.com/lorelabs/loreengine/ai"
	"github.com/lorelabs/loreengine/config"
	"github.com/lorelabs/loreengine/engine"
	"github.com/lorelabs/loreengine/internal/mylog"
	"github.com/lorelabs/loreengine/knowledge"
	"github.com/lorelabs/loreengine/skill"
	"github.com/lorelabs/loreengine/store"
)

// app wires every component explicitly. Construction order follows the
// dependency graph: config, logger, database, clients, engines.
type app struct {
	conf   *config.Config
	logger *slog.Logger

	sqliteStore *knowledge.SqliteStore
	service     knowledge.Service
	engine      *engine.Engine
	skills      *skill.Engine

	kv        store.KV
	history   store.HistoryStore
	inquiries store.InquiryStore
	patches   store.PatchStore
}

func newApp() (*app, error) {
	conf, err := config.Load(false)
	if err != nil {
		return nil, err
	}
	logger := mylog.NewLogger(conf.Log.LogLevel, conf.Log.LogHandler)

	sqliteStore, err := knowledge.NewSqliteStore(conf.Knowledge, logger)
	if err != nil {
		return nil, err
	}
	gdb := sqliteStore.DB()

	chunker, err := knowledge.NewChunker()
	if err != nil {
		return nil, err
	}

	aiClient := ai.NewClient(conf.OpenAI, conf.Knowledge, logger)
	kv := store.NewKV(gdb)

	repo, err := skill.NewDirRepository(conf.Skill.SkillsDir, conf.Skill.BoneyardDir, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		conf:        conf,
		logger:      logger,
		sqliteStore: sqliteStore,
		service:     knowledge.NewService(sqliteStore, aiClient, chunker, conf.Knowledge, logger),
		engine:      engine.NewEngine(conf.Engine, chunker, aiClient, aiClient, sqliteStore, kv, logger),
		skills:      skill.NewEngine(conf.Skill, aiClient, kv, repo, logger),
		kv:          kv,
		history:     store.NewHistoryStore(gdb),
		inquiries:   store.NewInquiryStore(gdb),
		patches:     store.NewPatchStore(gdb),
	}, nil
}

func (a *app) Close() {
	if err := a.sqliteStore.Close(); err != nil {
		a.logger.Warn("failed to close database", "err", err)
	}
}
