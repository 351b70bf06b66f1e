package handlers

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cortexhq/cortex-server/internal/ai"
	"github.com/cortexhq/cortex-server/internal/chat"
	"github.com/cortexhq/cortex-server/internal/config"
	"github.com/cortexhq/cortex-server/internal/profile"
	"github.com/cortexhq/cortex-server/internal/store/rabbitmq"
	"github.com/cortexhq/cortex-server/internal/store/redisstore"
)

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	Redis    *redisstore.Store
	Rabbit   *rabbitmq.Publisher
	Log      *zap.SugaredLogger
	ChatSvc  *chat.Service
	Profiles *profile.Store
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rabbit *rabbitmq.Publisher, log *zap.SugaredLogger) *Handler {
	repo := chat.NewRepo(db)
	profiles := profile.NewStore(db, rds)

	reg := ai.NewRegistry()
	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenAIModel
		}
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, m, cfg.OpenAIMaxTokens, cfg.OpenAITemperature), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	provider, err := reg.Get(context.Background(), cfg.AIProvider, "")
	if err != nil {
		panic(fmt.Sprintf("unsupported AI_PROVIDER=%q", cfg.AIProvider))
	}

	embedder := ai.NewEmbeddingClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	retriever := chat.NewRetriever(repo, cfg.RetrievalThreshold, cfg.RetrievalLimit)

	chatSvc := chat.NewService(repo, profiles, provider, embedder, retriever, chat.Options{
		HistoryLimit:    cfg.HistoryLimit,
		MaxMessageRunes: cfg.MaxMessageRunes,
	}, log)

	return &Handler{
		DB:       db,
		Cfg:      cfg,
		Redis:    rds,
		Rabbit:   rabbit,
		Log:      log,
		ChatSvc:  chatSvc,
		Profiles: profiles,
	}
}
