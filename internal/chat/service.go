package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/cortexhq/cortex-server/internal/ai"
	"github.com/cortexhq/cortex-server/internal/profile"
)

// CommandRequest is one inbound voice/text command.
type CommandRequest struct {
	UserID         string
	ConversationID string
	Message        string
	IsVoice        bool

	// History overrides the stored conversation history when non-nil.
	History []ai.Message
}

// CommandResult carries everything the transport layer reports back.
type CommandResult struct {
	Reply          string
	ConversationID string
	UserMessageID  string
	ReplyMessageID string
	UserEmbedding  []float32
	ReplyEmbedding []float32 // nil when the best-effort reply embedding failed
}

type Options struct {
	HistoryLimit    int
	MaxMessageRunes int
}

type Service struct {
	repo      *Repo
	profiles  *profile.Store
	provider  ai.Provider
	embedder  ai.Embedder
	retriever *Retriever

	historyLimit    int
	maxMessageRunes int
	log             *zap.SugaredLogger
}

func NewService(repo *Repo, profiles *profile.Store, provider ai.Provider, embedder ai.Embedder, retriever *Retriever, opts Options, log *zap.SugaredLogger) *Service {
	if opts.HistoryLimit <= 0 || opts.HistoryLimit > 100 {
		opts.HistoryLimit = 10
	}
	if opts.MaxMessageRunes <= 0 {
		opts.MaxMessageRunes = 8000
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{
		repo:            repo,
		profiles:        profiles,
		provider:        provider,
		embedder:        embedder,
		retriever:       retriever,
		historyLimit:    opts.HistoryLimit,
		maxMessageRunes: opts.MaxMessageRunes,
		log:             log,
	}
}

func (s *Service) validate(req CommandRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return &ValidationError{Reason: "message is required"}
	}
	if strings.TrimSpace(req.UserID) == "" {
		return &ValidationError{Reason: "userId is required"}
	}
	if utf8.RuneCountInString(req.Message) > s.maxMessageRunes {
		return &ValidationError{Reason: "message too long"}
	}
	return nil
}

// HandleCommand runs the full pipeline for one command:
// validate, load profile and embed the message concurrently, retrieve
// context, compose the prompt, complete, embed the reply best-effort,
// persist both turns. Single pass, no retries; side effects committed
// before a failure stay committed.
func (s *Service) HandleCommand(ctx context.Context, req CommandRequest) (*CommandResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	// profile load and message embedding have no data dependency
	var (
		prof     *profile.Profile
		queryVec []float32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.profiles.Load(gctx, req.UserID)
		if err != nil {
			return err
		}
		prof = p
		return nil
	})
	g.Go(func() error {
		vec, err := s.embedder.Embed(gctx, req.Message)
		if err != nil {
			return err
		}
		queryVec = vec
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	conv, err := s.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	items, err := s.retriever.Retrieve(ctx, queryVec, req.UserID)
	if err != nil {
		return nil, err
	}

	history := req.History
	if history == nil {
		history, err = s.loadHistory(ctx, req.UserID, conv.ID)
		if err != nil {
			return nil, err
		}
	}

	prompt := ComposePrompt(prof, items, history, req.Message, s.historyLimit)

	reply, err := s.provider.Chat(ctx, prompt)
	if err != nil {
		return nil, err
	}

	// best-effort: a failed reply embedding degrades future retrieval for
	// this one message, not the current response
	var replyVec []float32
	if vec, err := s.embedder.Embed(ctx, reply); err != nil {
		s.log.Warnw("reply embedding failed", "user_id", req.UserID, "err", err)
	} else {
		replyVec = vec
	}

	userMsg := &Message{
		ConversationID: conv.ID,
		UserID:         req.UserID,
		Role:           ai.RoleUser,
		Content:        req.Message,
		IsVoice:        req.IsVoice,
		Embedding:      vectorOrNil(queryVec),
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	replyMsg := &Message{
		ConversationID: conv.ID,
		UserID:         req.UserID,
		Role:           ai.RoleAssistant,
		Content:        reply,
		Embedding:      vectorOrNil(replyVec),
	}
	if err := s.repo.InsertMessage(ctx, replyMsg); err != nil {
		return nil, err
	}

	return &CommandResult{
		Reply:          reply,
		ConversationID: conv.ID,
		UserMessageID:  userMsg.ID,
		ReplyMessageID: replyMsg.ID,
		UserEmbedding:  queryVec,
		ReplyEmbedding: replyVec,
	}, nil
}

// HandleCommandStream runs the same pipeline but streams completion
// chunks as they arrive. The user message is persisted before streaming
// starts; the reply is persisted after the stream completes.
func (s *Service) HandleCommandStream(ctx context.Context, req CommandRequest) (<-chan string, <-chan *CommandResult, <-chan error) {
	outChunks := make(chan string, 16)
	outResult := make(chan *CommandResult, 1)
	outErrs := make(chan error, 1)

	go func() {
		defer close(outChunks)
		defer close(outResult)
		defer close(outErrs)

		if err := s.validate(req); err != nil {
			outErrs <- err
			return
		}

		sp, ok := s.provider.(ai.StreamProvider)
		if !ok {
			outErrs <- errors.New("provider does not support streaming")
			return
		}

		var (
			prof     *profile.Profile
			queryVec []float32
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			p, err := s.profiles.Load(gctx, req.UserID)
			if err != nil {
				return err
			}
			prof = p
			return nil
		})
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, req.Message)
			if err != nil {
				return err
			}
			queryVec = vec
			return nil
		})
		if err := g.Wait(); err != nil {
			outErrs <- err
			return
		}

		conv, err := s.resolveConversation(ctx, req)
		if err != nil {
			outErrs <- err
			return
		}

		items, err := s.retriever.Retrieve(ctx, queryVec, req.UserID)
		if err != nil {
			outErrs <- err
			return
		}

		history := req.History
		if history == nil {
			history, err = s.loadHistory(ctx, req.UserID, conv.ID)
			if err != nil {
				outErrs <- err
				return
			}
		}

		prompt := ComposePrompt(prof, items, history, req.Message, s.historyLimit)

		userMsg := &Message{
			ConversationID: conv.ID,
			UserID:         req.UserID,
			Role:           ai.RoleUser,
			Content:        req.Message,
			IsVoice:        req.IsVoice,
			Embedding:      vectorOrNil(queryVec),
		}
		if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
			outErrs <- err
			return
		}

		pChunks, pErrs := sp.StreamChat(ctx, prompt)

		var b strings.Builder
		for c := range pChunks {
			b.WriteString(c)
			outChunks <- c
		}

		select {
		case err := <-pErrs:
			if err != nil {
				outErrs <- err
				return
			}
		default:
			// no error sent
		}

		reply := strings.TrimSpace(b.String())

		var replyVec []float32
		if vec, err := s.embedder.Embed(ctx, reply); err != nil {
			s.log.Warnw("reply embedding failed", "user_id", req.UserID, "err", err)
		} else {
			replyVec = vec
		}

		replyMsg := &Message{
			ConversationID: conv.ID,
			UserID:         req.UserID,
			Role:           ai.RoleAssistant,
			Content:        reply,
			Embedding:      vectorOrNil(replyVec),
		}
		if err := s.repo.InsertMessage(ctx, replyMsg); err != nil {
			outErrs <- err
			return
		}

		outResult <- &CommandResult{
			Reply:          reply,
			ConversationID: conv.ID,
			UserMessageID:  userMsg.ID,
			ReplyMessageID: replyMsg.ID,
			UserEmbedding:  queryVec,
			ReplyEmbedding: replyVec,
		}
	}()

	return outChunks, outResult, outErrs
}

// resolveConversation loads and ownership-checks the requested
// conversation, or creates a fresh one when none was given.
func (s *Service) resolveConversation(ctx context.Context, req CommandRequest) (*Conversation, error) {
	if req.ConversationID == "" {
		conv := &Conversation{
			UserID: req.UserID,
			Title:  titleFromMessage(req.Message),
		}
		if err := s.repo.CreateConversation(ctx, conv); err != nil {
			return nil, err
		}
		return conv, nil
	}

	conv, err := s.repo.GetConversation(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ValidationError{Reason: "conversation not found"}
		}
		return nil, err
	}
	if conv.UserID != req.UserID {
		// hide existence
		return nil, &ValidationError{Reason: "conversation not found"}
	}
	return conv, nil
}

// loadHistory returns the conversation's last turns oldest-first.
func (s *Service) loadHistory(ctx context.Context, userID, conversationID string) ([]ai.Message, error) {
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, userID, conversationID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	out := make([]ai.Message, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

func (s *Service) ListConversations(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	return s.repo.ListConversations(ctx, userID, limit)
}

func (s *Service) ListMessages(ctx context.Context, userID, conversationID string, limit int, before time.Time) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListMessages(ctx, userID, conversationID, limit, before)
}

func (s *Service) CreateJob(ctx context.Context, job *Job) error {
	return s.repo.CreateJob(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

// ExecuteJob runs the pipeline for a queued command and returns the
// persisted reply message id.
func (s *Service) ExecuteJob(ctx context.Context, j *Job) (string, error) {
	res, err := s.HandleCommand(ctx, CommandRequest{
		UserID:         j.UserID,
		ConversationID: j.ConversationID,
		Message:        j.Message,
		IsVoice:        j.IsVoice,
	})
	if err != nil {
		return "", err
	}
	return res.ReplyMessageID, nil
}

func vectorOrNil(vec []float32) *pgvector.Vector {
	if len(vec) == 0 {
		return nil
	}
	v := pgvector.NewVector(vec)
	return &v
}

func titleFromMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	runes := []rune(msg)
	if len(runes) > 60 {
		return string(runes[:57]) + "..."
	}
	return msg
}
