package exchange

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/tokenledger/tokenledger/internal/completion"
	"github.com/tokenledger/tokenledger/internal/conversation"
	"github.com/tokenledger/tokenledger/internal/ledger"
	"github.com/tokenledger/tokenledger/internal/model"
	"github.com/tokenledger/tokenledger/internal/repository"
)

// fakeBackend implements both ledger.Store and conversation.Store over
// in-memory maps so the full orchestration path can be exercised.
type fakeBackend struct {
	users    map[string]*model.User
	chats    map[string]*model.Chat
	messages map[string][]*model.Message

	debits []int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:    make(map[string]*model.User),
		chats:    make(map[string]*model.Chat),
		messages: make(map[string][]*model.Message),
	}
}

func (f *fakeBackend) GetUserByID(_ context.Context, id string) (*model.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeBackend) DebitTokens(_ context.Context, userID, chatID string, amount int64) error {
	f.users[userID].TokensUsed += amount
	f.chats[chatID].TokensUsed += amount
	f.debits = append(f.debits, amount)
	return nil
}

func (f *fakeBackend) ResetUsage(_ context.Context, userID string, _ *string) error {
	f.users[userID].TokensUsed = 0
	return nil
}

func (f *fakeBackend) UpdateEntitlement(_ context.Context, _ string, _ repository.EntitlementPatch) error {
	return nil
}

func (f *fakeBackend) CreateChat(_ context.Context, chat *model.Chat) error {
	f.chats[chat.ID] = chat
	return nil
}

func (f *fakeBackend) GetChatForUser(_ context.Context, chatID, userID string) (*model.Chat, error) {
	chat, ok := f.chats[chatID]
	if !ok || chat.UserID != userID {
		return nil, repository.ErrChatNotFound
	}
	return chat, nil
}

func (f *fakeBackend) ListChatsForUser(_ context.Context, userID string) ([]*model.ChatSummary, error) {
	var out []*model.ChatSummary
	for _, chat := range f.chats {
		if chat.UserID == userID {
			out = append(out, &model.ChatSummary{Chat: *chat})
		}
	}
	return out, nil
}

func (f *fakeBackend) AppendMessage(_ context.Context, msg *model.Message) error {
	f.messages[msg.ChatID] = append(f.messages[msg.ChatID], msg)
	return nil
}

func (f *fakeBackend) RecentMessages(_ context.Context, chatID string, limit int) ([]*model.Message, error) {
	msgs := f.messages[chatID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeBackend) RecordExchange(_ context.Context, msg *model.Message, userID string, totalTokens int64) error {
	f.messages[msg.ChatID] = append(f.messages[msg.ChatID], msg)
	return f.DebitTokens(context.Background(), userID, msg.ChatID, totalTokens)
}

// capturingPublisher records published exchanges.
type capturingPublisher struct {
	published []publishedExchange
}

type publishedExchange struct {
	userID, chatID                 string
	promptTokens, completionTokens int64
}

func (p *capturingPublisher) PublishExchange(userID, chatID string, promptTokens, completionTokens int64) {
	p.published = append(p.published, publishedExchange{userID, chatID, promptTokens, completionTokens})
}

func newTestService(backend *fakeBackend, provider completion.Provider, publisher UsagePublisher) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(
		ledger.New(backend),
		conversation.New(backend),
		provider,
		publisher,
		nil,
		logger,
	)
}

func TestSubmitPrompt_NewChat(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.users["user-1"] = &model.User{ID: "user-1", TokensUsed: 0, TokensLimit: 1000}
	provider := completion.NewStub(completion.StubContent("Hi there!"), completion.StubTokens(3))
	publisher := &capturingPublisher{}
	svc := newTestService(backend, provider, publisher)

	result, err := svc.SubmitPrompt(context.Background(), "user-1", "", "Hello")
	if err != nil {
		t.Fatalf("SubmitPrompt failed: %v", err)
	}

	if result.Content != "Hi there!" {
		t.Errorf("Content = %q, want %q", result.Content, "Hi there!")
	}
	if result.ChatID == "" {
		t.Error("ChatID should be assigned for a new chat")
	}
	if result.MessageID == "" {
		t.Error("MessageID should be the assistant message id")
	}

	// "Hello" is 5 chars, estimated at 2 tokens; plus the reply's 3.
	if result.TokensSpent != 5 {
		t.Errorf("TokensSpent = %d, want 5", result.TokensSpent)
	}
	if backend.users["user-1"].TokensUsed != 5 {
		t.Errorf("User usage = %d, want 5", backend.users["user-1"].TokensUsed)
	}

	// A new chat is titled from the prompt.
	chat := backend.chats[result.ChatID]
	if chat == nil {
		t.Fatal("Chat should be persisted")
	}
	if chat.Title != "Hello" {
		t.Errorf("Chat title = %q, want %q", chat.Title, "Hello")
	}

	// Both turns persisted: user then assistant.
	msgs := backend.messages[result.ChatID]
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[1].Role != model.RoleAssistant {
		t.Errorf("Message roles = %s, %s; want user, assistant", msgs[0].Role, msgs[1].Role)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("Expected 1 published exchange, got %d", len(publisher.published))
	}
	pub := publisher.published[0]
	if pub.promptTokens != 2 || pub.completionTokens != 3 {
		t.Errorf("Published tokens = %d/%d, want 2/3", pub.promptTokens, pub.completionTokens)
	}
}

func TestSubmitPrompt_ExistingChatGetsContextWindow(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.users["user-1"] = &model.User{ID: "user-1", TokensLimit: 1000}
	backend.chats["chat-1"] = &model.Chat{ID: "chat-1", UserID: "user-1"}
	for i := 0; i < 10; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		backend.messages["chat-1"] = append(backend.messages["chat-1"], &model.Message{
			ChatID: "chat-1", Role: role, Content: "earlier",
		})
	}

	var seenHistory []model.Turn
	provider := completion.NewStub(completion.StubResponseFunc(func(history []model.Turn) (completion.Result, error) {
		seenHistory = history
		return completion.Result{Content: "ok", Tokens: 1}, nil
	}))
	svc := newTestService(backend, provider, nil)

	if _, err := svc.SubmitPrompt(context.Background(), "user-1", "chat-1", "latest question"); err != nil {
		t.Fatalf("SubmitPrompt failed: %v", err)
	}

	// Window of the six most recent stored turns plus the new prompt.
	if len(seenHistory) != conversation.MaxWindowTurns+1 {
		t.Fatalf("History length = %d, want %d", len(seenHistory), conversation.MaxWindowTurns+1)
	}
	last := seenHistory[len(seenHistory)-1]
	if last.Role != model.RoleUser || last.Content != "latest question" {
		t.Errorf("Final turn = %s %q, want the new prompt", last.Role, last.Content)
	}
}

func TestSubmitPrompt_Unauthenticated(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeBackend(), completion.NewStub(), nil)

	_, err := svc.SubmitPrompt(context.Background(), "", "", "Hello")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("error = %v, want ErrUnauthenticated", err)
	}
}

func TestSubmitPrompt_EmptyPrompt(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.users["user-1"] = &model.User{ID: "user-1", TokensLimit: 1000}
	provider := completion.NewStub()
	svc := newTestService(backend, provider, nil)

	_, err := svc.SubmitPrompt(context.Background(), "user-1", "", "")
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("error = %v, want ErrEmptyPrompt", err)
	}
	if provider.Calls() != 0 {
		t.Error("Provider must not be called for an empty prompt")
	}
}

func TestSubmitPrompt_QuotaExceeded_NoSideEffects(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.users["user-1"] = &model.User{ID: "user-1", TokensUsed: 1000, TokensLimit: 1000}
	provider := completion.NewStub()
	svc := newTestService(backend, provider, nil)

	_, err := svc.SubmitPrompt(context.Background(), "user-1", "", "Hello")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("error = %v, want ErrQuotaExceeded", err)
	}

	// Rejection happens before any side effect.
	if provider.Calls() != 0 {
		t.Error("Provider must not be called on rejection")
	}
	if len(backend.chats) != 0 {
		t.Error("No chat should be created on rejection")
	}
	if len(backend.messages) != 0 {
		t.Error("No message should be persisted on rejection")
	}
	if len(backend.debits) != 0 {
		t.Error("Nothing should be debited on rejection")
	}
}

func TestSubmitPrompt_OneTokenLeftAdmits(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.users["user-1"] = &model.User{ID: "user-1", TokensUsed: 999, TokensLimit: 1000}
	provider := completion.NewStub(completion.StubTokens(50))
	svc := newTestService(backend, provider, nil)

	result, err := svc.SubmitPrompt(context.Background(), "user-1", "", "Hello")
	if err != nil {
		t.Fatalf("SubmitPrompt with budget remaining failed: %v", err)
	}

	// Admission is point in time; the debit may push usage past the
	// limit and is recorded in full.
	if backend.users["user-1"].TokensUsed != 999+result.TokensSpent {
		t.Errorf("User usage = %d, want %d", backend.users["user-1"].TokensUsed, 999+result.TokensSpent)
	}
}

func TestSubmitPrompt_ChatNotFound(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.users["user-1"] = &model.User{ID: "user-1", TokensLimit: 1000}
	svc := newTestService(backend, completion.NewStub(), nil)

	_, err := svc.SubmitPrompt(context.Background(), "user-1", "missing-chat", "Hello")
	if !errors.Is(err, ErrChatNotFound) {
		t.Errorf("error = %v, want ErrChatNotFound", err)
	}
}

func TestSubmitPrompt_ForeignChatNotFound(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.users["user-1"] = &model.User{ID: "user-1", TokensLimit: 1000}
	backend.chats["chat-2"] = &model.Chat{ID: "chat-2", UserID: "user-2"}
	svc := newTestService(backend, completion.NewStub(), nil)

	// Another user's chat is indistinguishable from a missing one.
	_, err := svc.SubmitPrompt(context.Background(), "user-1", "chat-2", "Hello")
	if !errors.Is(err, ErrChatNotFound) {
		t.Errorf("error = %v, want ErrChatNotFound", err)
	}
}

func TestSubmitPrompt_UnknownUser(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeBackend(), completion.NewStub(), nil)

	_, err := svc.SubmitPrompt(context.Background(), "ghost", "", "Hello")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestSubmitPrompt_ProviderFailure_KeepsUserMessage(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.users["user-1"] = &model.User{ID: "user-1", TokensLimit: 1000}
	provider := completion.NewStub(completion.StubError(errors.New("upstream 500")))
	publisher := &capturingPublisher{}
	svc := newTestService(backend, provider, publisher)

	_, err := svc.SubmitPrompt(context.Background(), "user-1", "", "Hello")
	if !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("error = %v, want ErrProviderFailure", err)
	}

	// The user message stays durable; no assistant turn, no debit.
	var all []*model.Message
	for _, msgs := range backend.messages {
		all = append(all, msgs...)
	}
	if len(all) != 1 {
		t.Fatalf("Expected 1 persisted message, got %d", len(all))
	}
	if all[0].Role != model.RoleUser {
		t.Errorf("Persisted role = %s, want user", all[0].Role)
	}
	if backend.users["user-1"].TokensUsed != 0 {
		t.Errorf("User usage = %d, want 0 after provider failure", backend.users["user-1"].TokensUsed)
	}
	if len(publisher.published) != 0 {
		t.Error("Nothing should be published after provider failure")
	}
}

func TestSubmitPrompt_NilPublisher(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.users["user-1"] = &model.User{ID: "user-1", TokensLimit: 1000}
	svc := newTestService(backend, completion.NewStub(), nil)

	if _, err := svc.SubmitPrompt(context.Background(), "user-1", "", "Hello"); err != nil {
		t.Fatalf("SubmitPrompt with nil publisher failed: %v", err)
	}
}
