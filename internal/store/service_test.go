package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"deepchat/internal/config"
	"deepchat/internal/models"
	"deepchat/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return NewService(db)
}

func mustRegister(t *testing.T, svc *Service, name string) int64 {
	t.Helper()
	user, err := svc.RegisterUser(context.Background(), name, "secret123")
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return user.ID
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, "alice", "secret123")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if _, err := svc.RegisterUser(ctx, "alice", "other"); err == nil {
		t.Fatalf("duplicate username should fail")
	}
	if _, err := svc.RegisterUser(ctx, "  ", "pw"); err == nil {
		t.Fatalf("blank username should fail")
	}

	got, err := svc.Login(ctx, "alice", "secret123")
	if err != nil || got.ID != user.ID {
		t.Fatalf("Login: id=%v err=%v", got, err)
	}
	if _, err := svc.Login(ctx, "alice", "wrong"); err == nil {
		t.Fatalf("wrong password should fail")
	}
	if _, err := svc.Login(ctx, "nobody", "secret123"); err == nil {
		t.Fatalf("unknown user should fail")
	}
}

func TestChatLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	userID := mustRegister(t, svc, "alice")
	otherID := mustRegister(t, svc, "bob")

	chat, err := svc.CreateChat(ctx, userID, "New Chat")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	// owner scoping on reads
	if _, _, err := svc.GetChatWithMessages(ctx, otherID, chat.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("foreign chat read: %v", err)
	}

	msg, err := svc.AddMessage(ctx, models.Message{
		UserID: userID, ChatID: chat.ID, Role: models.RoleUser, Content: "hello",
	})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if msg.ID == 0 {
		t.Fatalf("message id missing")
	}
	if _, err := svc.AddMessage(ctx, models.Message{
		UserID: otherID, ChatID: chat.ID, Role: models.RoleUser, Content: "intrude",
	}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("foreign chat write: %v", err)
	}

	_, msgs, err := svc.GetChatWithMessages(ctx, userID, chat.ID)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("messages: %v %v", msgs, err)
	}

	if err := svc.UpdateChatTitle(ctx, userID, chat.ID, "renamed"); err != nil {
		t.Fatalf("UpdateChatTitle: %v", err)
	}
	chats, err := svc.ListChats(ctx, userID)
	if err != nil || len(chats) != 1 || chats[0].Title != "renamed" {
		t.Fatalf("ListChats: %v %v", chats, err)
	}

	if err := svc.DeleteChat(ctx, otherID, chat.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("foreign delete: %v", err)
	}
	if err := svc.DeleteChat(ctx, userID, chat.ID); err != nil {
		t.Fatalf("DeleteChat: %v", err)
	}
	if chats, _ := svc.ListChats(ctx, userID); len(chats) != 0 {
		t.Fatalf("chat not deleted: %v", chats)
	}
}

func TestFindEmptyChat(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	userID := mustRegister(t, svc, "alice")

	if _, err := svc.FindEmptyChat(ctx, userID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected no empty chat, got %v", err)
	}
	chat, _ := svc.CreateChat(ctx, userID, "New Chat")
	found, err := svc.FindEmptyChat(ctx, userID)
	if err != nil || found.ID != chat.ID {
		t.Fatalf("FindEmptyChat: %v %v", found, err)
	}
	if _, err := svc.AddMessage(ctx, models.Message{
		UserID: userID, ChatID: chat.ID, Role: models.RoleUser, Content: "hi",
	}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if _, err := svc.FindEmptyChat(ctx, userID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("chat with messages still reported empty: %v", err)
	}
}

func TestListPromptsSeedsPresets(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	userID := mustRegister(t, svc, "alice")

	prompts, err := svc.ListPrompts(ctx, userID)
	if err != nil {
		t.Fatalf("ListPrompts: %v", err)
	}
	if len(prompts) != len(presetPrompts) {
		t.Fatalf("seeded %d prompts, want %d", len(prompts), len(presetPrompts))
	}
	for _, p := range prompts {
		if !p.IsPreset {
			t.Fatalf("seeded prompt not marked preset: %+v", p)
		}
	}

	// second call must not reseed
	again, err := svc.ListPrompts(ctx, userID)
	if err != nil || len(again) != len(presetPrompts) {
		t.Fatalf("reseeded: %v %v", again, err)
	}

	custom, err := svc.CreatePrompt(ctx, userID, "Mine", "do my bidding")
	if err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}
	if custom.IsPreset {
		t.Fatalf("user prompt marked preset")
	}
	got, err := svc.GetPrompt(ctx, userID, custom.ID)
	if err != nil || got.Content != "do my bidding" {
		t.Fatalf("GetPrompt: %v %v", got, err)
	}
	if err := svc.UpdatePrompt(ctx, userID, custom.ID, "Mine", "updated"); err != nil {
		t.Fatalf("UpdatePrompt: %v", err)
	}
	if err := svc.DeletePrompt(ctx, userID, custom.ID); err != nil {
		t.Fatalf("DeletePrompt: %v", err)
	}
	if _, err := svc.GetPrompt(ctx, userID, custom.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("prompt not deleted: %v", err)
	}
}

func TestAPIConfigExclusiveActivation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	userID := mustRegister(t, svc, "alice")

	first, err := svc.CreateAPIConfig(ctx, userID, models.ProviderOpenAI, "work", "https://api.openai.com/v1", "sk-1")
	if err != nil {
		t.Fatalf("CreateAPIConfig: %v", err)
	}
	if first.IsActive {
		t.Fatalf("new config must start inactive")
	}
	second, err := svc.CreateAPIConfig(ctx, userID, models.ProviderClaude, "home", "https://api.anthropic.com/v1", "sk-2")
	if err != nil {
		t.Fatalf("CreateAPIConfig: %v", err)
	}

	if _, err := svc.ActiveAPIConfig(ctx, userID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected no active config, got %v", err)
	}

	if err := svc.SetActiveAPIConfig(ctx, userID, first.ID); err != nil {
		t.Fatalf("SetActiveAPIConfig: %v", err)
	}
	if err := svc.SetActiveAPIConfig(ctx, userID, second.ID); err != nil {
		t.Fatalf("SetActiveAPIConfig: %v", err)
	}

	active, err := svc.ActiveAPIConfig(ctx, userID)
	if err != nil || active.ID != second.ID {
		t.Fatalf("ActiveAPIConfig: %v %v", active, err)
	}
	configs, err := svc.ListAPIConfigs(ctx, userID)
	if err != nil {
		t.Fatalf("ListAPIConfigs: %v", err)
	}
	activeCount := 0
	for _, c := range configs {
		if c.IsActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("active count = %d, want exactly 1", activeCount)
	}

	// config id 0 deactivates everything
	if err := svc.SetActiveAPIConfig(ctx, userID, 0); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.ActiveAPIConfig(ctx, userID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("still active: %v", err)
	}

	// activation is owner scoped
	otherID := mustRegister(t, svc, "bob")
	if err := svc.SetActiveAPIConfig(ctx, otherID, first.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("foreign activation: %v", err)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	userID := mustRegister(t, svc, "alice")

	chat, _ := svc.CreateChat(ctx, userID, "New Chat")
	_, _ = svc.AddMessage(ctx, models.Message{UserID: userID, ChatID: chat.ID, Role: models.RoleUser, Content: "hi"})

	if err := svc.DeleteUser(ctx, userID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := svc.DeleteUser(ctx, userID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := svc.Login(ctx, "alice", "secret123"); err == nil {
		t.Fatalf("deleted user can log in")
	}
}
