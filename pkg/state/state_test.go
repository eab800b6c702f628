package state

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nstogner/vivica/pkg/domain"
	"github.com/nstogner/vivica/pkg/store"
	"github.com/nstogner/vivica/pkg/store/jsonfile"
)

func newTestState(t *testing.T) (*State, store.Store) {
	t.Helper()
	st, err := jsonfile.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return loadTestState(t, st), st
}

func loadTestState(t *testing.T, st store.Store) *State {
	t.Helper()
	var n int
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := Load(context.Background(), st,
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
		WithClock(func() time.Time { clock = clock.Add(time.Second); return clock }),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestLoadDefaults(t *testing.T) {
	s, _ := newTestState(t)

	profiles := s.Profiles()
	if len(profiles) != 1 || profiles[0].ID != domain.DefaultProfileID || !profiles[0].IsDefault {
		t.Fatalf("Profiles = %+v, want the default profile", profiles)
	}
	settings := s.Settings()
	if settings.ActiveProfileID != domain.DefaultProfileID || settings.ThemeFamily != domain.ThemeAmoled || !settings.IsDarkMode {
		t.Errorf("Settings = %+v", settings)
	}
	if _, ok := s.ActiveConversation(); ok {
		t.Error("expected no active conversation")
	}
	if _, route := s.ActiveRoute(); route.Backend != domain.BackendPrimary {
		t.Errorf("default route = %v, want primary", route.Backend)
	}
}

func TestLoadMergesStoredSettings(t *testing.T) {
	st, err := jsonfile.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := st.Put(context.Background(), store.KeySettings, []byte(`{"themeFamily":"red"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	s := loadTestState(t, st)
	got := s.Settings()
	if got.ThemeFamily != domain.ThemeRed {
		t.Errorf("ThemeFamily = %q, want red", got.ThemeFamily)
	}
	if !got.IsDarkMode || got.ActiveProfileID != domain.DefaultProfileID {
		t.Errorf("defaults not preserved: %+v", got)
	}
}

func TestPersistsAcrossLoad(t *testing.T) {
	ctx := context.Background()
	s, st := newTestState(t)

	c, err := s.CreateConversation(ctx, "Hello")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	msg, err := s.AppendMessage(ctx, c.ID, domain.Message{Role: domain.RoleAssistant})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := s.SetMessageContent(c.ID, msg.ID, "streamed"); err != nil {
		t.Fatalf("SetMessageContent: %v", err)
	}

	reloaded := loadTestState(t, st)
	got, err := reloaded.Conversation(c.ID)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if got.Messages[0].Content != "" {
		t.Errorf("streamed content persisted before commit: %q", got.Messages[0].Content)
	}

	if err := s.Commit(ctx, c.ID); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	reloaded = loadTestState(t, st)
	got, _ = reloaded.Conversation(c.ID)
	if got.Messages[0].Content != "streamed" {
		t.Errorf("content after commit = %q, want streamed", got.Messages[0].Content)
	}
	if active, ok := reloaded.ActiveConversation(); !ok || active.ID != c.ID {
		t.Errorf("active conversation not restored")
	}
}

func TestReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t)
	c, _ := s.CreateConversation(ctx, "x")
	s.AppendMessage(ctx, c.ID, domain.Message{Role: domain.RoleUser, Content: "a"})

	got, _ := s.Conversation(c.ID)
	got.Messages[0].Content = "mutated"

	again, _ := s.Conversation(c.ID)
	if again.Messages[0].Content != "a" {
		t.Errorf("caller mutation leaked into state: %q", again.Messages[0].Content)
	}
}

func TestAppendRefreshesLastUpdated(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t)
	c, _ := s.CreateConversation(ctx, "x")

	if _, err := s.AppendMessage(ctx, c.ID, domain.Message{Role: domain.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	got, _ := s.Conversation(c.ID)
	if !got.LastUpdated.After(c.LastUpdated) {
		t.Errorf("LastUpdated not refreshed: %v <= %v", got.LastUpdated, c.LastUpdated)
	}
	if got.Messages[0].ID == "" || got.Messages[0].Timestamp.IsZero() {
		t.Errorf("message id/timestamp not filled: %+v", got.Messages[0])
	}
}

func TestFailMessage(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t)
	c, _ := s.CreateConversation(ctx, "x")
	m, _ := s.AppendMessage(ctx, c.ID, domain.Message{Role: domain.RoleAssistant})

	if err := s.FailMessage(ctx, c.ID, m.ID, "Error: boom"); err != nil {
		t.Fatalf("FailMessage: %v", err)
	}
	got, _ := s.Conversation(c.ID)
	if !got.Messages[0].IsError || got.Messages[0].Content != "Error: boom" {
		t.Errorf("message = %+v", got.Messages[0])
	}
	if err := s.FailMessage(ctx, c.ID, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailMessage(missing) err = %v", err)
	}
}

func TestDeleteActiveConversationClearsReference(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t)
	c, _ := s.NewWorkspace(ctx)
	if c.Title != domain.NewConversationTitle || len(c.Messages) != 0 {
		t.Fatalf("NewWorkspace = %+v", c)
	}

	if err := s.DeleteConversation(ctx, c.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if s.Settings().ActiveConversationID != nil {
		t.Error("active conversation reference not cleared")
	}
	if err := s.DeleteConversation(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestSelectProfileClearsConversation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t)
	s.NewWorkspace(ctx)
	p, _ := s.CreateProfile(ctx)

	if err := s.SelectProfile(ctx, p.ID); err != nil {
		t.Fatalf("SelectProfile: %v", err)
	}
	settings := s.Settings()
	if settings.ActiveProfileID != p.ID || settings.ActiveConversationID != nil {
		t.Errorf("Settings = %+v", settings)
	}
	if got := s.ProfileConversations(); len(got) != 0 {
		t.Errorf("new profile has %d conversations", len(got))
	}
}

func TestSelectConversationActivatesOwner(t *testing.T) {
	ctx := context.Background()
	s, st := newTestState(t)
	c, _ := s.NewWorkspace(ctx)

	p, _ := s.CreateProfile(ctx)
	model := "openai/gpt-4o"
	if _, err := s.UpdateProfile(ctx, p.ID, ProfilePatch{Model: &model}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if err := s.SelectProfile(ctx, p.ID); err != nil {
		t.Fatalf("SelectProfile: %v", err)
	}

	if err := s.SelectConversation(ctx, c.ID); err != nil {
		t.Fatalf("SelectConversation: %v", err)
	}
	settings := s.Settings()
	if settings.ActiveProfileID != domain.DefaultProfileID {
		t.Errorf("ActiveProfileID = %q, want %q", settings.ActiveProfileID, domain.DefaultProfileID)
	}
	if settings.ActiveConversationID == nil || *settings.ActiveConversationID != c.ID {
		t.Errorf("ActiveConversationID = %v, want %q", settings.ActiveConversationID, c.ID)
	}
	profile, route := s.ActiveRoute()
	if profile.ID != domain.DefaultProfileID || route.Backend != domain.BackendPrimary {
		t.Errorf("ActiveRoute = %s %v, want the default profile on the primary backend", profile.ID, route.Backend)
	}
	if got := s.ProfileConversations(); len(got) != 1 || got[0].ID != c.ID {
		t.Errorf("ProfileConversations = %+v", got)
	}

	if got := loadTestState(t, st).Settings().ActiveProfileID; got != domain.DefaultProfileID {
		t.Errorf("persisted ActiveProfileID = %q", got)
	}
}

func TestProfileConversationsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t)
	first, _ := s.CreateConversation(ctx, "first")
	second, _ := s.CreateConversation(ctx, "second")
	s.AppendMessage(ctx, first.ID, domain.Message{Role: domain.RoleUser, Content: "bump"})

	got := s.ProfileConversations()
	if len(got) != 2 || got[0].ID != first.ID || got[1].ID != second.ID {
		t.Errorf("order = %v, %v", got[0].Title, got[1].Title)
	}
}

func TestCreateProfileTemplate(t *testing.T) {
	s, _ := newTestState(t)
	p, err := s.CreateProfile(context.Background())
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if p.Name != "New Entity" || p.Model != domain.GeminiModels[0].ID || p.Temperature != 0.7 || !p.Memory.IsEmpty() || p.IsDefault {
		t.Errorf("CreateProfile = %+v", p)
	}
	if len(s.Profiles()) != 2 {
		t.Errorf("profile count = %d", len(s.Profiles()))
	}
}

func TestUpdateProfileClampsAndReroutes(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t)

	hot := 1.7
	model := "openai/gpt-4o"
	p, err := s.UpdateProfile(ctx, domain.DefaultProfileID, ProfilePatch{Temperature: &hot, Model: &model})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p.Temperature != 1 {
		t.Errorf("Temperature = %v, want 1", p.Temperature)
	}
	if p.Name != "Vivica Primary" {
		t.Errorf("unpatched Name changed to %q", p.Name)
	}
	if _, route := s.ActiveRoute(); route != (domain.Route{Backend: domain.BackendSecondary}) {
		t.Errorf("route = %+v, want secondary without credential", route)
	}

	if _, err := s.SetCredential(ctx, "sk-test"); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}
	if _, route := s.ActiveRoute(); route.Credential != "sk-test" {
		t.Errorf("route credential = %q after SetCredential", route.Credential)
	}

	cold := -3.0
	p, _ = s.UpdateProfile(ctx, domain.DefaultProfileID, ProfilePatch{Temperature: &cold})
	if p.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", p.Temperature)
	}
}

func TestSetCredentialReportsChange(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t)
	if changed, _ := s.SetCredential(ctx, "k"); !changed {
		t.Error("first SetCredential reported no change")
	}
	if changed, _ := s.SetCredential(ctx, "k"); changed {
		t.Error("repeated SetCredential reported a change")
	}
}

func TestDeleteProfile(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t)

	if err := s.DeleteProfile(ctx, domain.DefaultProfileID); !errors.Is(err, ErrDefaultProfile) {
		t.Fatalf("delete default err = %v, want ErrDefaultProfile", err)
	}

	keep, _ := s.CreateConversation(ctx, "keep")
	p, _ := s.CreateProfile(ctx)
	s.SelectProfile(ctx, p.ID)
	drop, _ := s.CreateConversation(ctx, "drop")

	if err := s.DeleteProfile(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}
	if _, err := s.Conversation(drop.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("conversation of deleted profile survived: %v", err)
	}
	if _, err := s.Conversation(keep.ID); err != nil {
		t.Errorf("unrelated conversation removed: %v", err)
	}
	settings := s.Settings()
	if settings.ActiveProfileID != domain.DefaultProfileID || settings.ActiveConversationID != nil {
		t.Errorf("Settings = %+v", settings)
	}
}

func TestMemoryEdits(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t)
	id := domain.DefaultProfileID

	if err := s.SetMemoryField(ctx, id, domain.MemoryIdentity, "Sam"); err != nil {
		t.Fatalf("SetMemoryField: %v", err)
	}
	if err := s.SetMemoryField(ctx, id, "bogus", "x"); err == nil {
		t.Error("expected error for unknown field")
	}
	if err := s.SetSummary(ctx, id, "first"); err != nil {
		t.Fatalf("SetSummary: %v", err)
	}
	if err := s.SetSummary(ctx, id, "second"); err != nil {
		t.Fatalf("SetSummary: %v", err)
	}
	p, _ := s.Profile(id)
	if p.Memory.Summary != "second" || p.Memory.Identity != "Sam" {
		t.Errorf("Memory = %+v", p.Memory)
	}

	if err := s.PurgeMemory(ctx, id); err != nil {
		t.Fatalf("PurgeMemory: %v", err)
	}
	p, _ = s.Profile(id)
	if !p.Memory.IsEmpty() {
		t.Errorf("Memory after purge = %+v", p.Memory)
	}
}

func TestSettingsMutations(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t)

	if err := s.SetTheme(ctx, "green"); !errors.Is(err, ErrInvalid) {
		t.Errorf("SetTheme(green) err = %v, want ErrInvalid", err)
	}
	if err := s.SetTheme(ctx, domain.ThemeBlue); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if err := s.SetDarkMode(ctx, false); err != nil {
		t.Fatalf("SetDarkMode: %v", err)
	}
	got := s.Settings()
	if got.ThemeFamily != domain.ThemeBlue || got.IsDarkMode {
		t.Errorf("Settings = %+v", got)
	}
}

func TestSubscribeReceivesConversationID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t)
	ch := s.Subscribe()

	c, _ := s.CreateConversation(ctx, "x")
	select {
	case id := <-ch:
		if id != c.ID {
			t.Errorf("notified id = %q, want %q", id, c.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestUnsubscribe(t *testing.T) {
	s, _ := newTestState(t)
	ch := s.Subscribe()
	s.Unsubscribe(ch)

	s.NewWorkspace(context.Background())
	select {
	case id := <-ch:
		t.Errorf("received %q after Unsubscribe", id)
	default:
	}
}
