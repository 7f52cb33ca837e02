package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/resumind/resumind/internal/core"
)

func seedConversation(t *testing.T, s *Store, userID int64, title string) *core.Conversation {
	t.Helper()
	conv, err := s.CreateConversation(context.Background(), userID, title, "简历正文", "岗位JD")
	if err != nil {
		t.Fatalf("CreateConversation(%s): %v", title, err)
	}
	return conv
}

func TestConversations_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := seedUser(t, s, "conv@resume.ai")

	conv := seedConversation(t, s, user.ID, "简历分析 - resume.pdf")

	loaded, err := s.GetConversation(ctx, user.ID, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if loaded.Title != "简历分析 - resume.pdf" || loaded.ResumeText != "简历正文" || loaded.JobDescription != "岗位JD" {
		t.Fatalf("unexpected conversation: %#v", loaded)
	}

	other := seedUser(t, s, "other@resume.ai")
	if _, err := s.GetConversation(ctx, other.ID, conv.ID); core.CategoryOf(err) != core.ErrCatNotFound {
		t.Fatalf("expected not_found for foreign conversation, got %v", err)
	}
}

func TestConversations_MessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := seedUser(t, s, "conv@resume.ai")
	conv := seedConversation(t, s, user.ID, "t")

	if err := s.AppendMessage(ctx, conv.ID, core.RoleUser, "开始分析", 0); err != nil {
		t.Fatalf("AppendMessage user: %v", err)
	}
	if err := s.AppendMessage(ctx, conv.ID, core.RoleAssistant, "第一步结论", 1); err != nil {
		t.Fatalf("AppendMessage assistant: %v", err)
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != core.RoleUser || msgs[0].Step != 0 {
		t.Fatalf("unexpected first message: %#v", msgs[0])
	}
	if msgs[1].Role != core.RoleAssistant || msgs[1].Step != 1 || msgs[1].Content != "第一步结论" {
		t.Fatalf("unexpected second message: %#v", msgs[1])
	}
	if msgs[0].CreatedAt.IsZero() {
		t.Fatal("message created_at not set")
	}
}

func TestConversations_DerivedStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithFinalStep(5))
	user := seedUser(t, s, "conv@resume.ai")

	running := seedConversation(t, s, user.ID, "running")
	stopped := seedConversation(t, s, user.ID, "stopped")
	completed := seedConversation(t, s, user.ID, "completed")

	// Partial progress only.
	if err := s.AppendMessage(ctx, running.ID, core.RoleAssistant, "第一步", 1); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if _, err := s.MarkStoppedOnce(ctx, stopped.ID); err != nil {
		t.Fatalf("MarkStoppedOnce: %v", err)
	}
	if err := s.AppendMessage(ctx, completed.ID, core.RoleAssistant, "最终裁决", 5); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	summaries, err := s.ListConversations(ctx, user.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}

	statusByTitle := map[string]string{}
	for _, sum := range summaries {
		statusByTitle[sum.Title] = sum.Status
	}
	if statusByTitle["running"] != core.StatusInProgress {
		t.Fatalf("running: got %q", statusByTitle["running"])
	}
	if statusByTitle["stopped"] != core.StatusStopped {
		t.Fatalf("stopped: got %q", statusByTitle["stopped"])
	}
	if statusByTitle["completed"] != core.StatusCompleted {
		t.Fatalf("completed: got %q", statusByTitle["completed"])
	}

	// Newest first.
	if summaries[0].Title != "completed" || summaries[2].Title != "running" {
		t.Fatalf("unexpected order: %q, %q, %q", summaries[0].Title, summaries[1].Title, summaries[2].Title)
	}
}

func TestConversations_CompletedWinsOverStopped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithFinalStep(2))
	user := seedUser(t, s, "conv@resume.ai")
	conv := seedConversation(t, s, user.ID, "both")

	if _, err := s.MarkStoppedOnce(ctx, conv.ID); err != nil {
		t.Fatalf("MarkStoppedOnce: %v", err)
	}
	if err := s.AppendMessage(ctx, conv.ID, core.RoleAssistant, "done", 2); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	summaries, err := s.ListConversations(ctx, user.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if summaries[0].Status != core.StatusCompleted {
		t.Fatalf("expected completed to win, got %q", summaries[0].Status)
	}
}

func TestConversations_Pagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := seedUser(t, s, "conv@resume.ai")

	seedConversation(t, s, user.ID, "first")
	seedConversation(t, s, user.ID, "second")
	seedConversation(t, s, user.ID, "third")

	page, err := s.ListConversations(ctx, user.ID, 2, 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(page) != 2 || page[0].Title != "third" || page[1].Title != "second" {
		t.Fatalf("unexpected first page: %#v", page)
	}

	rest, err := s.ListConversations(ctx, user.ID, 2, 2)
	if err != nil {
		t.Fatalf("ListConversations offset: %v", err)
	}
	if len(rest) != 1 || rest[0].Title != "first" {
		t.Fatalf("unexpected second page: %#v", rest)
	}
}

func TestConversations_HasStepResult(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := seedUser(t, s, "conv@resume.ai")
	conv := seedConversation(t, s, user.ID, "t")

	has, err := s.HasStepResult(ctx, conv.ID, 5)
	if err != nil {
		t.Fatalf("HasStepResult: %v", err)
	}
	if has {
		t.Fatal("no step result expected yet")
	}

	// User messages never count as step results.
	if err := s.AppendMessage(ctx, conv.ID, core.RoleUser, "text", 5); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	has, err = s.HasStepResult(ctx, conv.ID, 5)
	if err != nil {
		t.Fatalf("HasStepResult: %v", err)
	}
	if has {
		t.Fatal("user message must not count as a step result")
	}

	if err := s.AppendMessage(ctx, conv.ID, core.RoleAssistant, "最终裁决", 5); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	has, err = s.HasStepResult(ctx, conv.ID, 5)
	if err != nil {
		t.Fatalf("HasStepResult: %v", err)
	}
	if !has {
		t.Fatal("expected step result after assistant message")
	}
}

func TestConversations_MarkStoppedOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := seedUser(t, s, "conv@resume.ai")
	conv := seedConversation(t, s, user.ID, "t")

	wrote, err := s.MarkStoppedOnce(ctx, conv.ID)
	if err != nil {
		t.Fatalf("MarkStoppedOnce: %v", err)
	}
	if !wrote {
		t.Fatal("first call should write the marker")
	}

	wrote, err = s.MarkStoppedOnce(ctx, conv.ID)
	if err != nil {
		t.Fatalf("MarkStoppedOnce repeat: %v", err)
	}
	if wrote {
		t.Fatal("second call must not write another marker")
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	markers := 0
	for _, msg := range msgs {
		if msg.Role == core.RoleSystem && msg.Content == core.StopMarker {
			markers++
		}
	}
	if markers != 1 {
		t.Fatalf("expected exactly one stop marker, got %d", markers)
	}
}

func TestConversations_MarkStoppedOnceConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := seedUser(t, s, "conv@resume.ai")
	conv := seedConversation(t, s, user.ID, "t")

	const callers = 8
	var (
		wg    sync.WaitGroup
		wrote atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkStoppedOnce(ctx, conv.ID)
			if err != nil {
				t.Errorf("MarkStoppedOnce: %v", err)
				return
			}
			if ok {
				wrote.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wrote.Load(); got != 1 {
		t.Fatalf("expected exactly one caller to write the marker, got %d", got)
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	markers := 0
	for _, msg := range msgs {
		if msg.Role == core.RoleSystem && msg.Content == core.StopMarker {
			markers++
		}
	}
	if markers != 1 {
		t.Fatalf("expected exactly one stop marker, got %d", markers)
	}
}

func TestConversations_DeleteRemovesMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := seedUser(t, s, "conv@resume.ai")
	conv := seedConversation(t, s, user.ID, "t")

	if err := s.AppendMessage(ctx, conv.ID, core.RoleAssistant, "第一步", 1); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := s.DeleteConversation(ctx, user.ID, conv.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	if _, err := s.GetConversation(ctx, user.ID, conv.ID); core.CategoryOf(err) != core.ErrCatNotFound {
		t.Fatalf("expected not_found after delete, got %v", err)
	}
	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected messages gone, got %d", len(msgs))
	}

	if err := s.DeleteConversation(ctx, user.ID, conv.ID); core.CategoryOf(err) != core.ErrCatNotFound {
		t.Fatalf("expected not_found for second delete, got %v", err)
	}
}

func TestConversations_Prune(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := seedUser(t, s, "conv@resume.ai")

	oldest := seedConversation(t, s, user.ID, "oldest")
	middle := seedConversation(t, s, user.ID, "middle")
	newest := seedConversation(t, s, user.ID, "newest")
	if err := s.AppendMessage(ctx, oldest.ID, core.RoleAssistant, "step", 1); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	pruned, err := s.PruneConversations(ctx, user.ID, 2)
	if err != nil {
		t.Fatalf("PruneConversations: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned, got %d", pruned)
	}

	summaries, err := s.ListConversations(ctx, user.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(summaries) != 2 || summaries[0].ID != newest.ID || summaries[1].ID != middle.ID {
		t.Fatalf("unexpected survivors: %#v", summaries)
	}

	// Victim's messages are gone with it.
	msgs, err := s.ListMessages(ctx, oldest.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected pruned conversation messages gone, got %d", len(msgs))
	}

	// Nothing more to prune.
	pruned, err = s.PruneConversations(ctx, user.ID, 2)
	if err != nil {
		t.Fatalf("PruneConversations repeat: %v", err)
	}
	if pruned != 0 {
		t.Fatalf("expected 0 pruned, got %d", pruned)
	}
}
