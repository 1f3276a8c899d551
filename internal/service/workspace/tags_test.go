package workspace

import (
	"context"
	"testing"
)

func TestAttachAndDetachTagCounts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := createTestUser(t, svc, "tagger")
	spaceID := createTestSpace(t, svc, userID, "Main")

	if err := svc.AttachTag(ctx, userID, spaceID, "golang"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := svc.AttachTag(ctx, userID, spaceID, "golang"); err != nil {
		t.Fatalf("second attach: %v", err)
	}
	tag, err := svc.GetTag(ctx, userID, "golang")
	if err != nil {
		t.Fatalf("get tag: %v", err)
	}
	if tag == nil || tag.ChatNum != 2 {
		t.Fatalf("tag = %+v, want chat_num 2", tag)
	}

	if err := svc.DetachTag(ctx, userID, "golang"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	tag, _ = svc.GetTag(ctx, userID, "golang")
	if tag == nil || tag.ChatNum != 1 {
		t.Fatalf("tag = %+v, want chat_num 1", tag)
	}

	// Last detach removes the entry instead of leaving a zero count.
	if err := svc.DetachTag(ctx, userID, "golang"); err != nil {
		t.Fatalf("final detach: %v", err)
	}
	tag, _ = svc.GetTag(ctx, userID, "golang")
	if tag != nil {
		t.Fatalf("tag should be gone, got %+v", tag)
	}
}

func TestDetachAbsentTagIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	userID := createTestUser(t, svc, "quiet")
	if err := svc.DetachTag(context.Background(), userID, "never-attached"); err != nil {
		t.Fatalf("detach absent tag: %v", err)
	}
}

func TestTagTitlesAreCaseSensitive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := createTestUser(t, svc, "casey")
	spaceID := createTestSpace(t, svc, userID, "Main")

	if err := svc.AttachTag(ctx, userID, spaceID, "Go"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := svc.AttachTag(ctx, userID, spaceID, "go"); err != nil {
		t.Fatalf("attach lower: %v", err)
	}
	tags, err := svc.ListTags(ctx, userID)
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("tags = %+v, want two distinct entries", tags)
	}
}

func TestChatTagsAttachExactlyOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := createTestUser(t, svc, "frank")
	spaceID := createTestSpace(t, svc, userID, "Main")
	chat, err := svc.CreateChat(ctx, userID, spaceID)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	if err := svc.AddChatTag(ctx, userID, chat.ID, "ideas"); err != nil {
		t.Fatalf("add chat tag: %v", err)
	}
	// The chat already carries the tag; the index count must not move.
	if err := svc.AddChatTag(ctx, userID, chat.ID, "ideas"); err != nil {
		t.Fatalf("repeat add chat tag: %v", err)
	}
	tag, _ := svc.GetTag(ctx, userID, "ideas")
	if tag == nil || tag.ChatNum != 1 {
		t.Fatalf("tag = %+v, want chat_num 1", tag)
	}

	got, err := svc.GetChat(ctx, userID, chat.ID)
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "ideas" {
		t.Fatalf("chat tags = %+v", got.Tags)
	}

	if err := svc.RemoveChatTag(ctx, userID, chat.ID, "ideas"); err != nil {
		t.Fatalf("remove chat tag: %v", err)
	}
	if tag, _ := svc.GetTag(ctx, userID, "ideas"); tag != nil {
		t.Fatalf("tag should be deleted, got %+v", tag)
	}
	got, _ = svc.GetChat(ctx, userID, chat.ID)
	if len(got.Tags) != 0 {
		t.Fatalf("chat tags = %+v, want empty", got.Tags)
	}
}
