package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func TestRedisProgressTracker_SetGet(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	tracker := NewRedisProgressTracker(client, time.Hour)
	ctx := context.Background()

	progress := model.NewProgress("s1", model.ProgressConverting, "completed", 40, map[string]any{
		"format": "mp4",
	})
	progress.UpdatedAt = progress.UpdatedAt.Truncate(time.Microsecond)

	if err := tracker.Set(ctx, progress); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := tracker.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected progress, got nil")
	}

	if got.SessionID != "s1" {
		t.Errorf("SessionID = %v, want s1", got.SessionID)
	}
	if got.Status != model.ProgressConverting {
		t.Errorf("Status = %v, want %v", got.Status, model.ProgressConverting)
	}
	if got.Phase != "completed" {
		t.Errorf("Phase = %v, want completed", got.Phase)
	}
	if got.Percentage != 40 {
		t.Errorf("Percentage = %v, want 40", got.Percentage)
	}
	if got.Data["format"] != "mp4" {
		t.Errorf("Data = %v", got.Data)
	}
	if !got.UpdatedAt.Equal(progress.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, progress.UpdatedAt)
	}
}

func TestRedisProgressTracker_Get_Untracked(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	tracker := NewRedisProgressTracker(client, time.Hour)

	got, err := tracker.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for untracked session, got %+v", got)
	}
}

func TestRedisProgressTracker_TTL(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	tracker := NewRedisProgressTracker(client, 10*time.Minute)
	ctx := context.Background()

	if err := tracker.Set(ctx, model.NewProgress("s1", model.ProgressUploading, "uploading", 10, nil)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if ttl := mr.TTL("progress:s1"); ttl != 10*time.Minute {
		t.Errorf("TTL = %v, want 10m", ttl)
	}

	mr.FastForward(11 * time.Minute)

	got, err := tracker.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected expired snapshot, got %+v", got)
	}
}

func TestRedisProgressTracker_Delete(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	tracker := NewRedisProgressTracker(client, time.Hour)
	ctx := context.Background()

	if err := tracker.Set(ctx, model.NewProgress("s1", model.ProgressFailed, "failed", 0, nil)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !mr.Exists("progress:s1") {
		t.Fatal("key not stored")
	}

	if err := tracker.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mr.Exists("progress:s1") {
		t.Error("key still present after Delete")
	}

	if err := tracker.Delete(ctx, "s1"); err != nil {
		t.Errorf("Delete on untracked session failed: %v", err)
	}
}

func TestRedisProgressTracker_Get_CorruptValue(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	mr.Set("progress:s1", "not json")
	tracker := NewRedisProgressTracker(client, time.Hour)

	if _, err := tracker.Get(context.Background(), "s1"); err == nil {
		t.Error("expected error for corrupt value")
	}
}

func TestRedisProgressTracker_Ping(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	if err := NewRedisProgressTracker(client, time.Hour).Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestRedisProgressTracker_buildKey(t *testing.T) {
	tracker := &RedisProgressTracker{}
	if got := tracker.buildKey("abc"); got != "progress:abc" {
		t.Errorf("buildKey() = %v, want progress:abc", got)
	}
}
