// Package domain holds the pipeline's core entities: Video, Task, Account
// and the enums that describe their lifecycle states.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// VideoID, TaskID and AccountID are opaque identifiers. They are named
// string types rather than raw uuid.UUID so repository rows and queue
// payloads serialize them identically.
type VideoID string
type TaskID string
type AccountID string

// InfoHash is always normalized to lowercase, without any "urn:btih:" prefix.
type InfoHash string

// NormalizeInfoHash trims a magnet-link-style prefix and lowercases the hash.
func NormalizeInfoHash(raw string) InfoHash {
	h := strings.TrimSpace(raw)
	h = strings.TrimPrefix(h, "urn:btih:")
	h = strings.TrimPrefix(h, "URN:BTIH:")
	return InfoHash(strings.ToLower(h))
}

// VideoStatus mirrors the lifecycle of a discovered piece of media.
type VideoStatus string

const (
	VideoDiscovered VideoStatus = "discovered"
	VideoDownloading VideoStatus = "downloading"
	VideoDownloaded  VideoStatus = "downloaded"
	VideoUploading   VideoStatus = "uploading"
	VideoAvailable   VideoStatus = "available"
	VideoExpired     VideoStatus = "expired"
	VideoFailed      VideoStatus = "failed"
)

// TaskState mirrors the lifecycle of a unit of work routed through a queue.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskDownloading TaskState = "downloading"
	TaskRemuxing    TaskState = "remuxing"
	TaskUploading   TaskState = "uploading"
	TaskVerifying   TaskState = "verifying"
	TaskComplete    TaskState = "complete"
	TaskFailed      TaskState = "failed"
)

// TransientTaskStates are the non-terminal task states; a task in any of
// them counts as an open task for its video. The orchestrator's GC pass
// reaps tasks idle too long in these states except pending, i.e. the
// states a task is left in when a worker dies mid-flight.
var TransientTaskStates = []TaskState{
	TaskPending, TaskDownloading, TaskRemuxing, TaskUploading, TaskVerifying,
}

// IsTerminal reports whether a task state will never transition further.
func (s TaskState) IsTerminal() bool {
	return s == TaskComplete || s == TaskFailed
}

// AccountStatus mirrors an upload account's availability for scheduling.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountCooldown  AccountStatus = "cooldown"
	AccountBanned    AccountStatus = "banned"
	AccountUnverified AccountStatus = "unverified"
)

// Video is a discovered piece of media tracked through download and upload.
type Video struct {
	ID        VideoID
	Title     string
	MagnetURI string
	InfoHash  InfoHash
	LocalPath string
	ShareURL  string
	CDNURL    string
	Status    VideoStatus
	Metadata  json.RawMessage
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Task is a single unit of work moving a Video through one pipeline stage.
type Task struct {
	ID           TaskID
	VideoID      VideoID
	AccountID    *AccountID
	State        TaskState
	QueueName    string
	LocalPath    string
	ShareURL     string
	Retries      int
	MaxRetries   int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Account is an upload destination subject to daily quota and cooldown.
type Account struct {
	ID               AccountID
	Email            string
	Status           AccountStatus
	DailyQuotaBytes  int64
	DailyUploadedBytes int64
	QuotaResetAt     time.Time
	CooldownUntil    *time.Time
	LeaseExpiresAt   *time.Time
	LastUsedAt       *time.Time
	CreatedAt        time.Time
}

// NormalizeTags trims, drops empties and dedupes, matching the convention
// the repository layer applies before tags ever reach storage.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		v := strings.TrimSpace(t)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
