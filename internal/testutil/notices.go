// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"sync"

	"clinic-console/internal/notice"
)

// NoticeRecorder keeps every notice in memory.
type NoticeRecorder struct {
	mu      sync.Mutex
	notices []notice.Notice
}

func (r *NoticeRecorder) Notify(_ context.Context, n notice.Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *NoticeRecorder) Notices() []notice.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notice.Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

func (r *NoticeRecorder) Last() (notice.Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return notice.Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}
