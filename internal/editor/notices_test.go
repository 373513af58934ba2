package editor

import (
	"testing"
	"time"
)

func TestNoticeStore_OneCaptionNoticePerStep(t *testing.T) {
	s := NewNoticeStore(time.Hour)
	s.Add(NoticeCaption, "step-1", "first")
	second := s.Add(NoticeCaption, "step-1", "second")
	s.Add(NoticeExport, "", "export failed")

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 notices, got %d", len(list))
	}
	if list[0].ID != second.ID {
		t.Errorf("expected replacement notice first, got %+v", list[0])
	}
}

func TestNoticeStore_Expires(t *testing.T) {
	s := NewNoticeStore(10 * time.Millisecond)
	s.Add(NoticeStorage, "", "save failed")
	time.Sleep(25 * time.Millisecond)
	if n := len(s.List()); n != 0 {
		t.Errorf("expected expired notice evicted, got %d", n)
	}
}

func TestNoticeStore_ClearStep(t *testing.T) {
	s := NewNoticeStore(time.Hour)
	if s.ClearStep("x") {
		t.Error("expected nothing to clear")
	}
	s.Add(NoticeCaption, "x", "failed")
	if !s.ClearStep("x") || len(s.List()) != 0 {
		t.Error("expected step notice cleared")
	}
}
