package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/example/lesion-check/internal/media"
)

func TestBusDeliversToInbox(t *testing.T) {
	bus := NewBus()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bus.now = func() time.Time { return fixed }

	inbox := NewInbox(2)
	if err := inbox.Attach(bus); err != nil {
		t.Fatalf("attach: %v", err)
	}

	bus.Notify(Notification{Kind: KindNoImage})
	bus.Notify(Notification{Kind: KindConsentRequired})
	bus.Notify(Notification{Kind: KindAnalysisComplete})

	recent := inbox.Recent()
	if len(recent) != 2 {
		t.Fatalf("expected inbox to keep 2 items, got %d", len(recent))
	}
	if recent[0].Kind != KindConsentRequired || recent[1].Kind != KindAnalysisComplete {
		t.Fatalf("unexpected order: %+v", recent)
	}
	if !recent[0].At.Equal(fixed) {
		t.Fatalf("expected timestamp to be stamped, got %v", recent[0].At)
	}

	if drained := inbox.Drain(); len(drained) != 2 {
		t.Fatalf("expected 2 drained, got %d", len(drained))
	}
	if len(inbox.Recent()) != 0 {
		t.Fatal("expected empty inbox after drain")
	}
}

func TestForAcquisitionError(t *testing.T) {
	cases := map[error]Kind{
		media.ErrInvalidFormat:     KindInvalidFormat,
		media.ErrTooLarge:          KindTooLarge,
		media.ErrCameraUnavailable: KindCameraUnavailable,
		media.ErrEmptySelection:    KindEmptySelection,
	}
	for err, want := range cases {
		n, ok := ForAcquisitionError(fmt.Errorf("wrapped: %w", err), media.DefaultMaxBytes)
		if !ok || n.Kind != want || !n.Destructive {
			t.Fatalf("%v: unexpected notification %+v (ok=%v)", err, n, ok)
		}
	}

	n, _ := ForAcquisitionError(media.ErrTooLarge, media.DefaultMaxBytes)
	if n.Message != "Maximum file size is 8MB." {
		t.Fatalf("unexpected message %q", n.Message)
	}
	if _, ok := ForAcquisitionError(fmt.Errorf("disk full"), 0); ok {
		t.Fatal("unrelated errors have no notification")
	}
}
