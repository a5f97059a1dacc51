package core

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func newTypingTest() (*TypingCoordinator, *fakeSignaler, *clock.Mock) {
	clk := clock.NewMock()
	sig := &fakeSignaler{}
	tc := NewTypingCoordinator("bob", "chat", sig, clk, 2*time.Second, 1500*time.Millisecond, nil)
	return tc, sig, clk
}

func TestTypingThrottlesToOnePerWindow(t *testing.T) {
	tc, sig, clk := newTypingTest()
	defer tc.Close()

	for i := 0; i < 10; i++ {
		tc.OnInput("hello")
		clk.Add(150 * time.Millisecond)
	}
	// 1.5s elapsed: still inside the first window.
	if n := sig.count(true); n != 1 {
		t.Fatalf("expected 1 typing=true, got %d", n)
	}

	clk.Add(500 * time.Millisecond)
	tc.OnInput("hello!")
	if n := sig.count(true); n != 2 {
		t.Fatalf("expected a second typing=true after the window, got %d", n)
	}
}

func TestTypingNeverExceedsWindowRate(t *testing.T) {
	tc, sig, clk := newTypingTest()
	defer tc.Close()

	for i := 0; i < 100; i++ {
		tc.OnInput("x")
		clk.Add(90 * time.Millisecond)
	}
	// 9s of steady typing allows at most one signal per 2s window.
	if n := sig.count(true); n > 5 {
		t.Fatalf("throttle exceeded: %d typing=true in 9s", n)
	}
}

func TestTypingQuietSendsFalse(t *testing.T) {
	tc, sig, clk := newTypingTest()
	defer tc.Close()

	tc.OnInput("h")
	clk.Add(1 * time.Second)
	tc.OnInput("he")
	clk.Add(1 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if n := sig.count(false); n != 0 {
		t.Fatalf("quiet timer should restart on each keystroke, got %d false", n)
	}

	clk.Add(600 * time.Millisecond)
	eventually(t, "typing=false after quiet period", func() bool { return sig.count(false) == 1 })

	calls := sig.typingCalls()
	if last := calls[len(calls)-1]; last.isTyping || last.conversationID != "bob" {
		t.Fatalf("unexpected last signal: %+v", last)
	}
}

func TestTypingClearedInputStopsImmediately(t *testing.T) {
	tc, sig, clk := newTypingTest()
	defer tc.Close()

	tc.OnInput("h")
	tc.OnInput("   ")
	if n := sig.count(false); n != 1 {
		t.Fatalf("expected immediate typing=false, got %d", n)
	}

	clk.Add(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if n := sig.count(false); n != 1 {
		t.Fatalf("cancelled timer fired: %d typing=false", n)
	}
}

func TestTypingStopWithoutActiveSendsNothing(t *testing.T) {
	tc, sig, _ := newTypingTest()
	defer tc.Close()

	tc.Stop()
	if calls := sig.typingCalls(); len(calls) != 0 {
		t.Fatalf("unexpected signals: %+v", calls)
	}
}

func TestTypingCloseCancelsPendingFalse(t *testing.T) {
	tc, sig, clk := newTypingTest()

	tc.OnInput("h")
	tc.Close()
	clk.Add(5 * time.Second)
	time.Sleep(20 * time.Millisecond)

	if n := sig.count(false); n != 0 {
		t.Fatalf("closed coordinator broadcast typing=false %d times", n)
	}
	tc.OnInput("more")
	if n := sig.count(true); n != 1 {
		t.Fatalf("closed coordinator must ignore input, got %d true", n)
	}
}
