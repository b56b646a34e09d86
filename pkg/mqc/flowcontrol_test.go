package mqc

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nclabs/mqgo/pkg/mqerr"
)

// TestProducerFlowBlocksOnExhaustedCredit checks that once a ProducerFlow's
// chunkSize credit is spent, CheckFlowControl blocks a sender rather than
// letting it through, fires the throttle callback at least once while the
// sender is blocked, and releases the sender as soon as ResumeFlow grants new credit.
func TestProducerFlowBlocksOnExhaustedCredit(t *testing.T) {
	var throttleCount int32
	pf := NewProducerFlow(1, -1, 2, func(uint64) {
		atomic.AddInt32(&throttleCount, 1)
	})

	if err := pf.CheckFlowControl(10); err != nil {
		t.Fatalf("send 1: %v", err)
	}
	if err := pf.CheckFlowControl(10); err != nil {
		t.Fatalf("send 2: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	blockedReturned := make(chan struct{})
	go func() {
		defer wg.Done()
		if err := pf.CheckFlowControl(10); err != nil {
			t.Errorf("blocked send: %v", err)
		}
		close(blockedReturned)
	}()

	select {
	case <-blockedReturned:
		t.Fatal("third send returned before credit was granted; flow control did not block")
	case <-time.After(100 * time.Millisecond):
	}

	if got := atomic.LoadInt32(&throttleCount); got == 0 {
		t.Error("expected onThrottle to have fired at least once while blocked")
	}

	pf.ResumeFlow(-1, 5)

	select {
	case <-blockedReturned:
	case <-time.After(time.Second):
		t.Fatal("blocked send did not return after ResumeFlow granted credit")
	}
	wg.Wait()
}

// TestProducerFlowCloseWakesBlockedSenders checks that Close releases every
// goroutine parked in CheckFlowControl and that they observe the supplied
// error instead of hanging forever.
func TestProducerFlowCloseWakesBlockedSenders(t *testing.T) {
	pf := NewProducerFlow(1, -1, 0, nil)

	const waiters = 5
	errs := make(chan error, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- pf.CheckFlowControl(1)
		}()
	}

	time.Sleep(50 * time.Millisecond)

	sentinel := &wireCloseError{}
	pf.Close(sentinel)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not wake every blocked sender")
	}
	close(errs)
	for err := range errs {
		if err != sentinel {
			t.Errorf("blocked sender returned %v, want sentinel", err)
		}
	}
}

type wireCloseError struct{}

func (*wireCloseError) Error() string { return "producer flow closed" }

// TestProducerFlowCloseWithNilCauseYieldsProducerClosed checks the default
// close error a blocked Send observes, matching spec scenario 6's literal
// expectation ("closing the producer while blocked wakes the caller with
// ProducerClosed").
func TestProducerFlowCloseWithNilCauseYieldsProducerClosed(t *testing.T) {
	pf := NewProducerFlow(1, -1, 0, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- pf.CheckFlowControl(1) }()
	time.Sleep(50 * time.Millisecond)

	pf.Close(nil)

	select {
	case err := <-errCh:
		if kind, ok := mqerr.KindOf(err); !ok || kind != mqerr.ProducerClosed {
			t.Errorf("blocked Send returned %v, want mqerr.ProducerClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close(nil) did not wake the blocked sender")
	}
}

// TestFlowControllerResumesUnderWaterMark checks that the connection-wide
// FlowController calls resume once the undelivered count drops below the
// configured water mark, and not before.
func TestFlowControllerResumesUnderWaterMark(t *testing.T) {
	var resumeCalls int32
	fc := NewFlowController(true, 10, 2, func() error {
		atomic.AddInt32(&resumeCalls, 1)
		return nil
	})

	fc.OnMessageArrived()
	fc.OnMessageArrived()
	fc.OnMessageArrived()
	if err := fc.OnMessageDelivered(); err != nil {
		t.Fatalf("OnMessageDelivered: %v", err)
	}
	if got := atomic.LoadInt32(&resumeCalls); got != 0 {
		t.Errorf("resume called %d times while still at/above water mark, want 0", got)
	}

	if err := fc.OnMessageDelivered(); err != nil {
		t.Fatalf("OnMessageDelivered: %v", err)
	}
	if got := atomic.LoadInt32(&resumeCalls); got == 0 {
		t.Error("expected resume to be called once undelivered count fell under the water mark")
	}
}
