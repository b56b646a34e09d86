package mqc

import (
	"sync"

	"github.com/nclabs/mqgo/pkg/mqerr"
)

// FlowController tracks an undelivered message count (connection-wide, or
// for one consumer) and issues RESUME_FLOW through tryResume, which runs
// after every delivery and every FlowPaused arrival. resumeRequested
// records a FlowPaused arrival but does not gate the resume.
type FlowController struct {
	mu sync.Mutex

	enabled         bool
	chunkCount      int32
	waterMark       int32
	undeliveredCnt  int32
	resumeRequested bool

	resume func() error
}

// NewFlowController builds a FlowController. resume is called to emit the
// RESUME_FLOW packet; enabled/chunkCount/waterMark come from the
// connection's flow-limit-enabled/-count configuration.
func NewFlowController(enabled bool, chunkCount, waterMark int32, resume func() error) *FlowController {
	return &FlowController{enabled: enabled, chunkCount: chunkCount, waterMark: waterMark, resume: resume}
}

// OnMessageArrived bumps the undelivered count for an inbound message.
func (f *FlowController) OnMessageArrived() {
	f.mu.Lock()
	f.undeliveredCnt++
	f.mu.Unlock()
}

// OnMessageDelivered decrements the undelivered count and attempts resume.
func (f *FlowController) OnMessageDelivered() error {
	f.mu.Lock()
	f.undeliveredCnt--
	f.mu.Unlock()
	return f.tryResume()
}

// OnFlowPaused is called when an inbound packet carries the FlowPaused
// flag; it requests a resume attempt.
func (f *FlowController) OnFlowPaused() error {
	f.mu.Lock()
	f.resumeRequested = true
	f.mu.Unlock()
	return f.tryResume()
}

// tryResume sends RESUME_FLOW when flow limiting is disabled, or the
// undelivered count has fallen under the configured water mark.
func (f *FlowController) tryResume() error {
	f.mu.Lock()
	shouldResume := !f.enabled || f.undeliveredCnt < f.waterMark
	if !shouldResume {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	if f.resume == nil {
		return nil
	}
	if err := f.resume(); err != nil {
		return err
	}
	f.mu.Lock()
	f.resumeRequested = false
	f.mu.Unlock()
	return nil
}

// ProducerFlow is the per-producer broker-granted send credit.
type ProducerFlow struct {
	mu   sync.Mutex
	cond *sync.Cond

	producerID uint64
	chunkBytes int64
	chunkSize  int64
	sentCount  int64
	closed     bool
	closeErr   error

	onThrottle func(producerID uint64)
}

// NewProducerFlow builds a ProducerFlow for producerID with initial credit.
// A negative chunkBytes or chunkSize means that dimension is unlimited.
func NewProducerFlow(producerID uint64, chunkBytes, chunkSize int64, onThrottle func(uint64)) *ProducerFlow {
	pf := &ProducerFlow{producerID: producerID, chunkBytes: chunkBytes, chunkSize: chunkSize, onThrottle: onThrottle}
	pf.cond = sync.NewCond(&pf.mu)
	return pf
}

// CheckFlowControl is called before every send; it blocks until credit is
// available or the flow is closed.
func (pf *ProducerFlow) CheckFlowControl(bodyBytes int) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	for {
		if pf.closed {
			if pf.closeErr != nil {
				return pf.closeErr
			}
			return mqerr.New(mqerr.ProducerClosed)
		}
		if pf.chunkSize < 0 && pf.chunkBytes < 0 {
			pf.sentCount++
			return nil
		}
		wouldExhaustSize := pf.chunkSize >= 0 && pf.chunkSize-1 < 0
		wouldExhaustBytes := pf.chunkBytes >= 0 && pf.chunkBytes-int64(bodyBytes) < 0
		if wouldExhaustSize || wouldExhaustBytes {
			if pf.onThrottle != nil {
				pf.onThrottle(pf.producerID)
			}
			pf.cond.Wait()
			continue
		}
		if pf.chunkSize >= 0 {
			pf.chunkSize--
		}
		if pf.chunkBytes >= 0 {
			pf.chunkBytes -= int64(bodyBytes)
		}
		pf.sentCount++
		return nil
	}
}

// ResumeFlow replaces the credit with a RESUME_FLOW packet's
// JMQBytes/JMQSize values. A negative value makes that dimension
// unlimited; the dispatcher passes -1 for an absent property.
func (pf *ProducerFlow) ResumeFlow(bytes, size int64) {
	pf.mu.Lock()
	pf.chunkBytes = bytes
	pf.chunkSize = size
	pf.cond.Broadcast()
	pf.mu.Unlock()
}

// Close wakes every blocked sender with err.
func (pf *ProducerFlow) Close(err error) {
	pf.mu.Lock()
	pf.closed = true
	pf.closeErr = err
	pf.cond.Broadcast()
	pf.mu.Unlock()
}
