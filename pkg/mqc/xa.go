package mqc

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/nclabs/mqgo/pkg/mqerr"
)

// XA flag values, matching the javax.transaction.xa.XAResource constants
// this client's XA verbs are shaped after.
const (
	XATMNoFlags    int32 = 0
	XATMJoin       int32 = 1 << 21
	XATMEndRScan   int32 = 1 << 23
	XATMStartRScan int32 = 1 << 24
	XATMSuspend    int32 = 1 << 25
	XATMSuccess    int32 = 1 << 26
	XATMResume     int32 = 1 << 27
	XATMFail       int32 = 1 << 29
	XATMOnePhase   int32 = 1 << 30
)

// Xid is a transaction branch identifier: a format id plus up to 64-byte
// global transaction id and branch qualifier, following the XA spec's Xid
// shape rather than anything broker-specific.
type Xid struct {
	FormatID int32
	Gtrid    []byte
	Bqual    []byte
}

// newGtrid generates a fresh global transaction id as a UUID, the Go
// ecosystem's idiomatic source of process-unique random bytes, already
// used elsewhere in this client for ClientID generation.
func newGtrid() []byte {
	id := uuid.New()
	return id[:]
}

// NewXid returns a fresh Xid with a generated Gtrid and the given branch
// qualifier (may be nil for a non-branched transaction).
func NewXid(formatID int32, bqual []byte) Xid {
	return Xid{FormatID: formatID, Gtrid: newGtrid(), Bqual: bqual}
}

// encode serializes an Xid as formatId(4) + gtridLen(1) + bqualLen(1) +
// gtrid + bqual, the layout recoverTransaction's reply body repeats.
func (x Xid) encode() []byte {
	buf := make([]byte, 4+1+1+len(x.Gtrid)+len(x.Bqual))
	binary.BigEndian.PutUint32(buf[0:4], uint32(x.FormatID))
	buf[4] = byte(len(x.Gtrid))
	buf[5] = byte(len(x.Bqual))
	copy(buf[6:6+len(x.Gtrid)], x.Gtrid)
	copy(buf[6+len(x.Gtrid):], x.Bqual)
	return buf
}

// decodeXids parses the concatenated Xid vector returned by
// RECOVER_TRANSACTION_REPLY.
func decodeXids(data []byte) ([]Xid, error) {
	var out []Xid
	for len(data) > 0 {
		if len(data) < 6 {
			return nil, fmt.Errorf("mqc: truncated xid vector")
		}
		formatID := int32(binary.BigEndian.Uint32(data[0:4]))
		gtridLen := int(data[4])
		bqualLen := int(data[5])
		need := 6 + gtridLen + bqualLen
		if len(data) < need {
			return nil, fmt.Errorf("mqc: truncated xid entry")
		}
		gtrid := make([]byte, gtridLen)
		copy(gtrid, data[6:6+gtridLen])
		bqual := make([]byte, bqualLen)
		copy(bqual, data[6+gtridLen:need])
		out = append(out, Xid{FormatID: formatID, Gtrid: gtrid, Bqual: bqual})
		data = data[need:]
	}
	return out, nil
}

// XAResource exposes the distributed-transaction verbs over one
// Connection, shaped after javax.transaction.xa.XAResource: the broker
// associates an XA branch with exactly one session at a time.
type XAResource struct {
	conn    *Connection
	session *Session
}

// NewXAResource binds an XAResource to a session opened in XA mode.
func NewXAResource(conn *Connection, session *Session) *XAResource {
	return &XAResource{conn: conn, session: session}
}

// Start associates xid with this resource's session, starting (or
// resuming/joining, via flags) a branch.
func (r *XAResource) Start(xid Xid, flags int32) error {
	if r.session.xid != nil && flags&(XATMJoin|XATMResume) == 0 {
		return mqerr.New(mqerr.XaSessionInProgress)
	}
	tid, err := r.conn.engine.startTransaction(r.session.id, flags, xid.encode())
	if err != nil {
		return err
	}
	r.session.transactionID = tid
	r.session.xid = &xid
	return nil
}

// End disassociates xid from this resource's session (TMSUCCESS,
// TMFAIL, or TMSUSPEND).
func (r *XAResource) End(xid Xid, flags int32) error {
	return r.conn.engine.endTransaction(r.session.transactionID, flags)
}

// Prepare asks the broker to vote on xid, phase one of two-phase commit.
func (r *XAResource) Prepare(xid Xid) error {
	return r.conn.engine.prepareTransaction(r.session.transactionID)
}

// Commit completes xid, with onePhase true skipping the prepare phase.
func (r *XAResource) Commit(xid Xid, onePhase bool) error {
	err := r.conn.engine.commitTransaction(r.session.transactionID, onePhase)
	r.session.xid = nil
	return err
}

// Rollback aborts xid.
func (r *XAResource) Rollback(xid Xid) error {
	err := r.conn.engine.rollbackTransaction(r.session.transactionID)
	r.session.xid = nil
	return err
}

// Recover returns the broker's in-doubt transaction branches, scanning per
// the TMSTARTRSCAN/TMNOFLAGS/TMENDRSCAN cursor protocol: callers start a
// scan with TMSTARTRSCAN, repeat with TMNOFLAGS until the result is empty,
// then close the cursor with TMENDRSCAN. This client keeps no scan cursor
// of its own: each call sends RECOVER_TRANSACTION with flags and returns
// the Xids in the broker's reply.
func (r *XAResource) Recover(flags int32) ([]Xid, error) {
	return r.conn.engine.recoverTransaction(flags)
}

