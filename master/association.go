// Package master implements the DNP3 master station: per-association
// task scheduling, application sequence-number assignment, the
// SELECT-before-OPERATE composite command, and retry/backoff for
// transport-level failures.
package master

import (
	"context"
	"errors"
	"time"

	"github.com/rob-gra/go-dnp3"
	"github.com/rob-gra/go-dnp3/apdu"
	"github.com/rob-gra/go-dnp3/cursor"
	"github.com/rob-gra/go-dnp3/dnplog"
	"github.com/rob-gra/go-dnp3/objects"
)

var (
	// ErrResponseTimeout is returned when no response fragment arrives
	// within the configured response timeout.
	ErrResponseTimeout = errors.New("master: response timeout")
	// ErrUnexpectedFunction is returned when a solicited response's
	// function code is not RESPONSE (UNSOLICITED_RESPONSE included).
	ErrUnexpectedFunction = errors.New("master: unexpected function code in response")
	// ErrSequenceMismatch is returned when a solicited response's
	// sequence number does not match the request that was sent.
	ErrSequenceMismatch = errors.New("master: response sequence does not match request")
	// ErrOperateEchoMismatch is returned when an OPERATE response echoes
	// a CROB that does not match the one requested (IEEE-1815 §5.1.6.2).
	ErrOperateEchoMismatch = errors.New("master: operate response does not echo the request")
	// ErrNoObjectInResponse is returned when a command response carries
	// no object matching the requested index.
	ErrNoObjectInResponse = errors.New("master: response carries no matching object")
)

// FragmentTransport sends and receives whole application fragments for
// one association, hiding link framing and pseudo-transport reassembly
// behind a single request/response primitive. Production wiring
// assembles this from link.Layer + transport.Assembler/Fragmenter over a
// runtime.ByteChannel; tests substitute an in-memory fake.
type FragmentTransport interface {
	SendFragment(ctx context.Context, fragment []byte) error
	RecvFragment(ctx context.Context) ([]byte, error)
}

// AssociationConfig configures one master-to-outstation association.
type AssociationConfig struct {
	Name            string
	Address         uint16
	ResponseTimeout time.Duration // default 5s
	SelectTimeout   time.Duration // default 10s
	IntegrityPeriod time.Duration
	Backoff         Backoff
}

// applyDefaults fills unset durations with their standard values.
func (c *AssociationConfig) applyDefaults() {
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = 5 * time.Second
	}
	if c.SelectTimeout == 0 {
		c.SelectTimeout = 10 * time.Second
	}
	if c.Backoff == (Backoff{}) {
		c.Backoff = DefaultBackoff()
	}
}

// Association is one master-to-outstation session: its task queue,
// application sequence counter, and the transport it speaks over.
type Association struct {
	cfg       AssociationConfig
	transport FragmentTransport
	queue     *TaskQueue
	seq       byte // 4-bit application sequence, mod 16
	backoff   Backoff
	log       dnplog.Logger

	lastIIN     apdu.IIN
	haveLastIIN bool
}

// NewAssociation creates an Association bound to transport.
func NewAssociation(cfg AssociationConfig, transport FragmentTransport, log dnplog.Logger) *Association {
	cfg.applyDefaults()
	return &Association{
		cfg:       cfg,
		transport: transport,
		queue:     NewTaskQueue(),
		backoff:   cfg.Backoff,
		log:       log,
	}
}

// Config returns the association's configuration.
func (a *Association) Config() AssociationConfig { return a.cfg }

// Queue returns the association's task queue.
func (a *Association) Queue() *TaskQueue { return a.queue }

func (a *Association) nextSeq() byte {
	s := a.seq
	a.seq = (a.seq + 1) & 0x0F
	return s
}

// requestResponse sends one request fragment and waits up to
// cfg.ResponseTimeout for the matching solicited response. It makes a
// single attempt: transport errors and application-level errors are
// returned to the caller as-is, and a.backoff is not consulted.
func (a *Association) requestResponse(ctx context.Context, fragment []byte, wantSeq byte) ([]byte, error) {
	if err := a.transport.SendFragment(ctx, fragment); err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, a.cfg.ResponseTimeout)
	defer cancel()

	resp, err := a.transport.RecvFragment(timeoutCtx)
	if err != nil {
		if timeoutCtx.Err() != nil {
			return nil, ErrResponseTimeout
		}
		return nil, err
	}

	hdr, _, err := apdu.DecodeHeader(resp)
	if err != nil {
		return nil, err
	}
	if hdr.Function != dnp3.FuncResponse {
		return nil, ErrUnexpectedFunction
	}
	if hdr.Seq != wantSeq {
		return nil, ErrSequenceMismatch
	}
	a.lastIIN = hdr.IIN
	a.haveLastIIN = true
	return resp, nil
}

// LastIIN returns the Internal Indications carried by the most recently
// matched response, and whether any response has been matched yet.
func (a *Association) LastIIN() (apdu.IIN, bool) {
	return a.lastIIN, a.haveLastIIN
}

// encodeCrobRequest builds a one-object SELECT/OPERATE/DIRECT_OPERATE
// fragment for group 12 variation 1, index-prefixed (qualifier 0x17,
// 8-bit prefix, one object), the standard wire shape for command
// requests against a single point.
func encodeCrobRequest(fn dnp3.FunctionCode, seq byte, index uint16, crob objects.ControlRelayOutputBlock) []byte {
	w := cursor.NewWriter(2048)
	hdrBytes := apdu.EncodeHeader(apdu.Header{Fir: true, Fin: true, Seq: seq, Function: fn})
	_ = w.PutBytes(hdrBytes)
	_ = w.PutByte(12)
	_ = w.PutByte(1)
	_ = w.PutByte(byte(objects.Qualifier8BitPrefixCount))
	_ = w.PutByte(1) // count = 1
	_ = w.PutByte(byte(index))
	_ = objects.Encode(crob, w)
	return w.Bytes()
}

// decodeCrobResponse parses a command response fragment, returning the
// application header and the single echoed CROB object for index.
func decodeCrobResponse(resp []byte, index uint16) (apdu.Header, objects.ControlRelayOutputBlock, error) {
	hdr, n, err := apdu.DecodeHeader(resp)
	if err != nil {
		return hdr, objects.ControlRelayOutputBlock{}, err
	}
	cur := cursor.NewReader(resp[n:])
	for cur.Remaining() > 0 {
		_, it, err := apdu.NewObjectHeaderIterator(cur)
		if err != nil {
			return hdr, objects.ControlRelayOutputBlock{}, err
		}
		for {
			idx, val, ok := it.Next()
			if !ok {
				break
			}
			if idx != uint32(index) {
				continue
			}
			crob, ok := val.(objects.ControlRelayOutputBlock)
			if !ok {
				continue
			}
			return hdr, crob, nil
		}
		if it.Err() != nil {
			return hdr, objects.ControlRelayOutputBlock{}, it.Err()
		}
	}
	return hdr, objects.ControlRelayOutputBlock{}, ErrNoObjectInResponse
}

func crobEqualRequest(req, echoed objects.ControlRelayOutputBlock) bool {
	return req.Code == echoed.Code && req.Count == echoed.Count &&
		req.OnTime == echoed.OnTime && req.OffTime == echoed.OffTime
}

// SelectOperate runs the SELECT-before-OPERATE composite task for one
// group 12 variation 1 point: SELECT is sent first and must echo the
// identical CROB with STATUS=SUCCESS before OPERATE is sent; any
// mismatch or non-success status aborts without sending OPERATE.
func (a *Association) SelectOperate(ctx context.Context, index uint16, crob objects.ControlRelayOutputBlock) (dnp3.CommandStatus, error) {
	selectCtx, cancel := context.WithTimeout(ctx, a.cfg.SelectTimeout)
	defer cancel()

	selSeq := a.nextSeq()
	selFragment := encodeCrobRequest(dnp3.FuncSelect, selSeq, index, crob)
	selResp, err := a.requestResponse(selectCtx, selFragment, selSeq)
	if err != nil {
		return dnp3.StatusTimeout, err
	}

	_, echoedSelect, err := decodeCrobResponse(selResp, index)
	if err != nil {
		return dnp3.StatusTimeout, err
	}
	if echoedSelect.Status != dnp3.StatusSuccess {
		return echoedSelect.Status, nil
	}
	if !crobEqualRequest(crob, echoedSelect) {
		return dnp3.StatusFormatError, ErrOperateEchoMismatch
	}

	opSeq := a.nextSeq()
	opFragment := encodeCrobRequest(dnp3.FuncOperate, opSeq, index, crob)
	opResp, err := a.requestResponse(ctx, opFragment, opSeq)
	if err != nil {
		return dnp3.StatusTimeout, err
	}

	_, echoedOperate, err := decodeCrobResponse(opResp, index)
	if err != nil {
		return dnp3.StatusTimeout, err
	}
	if !crobEqualRequest(crob, echoedOperate) {
		return dnp3.StatusFormatError, ErrOperateEchoMismatch
	}
	return echoedOperate.Status, nil
}

// DirectOperate sends a single DIRECT_OPERATE request for one group 12
// variation 1 point without a preceding SELECT, returning the echoed
// status.
func (a *Association) DirectOperate(ctx context.Context, index uint16, crob objects.ControlRelayOutputBlock) (dnp3.CommandStatus, error) {
	seq := a.nextSeq()
	fragment := encodeCrobRequest(dnp3.FuncDirectOperate, seq, index, crob)
	resp, err := a.requestResponse(ctx, fragment, seq)
	if err != nil {
		return dnp3.StatusTimeout, err
	}
	_, echoed, err := decodeCrobResponse(resp, index)
	if err != nil {
		return dnp3.StatusTimeout, err
	}
	return echoed.Status, nil
}
