package outstation

import (
	"bytes"
	"errors"
	"time"

	"github.com/rob-gra/go-dnp3"
	"github.com/rob-gra/go-dnp3/apdu"
	"github.com/rob-gra/go-dnp3/cursor"
	"github.com/rob-gra/go-dnp3/database"
	"github.com/rob-gra/go-dnp3/dnplog"
	"github.com/rob-gra/go-dnp3/eventbuf"
	"github.com/rob-gra/go-dnp3/objects"
)

// State is the outstation session's top-level state.
type State int

// Session states.
const (
	StateIdle State = iota
	StateProcessing
	StateResponding
	StateWaitingConfirm
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateProcessing:
		return "Processing"
	case StateResponding:
		return "Responding"
	case StateWaitingConfirm:
		return "WaitingConfirm"
	default:
		return "Unknown"
	}
}

type selectContext struct {
	index    uint16
	crob     objects.ControlRelayOutputBlock
	deadline time.Time
}

// Session is one outstation's protocol state machine, bound to a
// database, event buffer, and the user's control/application callbacks.
// It is driven entirely by HandleFragment and the *Elapsed timer
// callbacks; it owns no goroutines of its own and expects its caller
// to serialize calls per channel.
type Session struct {
	cfg     Config
	db      *database.Database
	events  *eventbuf.Buffer
	control ControlHandler
	app     Application
	log     dnplog.Logger

	state State

	haveLastRx      bool
	lastRxSeq       byte
	lastRxBytes     []byte
	lastTxFragments [][]byte

	waitingUnsolicitedConfirm bool
	pendingSolicited          []byte

	selectCtx        *selectContext
	restartIndicated bool
	unsolicitedMask  dnp3.ClassMask
	unsolicitedTxSeq byte
}

// NewSession creates a Session over db/events, dispatching commands to
// control and identity questions to app.
func NewSession(cfg Config, db *database.Database, events *eventbuf.Buffer, control ControlHandler, app Application, log dnplog.Logger) *Session {
	cfg.applyDefaults()
	return &Session{
		cfg:              cfg,
		db:               db,
		events:           events,
		control:          control,
		app:              app,
		log:              log,
		restartIndicated: true,
	}
}

// State returns the session's current top-level state.
func (s *Session) State() State { return s.state }

func (s *Session) computeIIN() apdu.IIN {
	base := s.app.GetApplicationIIN()
	return apdu.RecomputeIIN(base,
		s.events.Overflowed(),
		s.events.AnyUnreported(dnp3.Class1),
		s.events.AnyUnreported(dnp3.Class2),
		s.events.AnyUnreported(dnp3.Class3),
		false, // needTime: no time-sync tracking implemented
		s.restartIndicated,
		false, false, false,
	)
}

func (s *Session) fragmentCapacity() int {
	c := s.cfg.MaxTxFragmentSize - 4 // application control + function + IIN1 + IIN2
	if c < 0 {
		return 0
	}
	return c
}

// HandleFragment processes one complete application fragment received
// from the master and returns zero or more fragments to send in
// response (nil for requests that produce no reply, e.g.
// DIRECT_OPERATE_NO_ACK or a CONFIRM).
func (s *Session) HandleFragment(fragment []byte, now time.Time) [][]byte {
	hdr, n, err := apdu.DecodeHeader(fragment)
	if err != nil {
		s.log.Warn("outstation: dropping unparseable fragment: %v", err)
		s.state = StateIdle
		return nil
	}

	if hdr.Function == dnp3.FuncConfirm {
		return s.handleConfirm(hdr, now)
	}
	s.state = StateProcessing

	if s.waitingUnsolicitedConfirm && s.cfg.ConcurrentSolicitedPolicy == ConcurrentSolicitedQueue {
		s.pendingSolicited = append([]byte{}, fragment...)
		s.state = StateWaitingConfirm
		return nil
	}

	if s.haveLastRx && hdr.Seq == s.lastRxSeq && bytes.Equal(fragment, s.lastRxBytes) && s.lastTxFragments != nil {
		return s.lastTxFragments
	}
	s.haveLastRx = true
	s.lastRxSeq = hdr.Seq
	s.lastRxBytes = append([]byte{}, fragment...)

	body := fragment[n:]
	responses := s.dispatch(hdr, body, now)
	s.lastTxFragments = responses

	if len(responses) > 0 {
		s.state = StateResponding
		lastHdr, _, _ := apdu.DecodeHeader(responses[len(responses)-1])
		if lastHdr.Con {
			s.state = StateWaitingConfirm
		} else {
			s.state = StateIdle
		}
	} else {
		s.state = StateIdle
	}
	return responses
}

func (s *Session) handleConfirm(hdr apdu.Header, now time.Time) [][]byte {
	if s.state != StateWaitingConfirm {
		return nil
	}
	s.events.Confirm()
	s.events.ClearOverflow()
	if hdr.Uns {
		s.unsolicitedTxSeq = (s.unsolicitedTxSeq + 1) & 0x0F
		s.waitingUnsolicitedConfirm = false
	}
	s.state = StateIdle

	if len(s.pendingSolicited) > 0 {
		queued := s.pendingSolicited
		s.pendingSolicited = nil
		return s.HandleFragment(queued, now)
	}
	return nil
}

// ConfirmTimeoutElapsed is called by the owning loop's timer when a
// pending confirm was not received within cfg.ConfirmTimeout: sent
// events are cleared back to unsent so the next response resends them.
func (s *Session) ConfirmTimeoutElapsed() {
	if s.state != StateWaitingConfirm {
		return
	}
	s.events.Timeout()
	s.waitingUnsolicitedConfirm = false
	s.state = StateIdle
}

func (s *Session) dispatch(hdr apdu.Header, body []byte, now time.Time) [][]byte {
	switch hdr.Function {
	case dnp3.FuncRead:
		plan := planRead(body)
		return buildReadResponse(hdr.Seq, s.db.Snapshot(), s.events, plan, s.fragmentCapacity(), s.computeIIN())

	case dnp3.FuncWrite:
		// Minimal WRITE handling: any WRITE clears the RESTART
		// indication, covering the defined "write IIN, index 7" clear
		// without depending on an unregistered group-80 catalog entry.
		s.restartIndicated = false
		return [][]byte{s.emptyResponse(hdr.Seq)}

	case dnp3.FuncSelect:
		return s.handleSelect(hdr, body, now)

	case dnp3.FuncOperate:
		return s.handleOperate(hdr, body, now)

	case dnp3.FuncDirectOperate:
		return s.handleDirectOperate(hdr, body, true)

	case dnp3.FuncDirectOperateNoAck:
		s.handleDirectOperate(hdr, body, false)
		return nil

	case dnp3.FuncColdRestart:
		delay, supported := s.app.ColdRestart()
		return [][]byte{s.restartResponse(hdr.Seq, delay, supported)}

	case dnp3.FuncWarmRestart:
		delay, supported := s.app.WarmRestart()
		return [][]byte{s.restartResponse(hdr.Seq, delay, supported)}

	case dnp3.FuncDelayMeasure:
		return [][]byte{s.delayMeasureResponse(hdr.Seq)}

	case dnp3.FuncRecordCurrentTime:
		return [][]byte{s.emptyResponse(hdr.Seq)}

	case dnp3.FuncEnableUnsolicited:
		s.setUnsolicitedMask(body, true)
		return [][]byte{s.emptyResponse(hdr.Seq)}

	case dnp3.FuncDisableUnsolicited:
		s.setUnsolicitedMask(body, false)
		return [][]byte{s.emptyResponse(hdr.Seq)}

	case dnp3.FuncImmediateFreeze, dnp3.FuncFreezeAndClear,
		dnp3.FuncImmediateFreezeNoAck, dnp3.FuncFreezeAndClearNoAck:
		// Freeze handling is outside this implementation's scope; the
		// request is acknowledged with no side effect.
		return [][]byte{s.emptyResponse(hdr.Seq)}

	default:
		iin := s.computeIIN()
		iin.IIN2 |= apdu.IIN2NoFuncCodeSupport
		return [][]byte{apdu.EncodeHeader(apdu.Header{Fir: true, Fin: true, Function: dnp3.FuncResponse, Seq: hdr.Seq, IIN: iin})}
	}
}

func (s *Session) emptyResponse(seq byte) []byte {
	return apdu.EncodeHeader(apdu.Header{Fir: true, Fin: true, Function: dnp3.FuncResponse, Seq: seq, IIN: s.computeIIN()})
}

func (s *Session) setUnsolicitedMask(body []byte, enable bool) {
	cur := cursor.NewReader(body)
	for cur.Remaining() > 0 {
		hdr, it, err := apdu.NewObjectHeaderIterator(cur)
		if err != nil {
			return
		}
		if hdr.Group == 60 {
			var bit dnp3.ClassMask
			switch hdr.Variation {
			case 2:
				bit = dnp3.MaskClass1
			case 3:
				bit = dnp3.MaskClass2
			case 4:
				bit = dnp3.MaskClass3
			}
			if bit != 0 {
				if enable {
					s.unsolicitedMask |= bit
				} else {
					s.unsolicitedMask &^= bit
				}
			}
		}
		for {
			if _, _, ok := it.Next(); !ok {
				break
			}
		}
	}
}

func (s *Session) restartResponse(seq byte, delaySeconds uint16, supported bool) []byte {
	iin := s.computeIIN()
	if !supported {
		iin.IIN2 |= apdu.IIN2NoFuncCodeSupport
		return apdu.EncodeHeader(apdu.Header{Fir: true, Fin: true, Function: dnp3.FuncResponse, Seq: seq, IIN: iin})
	}
	w := cursor.NewWriter(32)
	_ = w.PutByte(52)
	_ = w.PutByte(2)
	_ = w.PutByte(byte(objects.Qualifier8BitCount))
	_ = w.PutByte(1)
	_ = objects.Encode(objects.FineTimeDelay{Milliseconds: delaySeconds * 1000}, w)
	hdrBytes := apdu.EncodeHeader(apdu.Header{Fir: true, Fin: true, Function: dnp3.FuncResponse, Seq: seq, IIN: iin})
	return append(hdrBytes, w.Bytes()...)
}

func (s *Session) delayMeasureResponse(seq byte) []byte {
	w := cursor.NewWriter(32)
	_ = w.PutByte(52)
	_ = w.PutByte(2)
	_ = w.PutByte(byte(objects.Qualifier8BitCount))
	_ = w.PutByte(1)
	_ = objects.Encode(objects.FineTimeDelay{Milliseconds: 0}, w)
	hdrBytes := apdu.EncodeHeader(apdu.Header{Fir: true, Fin: true, Function: dnp3.FuncResponse, Seq: seq, IIN: s.computeIIN()})
	return append(hdrBytes, w.Bytes()...)
}

// errNoObjectInRequest is returned when a command request carries no
// decodable CROB object.
var errNoObjectInRequest = errors.New("outstation: request carries no object")

func parseCrobRequest(body []byte) (uint16, objects.ControlRelayOutputBlock, error) {
	cur := cursor.NewReader(body)
	_, it, err := apdu.NewObjectHeaderIterator(cur)
	if err != nil {
		return 0, objects.ControlRelayOutputBlock{}, err
	}
	idx, val, ok := it.Next()
	if !ok {
		if it.Err() != nil {
			return 0, objects.ControlRelayOutputBlock{}, it.Err()
		}
		return 0, objects.ControlRelayOutputBlock{}, errNoObjectInRequest
	}
	crob, ok := val.(objects.ControlRelayOutputBlock)
	if !ok {
		return 0, objects.ControlRelayOutputBlock{}, objects.ErrBadAttribute
	}
	return uint16(idx), crob, nil
}

func crobEqualRequest(a, b objects.ControlRelayOutputBlock) bool {
	return a.Code == b.Code && a.Count == b.Count && a.OnTime == b.OnTime && a.OffTime == b.OffTime
}

func (s *Session) buildCrobResponse(seq byte, index uint16, crob objects.ControlRelayOutputBlock) [][]byte {
	w := cursor.NewWriter(32)
	_ = w.PutByte(12)
	_ = w.PutByte(1)
	_ = w.PutByte(byte(objects.Qualifier8BitPrefixCount))
	_ = w.PutByte(1)
	_ = w.PutByte(byte(index))
	_ = objects.Encode(crob, w)
	hdrBytes := apdu.EncodeHeader(apdu.Header{Fir: true, Fin: true, Function: dnp3.FuncResponse, Seq: seq, IIN: s.computeIIN()})
	return [][]byte{append(hdrBytes, w.Bytes()...)}
}

func (s *Session) handleSelect(hdr apdu.Header, body []byte, now time.Time) [][]byte {
	index, crob, err := parseCrobRequest(body)
	if err != nil {
		crob.Status = dnp3.StatusFormatError
		return s.buildCrobResponse(hdr.Seq, index, crob)
	}

	s.control.BeginFragment()
	status := s.control.SelectCROB(index, crob)
	s.control.EndFragment()

	if status == dnp3.StatusSuccess {
		s.selectCtx = &selectContext{index: index, crob: crob, deadline: now.Add(s.cfg.SelectTimeout)}
	} else {
		s.selectCtx = nil
	}
	crob.Status = status
	return s.buildCrobResponse(hdr.Seq, index, crob)
}

func (s *Session) handleOperate(hdr apdu.Header, body []byte, now time.Time) [][]byte {
	index, crob, err := parseCrobRequest(body)
	if err != nil {
		crob.Status = dnp3.StatusFormatError
		return s.buildCrobResponse(hdr.Seq, index, crob)
	}

	status := dnp3.StatusNoSelect
	if s.selectCtx != nil && !now.After(s.selectCtx.deadline) && s.selectCtx.index == index && crobEqualRequest(s.selectCtx.crob, crob) {
		s.control.BeginFragment()
		status = s.control.OperateCROB(index, crob)
		s.control.EndFragment()
	}
	s.selectCtx = nil
	crob.Status = status
	return s.buildCrobResponse(hdr.Seq, index, crob)
}

func (s *Session) handleDirectOperate(hdr apdu.Header, body []byte, withResponse bool) [][]byte {
	index, crob, err := parseCrobRequest(body)
	if err != nil {
		if !withResponse {
			return nil
		}
		crob.Status = dnp3.StatusFormatError
		return s.buildCrobResponse(hdr.Seq, index, crob)
	}

	s.control.BeginFragment()
	status := s.control.OperateCROB(index, crob)
	s.control.EndFragment()
	crob.Status = status

	if !withResponse {
		return nil
	}
	return s.buildCrobResponse(hdr.Seq, index, crob)
}

// CheckUnsolicited builds an unsolicited response fragment if unsolicited
// reporting is enabled for at least one class with unreported events. It
// does not implement the hold/max-delay batching window itself; callers
// drive that timing and call this once the hold window has elapsed.
func (s *Session) CheckUnsolicited(now time.Time) ([]byte, bool) {
	if s.state == StateWaitingConfirm || s.waitingUnsolicitedConfirm {
		return nil, false
	}
	mask := s.unsolicitedMask
	if mask == 0 {
		return nil, false
	}
	hasAny := (mask.Has(dnp3.Class1) && s.events.AnyUnreported(dnp3.Class1)) ||
		(mask.Has(dnp3.Class2) && s.events.AnyUnreported(dnp3.Class2)) ||
		(mask.Has(dnp3.Class3) && s.events.AnyUnreported(dnp3.Class3))
	if !hasAny {
		return nil, false
	}

	items := []responseItem{}
	for _, rec := range s.events.Select(mask, 4096) {
		items = append(items, eventItem(rec))
	}
	bodies, _ := writeFragments(items, s.fragmentCapacity())
	body := bodies[0]

	hdr := apdu.Header{Fir: true, Fin: true, Con: true, Uns: true, Seq: s.unsolicitedTxSeq, Function: dnp3.FuncUnsolicitedResponse, IIN: s.computeIIN()}
	fragment := append(apdu.EncodeHeader(hdr), body...)

	s.waitingUnsolicitedConfirm = true
	s.state = StateWaitingConfirm
	return fragment, true
}
