package master

import (
	"context"
	"time"

	"github.com/rob-gra/go-dnp3"
	"github.com/rob-gra/go-dnp3/apdu"
	"github.com/rob-gra/go-dnp3/cursor"
	"github.com/rob-gra/go-dnp3/objects"
)

// Automatic task priorities, lowest value runs first. Gaps leave room
// for future tiers without renumbering the ones around them.
const (
	PriorityTimeSync          = 10
	PriorityClearRestartIIN   = 20
	PriorityUnsolicitedConfig = 30
	PriorityIntegrityPoll     = 40
	PriorityUserCommand       = 50
	PriorityClassPoll         = 60
	PriorityDeferredRead      = 70
	PriorityIdle              = 80
)

// SchedulerConfig configures an Association's automatic task generation:
// the periodic polls and startup behavior of the 8-tier priority list.
type SchedulerConfig struct {
	// ClassPeriods[i] is the poll period for Class(i+1); zero disables
	// periodic polling of that class (commands can still request it).
	ClassPeriods [3]time.Duration

	// EnableUnsolicitedClasses is sent as one ENABLE_UNSOLICITED request
	// at startup; zero skips it entirely (unsolicited stays whatever the
	// outstation defaults to).
	EnableUnsolicitedClasses dnp3.ClassMask
}

// Scheduler generates and enqueues an Association's automatic tasks
// (time sync, RESTART-IIN clear, unsolicited configuration, integrity
// and class polls) and drains its queue, running the highest-priority
// ready task first.
type Scheduler struct {
	assoc *Association
	cfg   SchedulerConfig

	startupUnsolicitedSent bool
	lastIntegrityPoll      time.Time
	lastClassPoll          [3]time.Time
}

// NewScheduler creates a Scheduler for assoc.
func NewScheduler(assoc *Association, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{assoc: assoc, cfg: cfg}
}

// EnqueueAutomaticTasks inspects the association's state (last received
// IIN, elapsed poll periods) and pushes whichever automatic tasks are
// currently due onto the association's queue. Polls not yet due are
// skipped and the startup unsolicited task is queued once, but the queue
// does not deduplicate: while the last IIN has NEED_TIME or
// DEVICE_RESTART set, every call queues another time-sync task (and,
// for DEVICE_RESTART, another clear-restart-iin task).
func (s *Scheduler) EnqueueAutomaticTasks(now time.Time) {
	if iin, ok := s.assoc.LastIIN(); ok {
		// NEED_TIME and DEVICE_RESTART (whose clock is presumed reset)
		// both trigger an automatic time sync.
		if iin.IIN1&(apdu.IIN1NeedTime|apdu.IIN1DeviceRestart) != 0 {
			s.assoc.Queue().Enqueue(&Task{
				Name:     "time-sync",
				Priority: PriorityTimeSync,
				Execute:  func() error { return s.runTimeSync(context.Background(), now) },
			})
		}
		if iin.IIN1&apdu.IIN1DeviceRestart != 0 {
			s.assoc.Queue().Enqueue(&Task{
				Name:     "clear-restart-iin",
				Priority: PriorityClearRestartIIN,
				Execute:  func() error { return s.runClearRestartIIN(context.Background()) },
			})
		}
	}

	if !s.startupUnsolicitedSent && s.cfg.EnableUnsolicitedClasses != 0 {
		s.startupUnsolicitedSent = true
		mask := s.cfg.EnableUnsolicitedClasses
		s.assoc.Queue().Enqueue(&Task{
			Name:     "enable-unsolicited",
			Priority: PriorityUnsolicitedConfig,
			Execute:  func() error { return s.runUnsolicitedConfig(context.Background(), dnp3.FuncEnableUnsolicited, mask) },
		})
	}

	if s.lastIntegrityPoll.IsZero() || now.Sub(s.lastIntegrityPoll) >= s.integrityPeriod() {
		s.lastIntegrityPoll = now
		s.assoc.Queue().Enqueue(&Task{
			Name:     "integrity-poll",
			Priority: PriorityIntegrityPoll,
			Execute: func() error {
				return s.runClassPoll(context.Background(), dnp3.MaskClass0|dnp3.MaskClass1|dnp3.MaskClass2|dnp3.MaskClass3)
			},
		})
	}

	for i, period := range s.cfg.ClassPeriods {
		if period == 0 {
			continue
		}
		if !s.lastClassPoll[i].IsZero() && now.Sub(s.lastClassPoll[i]) < period {
			continue
		}
		s.lastClassPoll[i] = now
		mask := dnp3.ClassMask(1) << uint(i+1) // MaskClass1/2/3
		s.assoc.Queue().Enqueue(&Task{
			Name:     "class-poll",
			Priority: PriorityClassPoll,
			Execute:  func() error { return s.runClassPoll(context.Background(), mask) },
		})
	}
}

func (s *Scheduler) integrityPeriod() time.Duration {
	if s.assoc.cfg.IntegrityPeriod > 0 {
		return s.assoc.cfg.IntegrityPeriod
	}
	return 5 * time.Minute
}

// EnqueueCommand adds a user-issued command as a PriorityUserCommand
// task, ranking it above class polls and deferred reads but below the
// time-sync, restart-IIN clear, unsolicited-configuration and
// integrity-poll tiers.
func (s *Scheduler) EnqueueCommand(name string, execute func() error) {
	s.assoc.Queue().Enqueue(&Task{Name: name, Priority: PriorityUserCommand, Execute: execute})
}

// EnqueueDeferredRead adds a READ that was postponed behind higher
// priority work (e.g. issued while a command task was in flight).
func (s *Scheduler) EnqueueDeferredRead(name string, execute func() error) {
	s.assoc.Queue().Enqueue(&Task{Name: name, Priority: PriorityDeferredRead, Execute: execute})
}

// RunNext pops and executes the highest-priority ready task, returning
// false if the queue was empty (the Idle tier: nothing to do).
func (s *Scheduler) RunNext() (ran bool, err error) {
	t := s.assoc.Queue().Pop()
	if t == nil {
		return false, nil
	}
	t.state = TaskInProgress
	err = t.Execute()
	if err != nil {
		t.state = TaskFailed
	} else {
		t.state = TaskCompleted
	}
	return true, err
}

func (s *Scheduler) send(ctx context.Context, fn dnp3.FunctionCode, body []byte) ([]byte, error) {
	seq := s.assoc.nextSeq()
	w := cursor.NewWriter(2048)
	_ = w.PutBytes(apdu.EncodeHeader(apdu.Header{Fir: true, Fin: true, Seq: seq, Function: fn}))
	_ = w.PutBytes(body)
	return s.assoc.requestResponse(ctx, w.Bytes(), seq)
}

func (s *Scheduler) runTimeSync(ctx context.Context, now time.Time) error {
	w := cursor.NewWriter(16)
	_ = w.PutByte(byte(objects.Qualifier8BitCount))
	_ = w.PutByte(1)
	_ = objects.Encode(objects.AbsoluteTime{Variation: 1, MillisSinceEpoch: now.UnixMilli()}, w)
	body := append([]byte{50, 1}, w.Bytes()...)
	_, err := s.send(ctx, dnp3.FuncWrite, body)
	return err
}

func (s *Scheduler) runClearRestartIIN(ctx context.Context) error {
	_, err := s.send(ctx, dnp3.FuncWrite, nil)
	return err
}

func (s *Scheduler) runUnsolicitedConfig(ctx context.Context, fn dnp3.FunctionCode, mask dnp3.ClassMask) error {
	_, err := s.send(ctx, fn, classSelectorHeaders(mask))
	return err
}

func (s *Scheduler) runClassPoll(ctx context.Context, mask dnp3.ClassMask) error {
	_, err := s.send(ctx, dnp3.FuncRead, classSelectorHeaders(mask))
	return err
}

// classSelectorHeaders builds one qualifier-0x06 group 60 header per
// class set in mask (variation 1 for Class0, 2/3/4 for Class1/2/3),
// the no-data selector shape used for both polls and unsolicited
// enable/disable.
func classSelectorHeaders(mask dnp3.ClassMask) []byte {
	var out []byte
	add := func(variation byte) {
		out = append(out, 60, variation, byte(objects.QualifierAllObjects))
	}
	if mask&dnp3.MaskClass0 != 0 {
		add(1)
	}
	if mask&dnp3.MaskClass1 != 0 {
		add(2)
	}
	if mask&dnp3.MaskClass2 != 0 {
		add(3)
	}
	if mask&dnp3.MaskClass3 != 0 {
		add(4)
	}
	return out
}
