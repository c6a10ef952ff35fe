// Package eventloop implements spec.md §4.H's cooperative single-threaded
// scheduler: a micro-task queue drained to completion between macro-tasks,
// a macro-task FIFO, and a min-heap of timers keyed by due time. No
// third-party scheduler library is wired here, matching the teacher's lack
// of one anywhere in the pack; the min-heap is stdlib container/heap, the
// way internal/core orders its own work purely with stdlib sort/slices.
package eventloop

import (
	"container/heap"
	"time"
)

// Task is a zero-argument unit of work posted to a queue. Errors are not
// returned: an uncaught panic/error inside a task is the caller's (the
// evaluator's) responsibility to trap and surface as a diagnostic, per
// spec.md §7 propagation policy ("the host reports it... and terminates").
type Task func()

// timer is one scheduled callback, per spec.md §4.H's {id, due-at,
// interval-or-none, callback, cancelled} record.
type timer struct {
	id        int
	due       time.Time
	interval  time.Duration // zero for one-shot setTimeout
	repeating bool
	fn        Task
	cancelled bool
	heapIndex int
}

// timerHeap is a min-heap ordered by due time, implementing container/heap.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

// Less breaks due-time ties by id so timers with identical due times fire
// in registration order (spec.md §5 ordering guarantees).
func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].id < h[j].id
	}
	return h[i].due.Before(h[j].due)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}

// Loop drives spec.md §4.H's task/timer interleaving. Not safe for
// concurrent use from multiple goroutines touching user code directly
// (spec.md §5: host resources must hand work to the macro queue rather
// than invoking user callbacks from a foreign thread); Post is the one
// exception, handing work over through the buffered postCh channel, for
// exactly that hand-off.
type Loop struct {
	micro  []Task
	macro  []Task
	timers timerHeap
	// byID tracks live timers so Clear can reach one even after it has
	// moved from the heap to the macro queue (spec.md §4.H cancellation).
	byID   map[int]*timer
	nextID int

	// postCh lets host goroutines (a background HTTP accept loop, a stream
	// reader) hand a callback to the loop without calling user code
	// directly, per spec.md §5's shared-resource policy.
	postCh    chan Task
	keepAlive int // count of host resources (servers, streams) keeping the loop alive
	stopped   bool
}

// New creates an empty loop.
func New() *Loop {
	l := &Loop{postCh: make(chan Task, 64), byID: make(map[int]*timer)}
	heap.Init(&l.timers)
	return l
}

// NextTick enqueues a micro-task, drained before the next macro-task or
// timer (spec.md §4.H/§5).
func (l *Loop) NextTick(fn Task) {
	l.micro = append(l.micro, fn)
}

// QueueMacro posts a macro-task (setImmediate-equivalent, or a host event).
func (l *Loop) QueueMacro(fn Task) {
	l.macro = append(l.macro, fn)
}

// SetTimeout schedules fn to run once after d elapses, returning its id.
func (l *Loop) SetTimeout(fn Task, d time.Duration) int {
	return l.schedule(fn, d, false)
}

// SetInterval schedules fn to run every d, returning its id.
func (l *Loop) SetInterval(fn Task, d time.Duration) int {
	return l.schedule(fn, d, true)
}

func (l *Loop) schedule(fn Task, d time.Duration, repeating bool) int {
	l.nextID++
	t := &timer{
		id:        l.nextID,
		due:       now().Add(d),
		interval:  d,
		repeating: repeating,
		fn:        fn,
	}
	heap.Push(&l.timers, t)
	l.byID[t.id] = t
	return t.id
}

// Clear cancels a timer by id; a no-op if the id is unknown or already
// fired, matching spec.md §4.H's "cancellation is observed at fire time".
// A timer that already transitioned to the macro queue is still skipped at
// dispatch because the queued task re-checks the cancelled flag.
func (l *Loop) Clear(id int) {
	if t, ok := l.byID[id]; ok {
		t.cancelled = true
		delete(l.byID, id)
	}
}

// Post hands a callback to the loop's macro queue from outside the loop's
// own goroutine (spec.md §5), for use by host resources running
// background goroutines (an HTTP listener's accept loop, a stream's
// reader). Safe to call concurrently with Run.
func (l *Loop) Post(fn Task) {
	l.postCh <- fn
}

// KeepAlive increments/decrements the count of host resources (open
// servers, subscribed streams) that prevent the loop's idle-exit, per
// spec.md §4.H.
func (l *Loop) KeepAlive(delta int) {
	l.keepAlive += delta
}

// Stop requests shutdown: the loop exits before dispatching further work,
// draining nothing additional (spec.md §4.H shutdown semantics).
func (l *Loop) Stop() {
	l.stopped = true
}

// drainMicro runs every queued micro-task to completion, including any
// that micro-tasks scheduled during the drain append (spec.md §4.H).
func (l *Loop) drainMicro() {
	for len(l.micro) > 0 {
		t := l.micro[0]
		l.micro = l.micro[1:]
		t()
	}
}

// dueTimers pops every timer whose due time has elapsed into the macro
// queue, skipping cancelled ones, in due-time order (spec.md §4.H: "the
// timer transitions from the heap to the macro queue only when its due
// time has passed").
func (l *Loop) dueTimers(at time.Time) {
	for l.timers.Len() > 0 {
		next := l.timers[0]
		if next.due.After(at) {
			return
		}
		heap.Pop(&l.timers)
		if next.cancelled {
			continue
		}
		t := next
		l.macro = append(l.macro, func() {
			if t.cancelled {
				return
			}
			if !t.repeating {
				delete(l.byID, t.id)
			}
			t.fn()
		})
		if next.repeating {
			next.due = at.Add(next.interval)
			heap.Push(&l.timers, next)
		}
	}
}

// drainPosted moves any callbacks handed in via Post onto the macro queue
// without blocking.
func (l *Loop) drainPosted() {
	for {
		select {
		case fn := <-l.postCh:
			l.macro = append(l.macro, fn)
		default:
			return
		}
	}
}

// Run drives the loop until micro/macro queues and the timer heap are all
// empty and no host resource holds a keep-alive, per spec.md §4.H's
// idle-exit policy.
func (l *Loop) Run() {
	l.drainMicro()
	for {
		if l.stopped {
			return
		}
		l.drainPosted()
		if len(l.macro) == 0 {
			l.dueTimers(now())
		}
		if len(l.macro) == 0 {
			if l.timers.Len() == 0 {
				if l.keepAlive <= 0 {
					return
				}
				// A host resource (e.g. a listening server) is keeping the
				// loop alive with no pending work; block briefly for a
				// posted callback rather than busy-spin.
				select {
				case fn := <-l.postCh:
					l.macro = append(l.macro, fn)
				case <-time.After(10 * time.Millisecond):
				}
				continue
			}
			// No macro work ready; sleep until the earliest timer is due.
			wait := l.timers[0].due.Sub(now())
			if wait > 0 {
				select {
				case fn := <-l.postCh:
					l.macro = append(l.macro, fn)
				case <-time.After(wait):
				}
			}
			continue
		}
		task := l.macro[0]
		l.macro = l.macro[1:]
		task()
		l.drainMicro()
	}
}

// now is a seam so tests can fake time without sleeping (swap in package
// tests only; production always uses the wall clock).
var now = time.Now
