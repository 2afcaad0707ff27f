// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package exchange implements full-snapshot anti-entropy between replicas of
// convergent objects.
//
// An [Exchange] binds local objects to a group connection. Publishing an
// object broadcasts an envelope carrying its complete state; every envelope
// received is decoded and merged into the bound object with the same ID.
// Because merge is a join, delivery may be duplicated, reordered, or lost
// without affecting the state the replicas eventually agree on.
package exchange

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/creachadair/lattice"
	"github.com/creachadair/taskgroup"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// A Conn is a group connection among a fixed set of members, identified by
// their integer positions. Delivery is best-effort.
//
// Handle is called before Start, and the handler may be invoked concurrently
// with other methods of the Conn. After Stop returns, the handler is not
// invoked again.
type Conn interface {
	// Broadcast sends data to every member except the sender.
	Broadcast(data []byte) error

	// Send sends data to the member at the given position.
	Send(data []byte, member int) error

	// NumMembers reports the number of members in the group.
	NumMembers() int

	// CurMemberPosition reports the position of the local member.
	CurMemberPosition() int

	// AllMemberIds reports the positions of all members, including the local one.
	AllMemberIds() []int

	// Handle registers a handler for inbound messages.
	Handle(func(data []byte))

	// Start begins delivering inbound messages to the handler.
	Start() error

	// Stop halts delivery and releases the connection. It blocks until any
	// handler calls in progress have returned.
	Stop() error
}

// ErrUnknownObject is reported for an operation on, or an envelope addressed
// to, an object ID that has no local binding.
var ErrUnknownObject = errors.New("unknown object")

// ErrAlreadyBound is reported by Bind for an object ID that already has a
// local binding.
var ErrAlreadyBound = errors.New("object is already bound")

// DropError is the concrete type of errors reported to Options.OnError for
// inbound envelopes that could not be applied.
type DropError struct {
	From   int              // sender position, or -1 if the envelope was unreadable
	Object lattice.ObjectID // the addressed object, if known
	Type   string           // the type name carried by the envelope, if known
	Err    error            // the reason the envelope was dropped
}

// Error satisfies the error interface.
func (d *DropError) Error() string {
	if d.From < 0 {
		return fmt.Sprintf("dropped envelope: %v", d.Err)
	}
	return fmt.Sprintf("dropped envelope from %d for %s %v: %v", d.From, d.Type, d.Object, d.Err)
}

// Unwrap reports the underlying error of d.
func (d *DropError) Unwrap() error { return d.Err }

// Options control the behaviour of an [Exchange]. A nil *Options is ready for
// use and provides default values as described.
type Options struct {
	// Registry is used to construct objects for AutoCreate and is sealed when
	// the exchange starts. If nil, lattice.Default is used.
	Registry *lattice.Registry

	// If positive, publish every bound object at this interval while the
	// exchange is running.
	Interval time.Duration

	// If positive, each periodic round sends to this many randomly-chosen
	// members instead of broadcasting.
	Fanout int

	// If true, publish an object after each successful local update through
	// Do or Apply.
	PropagateOnUpdate bool

	// If true, a snapshot for an unbound object ID whose type is registered
	// creates and binds a new instance of that type before merging.
	AutoCreate bool

	// If set, this function is called with each error that does not stop the
	// exchange: dropped envelopes and failed periodic sends. It is called
	// synchronously and must not block.
	OnError func(error)

	// The logger to use. If nil, the "exchange" logger is used.
	Logger logger.ILogger
}

func (o *Options) registry() *lattice.Registry {
	if o == nil || o.Registry == nil {
		return lattice.Default
	}
	return o.Registry
}

func (o *Options) logger() logger.ILogger {
	if o == nil || o.Logger == nil {
		return logger.GetLogger("exchange")
	}
	return o.Logger
}

// binding is a bound object and the lock that serializes access to it.
type binding struct {
	μ   sync.Mutex
	obj lattice.Object
}

// An Exchange propagates the state of bound objects over a [Conn].
//
// Call Bind to register local objects and Start to begin exchanging
// snapshots. Once started, an exchange runs until Stop is called. Updates and
// merges on any one object are serialized; distinct objects proceed
// independently. The methods of an Exchange are safe for concurrent use.
type Exchange struct {
	conn Conn
	opts Options
	reg  *lattice.Registry
	log  logger.ILogger
	objs *xsync.MapOf[lattice.ObjectID, *binding]
	m    *exchangeMetrics

	μ       sync.Mutex
	tasks   *taskgroup.Group // service loop
	stop    chan struct{}    // closed to end the service loop
	running bool
	err     error // from stopping the connection
}

// New constructs a new unstarted exchange on conn.
func New(conn Conn, opts *Options) *Exchange {
	e := &Exchange{
		conn: conn,
		reg:  opts.registry(),
		log:  opts.logger(),
		objs: xsync.NewMapOf[lattice.ObjectID, *binding](),
	}
	if opts != nil {
		e.opts = *opts
	}
	e.m = newExchangeMetrics(e.objs.Size)
	return e
}

// Bind binds obj to id. It reports ErrAlreadyBound if id already has a
// binding. It is safe to call Bind while the exchange is running.
func (e *Exchange) Bind(id lattice.ObjectID, obj lattice.Object) error {
	if _, loaded := e.objs.LoadOrStore(id, &binding{obj: obj}); loaded {
		return fmt.Errorf("bind %v: %w", id, ErrAlreadyBound)
	}
	e.log.Debugf("bound %s %v", obj.TypeName(), id)
	return nil
}

// Unbind removes the binding for id, if any, and reports whether it existed.
// Envelopes for id received afterward are dropped (or, with AutoCreate,
// create a fresh binding).
func (e *Exchange) Unbind(id lattice.ObjectID) bool {
	_, ok := e.objs.LoadAndDelete(id)
	return ok
}

// Object returns the object bound to id, if any. The caller must not access
// the object concurrently with the exchange; use Do for that.
func (e *Exchange) Object(id lattice.ObjectID) (lattice.Object, bool) {
	b, ok := e.objs.Load(id)
	if !ok {
		return nil, false
	}
	return b.obj, true
}

// IDs returns the IDs of all bound objects, in no particular order.
func (e *Exchange) IDs() []lattice.ObjectID {
	var ids []lattice.ObjectID
	e.objs.Range(func(id lattice.ObjectID, _ *binding) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// Do calls f with the object bound to id, while holding exclusive access to
// that object, and returns the error from f. Typed updates should go through
// Do. If f succeeds and PropagateOnUpdate is set, the new state is published.
func (e *Exchange) Do(id lattice.ObjectID, f func(lattice.Object) error) error {
	if err := e.View(id, f); err != nil {
		return err
	}
	if e.opts.PropagateOnUpdate {
		return e.Publish(id)
	}
	return nil
}

// View calls f with the object bound to id, while holding exclusive access to
// that object, and returns the error from f. Unlike Do, View never publishes;
// use it for queries.
func (e *Exchange) View(id lattice.ObjectID, f func(lattice.Object) error) error {
	b, ok := e.objs.Load(id)
	if !ok {
		return fmt.Errorf("object %v: %w", id, ErrUnknownObject)
	}
	b.μ.Lock()
	defer b.μ.Unlock()
	return f(b.obj)
}

// Apply applies the named update operation to the object bound to id. The
// object must implement [lattice.Updater].
func (e *Exchange) Apply(id lattice.ObjectID, op string, args ...string) error {
	return e.Do(id, func(obj lattice.Object) error {
		u, ok := obj.(lattice.Updater)
		if !ok {
			return lattice.Preconditionf(obj.TypeName()+"."+op, "type does not support named updates")
		}
		return u.Update(op, args...)
	})
}

// snapshot returns an encoded snapshot envelope for id.
func (e *Exchange) snapshot(id lattice.ObjectID) ([]byte, error) {
	b, ok := e.objs.Load(id)
	if !ok {
		return nil, fmt.Errorf("object %v: %w", id, ErrUnknownObject)
	}
	b.μ.Lock()
	msg := b.obj.Snapshot()
	b.μ.Unlock()

	// The snapshot does not alias the object, so encoding can proceed without
	// holding the lock.
	return lattice.Envelope{
		Kind:    lattice.KindSnapshot,
		From:    e.conn.CurMemberPosition(),
		Object:  id,
		Type:    msg.TypeName(),
		Payload: msg.Encode(),
	}.Encode(), nil
}

// Publish broadcasts the current state of the object bound to id to all
// other members.
func (e *Exchange) Publish(id lattice.ObjectID) error {
	data, err := e.snapshot(id)
	if err != nil {
		return err
	}
	return e.broadcast(data)
}

// PublishTo sends the current state of the object bound to id to the member
// at the given position.
func (e *Exchange) PublishTo(id lattice.ObjectID, member int) error {
	data, err := e.snapshot(id)
	if err != nil {
		return err
	}
	return e.send(data, member)
}

// PublishAll broadcasts the state of every bound object. It attempts all
// objects and returns the errors joined.
func (e *Exchange) PublishAll() error {
	var errs []error
	for _, id := range e.IDs() {
		if err := e.Publish(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Request asks the member at the given position to send back its state of
// the object bound to id.
func (e *Exchange) Request(id lattice.ObjectID, member int) error {
	b, ok := e.objs.Load(id)
	if !ok {
		return fmt.Errorf("object %v: %w", id, ErrUnknownObject)
	}
	return e.send(lattice.Envelope{
		Kind:   lattice.KindRequest,
		From:   e.conn.CurMemberPosition(),
		Object: id,
		Type:   b.obj.TypeName(),
	}.Encode(), member)
}

func (e *Exchange) broadcast(data []byte) error {
	if err := e.conn.Broadcast(data); err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	e.m.sent.Inc()
	return nil
}

func (e *Exchange) send(data []byte, member int) error {
	if err := e.conn.Send(data, member); err != nil {
		return fmt.Errorf("send to %d: %w", member, err)
	}
	e.m.sent.Inc()
	return nil
}

// Metrics returns the metrics set for e. The caller may add further metrics
// to the set.
func (e *Exchange) Metrics() *metrics.Set { return e.m.set }

// Start seals the registry and starts the exchange running on its
// connection. Start does not block; it panics if e is already running.
func (e *Exchange) Start() error {
	e.μ.Lock()
	defer e.μ.Unlock()
	if e.running {
		panic("exchange is already started")
	}
	e.reg.Seal()
	e.conn.Handle(e.receive)
	if err := e.conn.Start(); err != nil {
		return fmt.Errorf("starting connection: %w", err)
	}
	e.running = true
	e.err = nil
	e.stop = make(chan struct{})
	e.tasks = taskgroup.New(nil)

	stop := e.stop
	e.tasks.Go(func() error {
		var tick <-chan time.Time
		if e.opts.Interval > 0 {
			t := time.NewTicker(e.opts.Interval)
			defer t.Stop()
			tick = t.C
		}
		for {
			select {
			case <-stop:
				return nil
			case <-tick:
				e.round()
			}
		}
	})
	e.log.Infof("exchange started at member %d of %d", e.conn.CurMemberPosition(), e.conn.NumMembers())
	return nil
}

// round publishes every bound object once, to all members or to a random
// subset of Fanout members.
func (e *Exchange) round() {
	for _, id := range e.IDs() {
		var err error
		if e.opts.Fanout > 0 {
			err = e.publishFanout(id)
		} else {
			err = e.Publish(id)
		}
		if err != nil && !errors.Is(err, ErrUnknownObject) {
			e.log.Debugf("periodic publish %v: %v", id, err)
			e.report(err)
		}
	}
}

func (e *Exchange) publishFanout(id lattice.ObjectID) error {
	self := e.conn.CurMemberPosition()
	var peers []int
	for _, m := range e.conn.AllMemberIds() {
		if m != self {
			peers = append(peers, m)
		}
	}
	if len(peers) == 0 {
		return nil
	}
	data, err := e.snapshot(id)
	if err != nil {
		return err
	}
	rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	var errs []error
	for _, m := range peers[:min(e.opts.Fanout, len(peers))] {
		if err := e.send(data, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop stops the connection and halts the periodic loop. It blocks until
// merges in progress have completed, and returns the result of Wait. After
// Stop returns, it is safe to restart the exchange.
func (e *Exchange) Stop() error {
	e.μ.Lock()
	if !e.running {
		e.μ.Unlock()
		return e.Wait()
	}
	e.running = false
	e.μ.Unlock()

	err := e.conn.Stop()
	e.μ.Lock()
	e.err = err
	close(e.stop)
	e.μ.Unlock()
	e.log.Infof("exchange stopped at member %d", e.conn.CurMemberPosition())
	return e.Wait()
}

// Wait blocks until e has stopped, and reports the error from stopping the
// connection, if any. If e was never started, Wait returns nil immediately.
func (e *Exchange) Wait() error {
	e.μ.Lock()
	t := e.tasks
	e.μ.Unlock()
	if t == nil {
		return nil
	}
	t.Wait()

	e.μ.Lock()
	defer e.μ.Unlock()
	return e.err
}

// receive handles one inbound message from the connection.
func (e *Exchange) receive(data []byte) {
	e.m.received.Inc()
	var env lattice.Envelope
	if err := env.Decode(data); err != nil {
		e.m.decodeErrors.Inc()
		e.drop(&DropError{From: -1, Err: err})
		return
	}
	switch env.Kind {
	case lattice.KindSnapshot:
		e.merge(&env)
	case lattice.KindRequest:
		e.serve(&env)
	}
}

// merge merges the snapshot carried by env into the addressed object.
func (e *Exchange) merge(env *lattice.Envelope) {
	if !e.checkType(env) {
		return
	}
	b, err := e.lookup(env, e.opts.AutoCreate)
	if err != nil {
		e.drop(dropped(env, err))
		return
	}

	b.μ.Lock()
	defer b.μ.Unlock()
	msg, err := b.obj.DecodeMessage(env.Payload)
	if err != nil {
		e.m.decodeErrors.Inc()
		e.drop(dropped(env, err))
		return
	}
	start := time.Now()
	if err := b.obj.Merge(msg); err != nil {
		e.drop(dropped(env, err))
		return
	}
	e.m.mergeTime.UpdateDuration(start)
	e.m.merges.Inc()
}

// serve replies to a request for the state of the addressed object.
func (e *Exchange) serve(env *lattice.Envelope) {
	if !e.checkType(env) {
		return
	}
	if _, err := e.lookup(env, false); err != nil {
		e.drop(dropped(env, err))
		return
	}
	if err := e.PublishTo(env.Object, env.From); err != nil {
		e.report(err)
		return
	}
	e.m.requestsServed.Inc()
}

// checkType reports whether the type named by env is registered. If not, the
// envelope is counted and dropped.
func (e *Exchange) checkType(env *lattice.Envelope) bool {
	if _, err := e.reg.Lookup(env.Type); err != nil {
		e.m.unknownTypes.Inc()
		e.drop(dropped(env, err))
		return false
	}
	return true
}

// lookup returns the binding addressed by env and checks that its type
// matches the envelope. If create is true and no binding exists, a new object
// of the envelope's type is constructed from the registry and bound.
func (e *Exchange) lookup(env *lattice.Envelope, create bool) (*binding, error) {
	b, ok := e.objs.Load(env.Object)
	if !ok {
		if !create {
			return nil, ErrUnknownObject
		}
		obj, err := e.reg.New(env.Type)
		if err != nil {
			return nil, err
		}
		b, ok = e.objs.LoadOrStore(env.Object, &binding{obj: obj})
		if !ok {
			e.log.Infof("created %s %v for member %d", env.Type, env.Object, env.From)
		}
	}
	if got := b.obj.TypeName(); got != env.Type {
		return nil, fmt.Errorf("object is %s, envelope carries %s: %w", got, env.Type, lattice.ErrTypeMismatch)
	}
	return b, nil
}

func dropped(env *lattice.Envelope, err error) *DropError {
	return &DropError{From: env.From, Object: env.Object, Type: env.Type, Err: err}
}

func (e *Exchange) drop(err *DropError) {
	e.m.dropped.Inc()
	e.log.Warningf("%v", err)
	e.report(err)
}

func (e *Exchange) report(err error) {
	if e.opts.OnError != nil {
		e.opts.OnError(err)
	}
}
