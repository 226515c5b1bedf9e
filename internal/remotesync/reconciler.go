// Package remotesync keeps the local campaign document and a remote copy
// converged. The model is last-writer-wins over whole documents: local saves
// are pushed upstream, remote snapshots are applied wholesale when any tracked
// section differs, and remote-applied saves never push back (the loop would
// otherwise be immediate, since applying a snapshot is itself a save).
package remotesync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/campkeeper/campkeeper/internal/campaign"
)

// State is the connectivity state surfaced to the status API. Transitions:
// connecting on start, syncing while a snapshot or push is in flight,
// connected when idle and subscribed, error when the last push or the
// subscription failed, offline after shutdown.
type State string

const (
	StateConnecting State = "connecting"
	StateSyncing    State = "syncing"
	StateConnected  State = "connected"
	StateOffline    State = "offline"
	StateError      State = "error"
)

// Snapshot is one remote observation. Exists is false when the remote has no
// document yet; Err marks a subscription-level failure and carries no
// document.
type Snapshot struct {
	Doc    campaign.Document
	Exists bool
	Err    error
}

// RemoteStore is the upstream document copy. Subscribe must deliver the
// current remote state as its first snapshot (or Exists=false when there is
// none) and a new snapshot after every remote change until ctx is done.
type RemoteStore interface {
	Publish(ctx context.Context, doc campaign.Document) error
	Subscribe(ctx context.Context) (<-chan Snapshot, error)
}

const defaultPushTimeout = 15 * time.Second

type Options struct {
	Store  *campaign.Store
	Remote RemoteStore
	Logger campaign.Logger
	// PushTimeout bounds a single upstream publish. Zero means 15s.
	PushTimeout time.Duration
	// OnStateChange, when set, observes every connectivity transition.
	OnStateChange func(State)
}

// Reconciler drives the sync loop. One reconciler per document store.
type Reconciler struct {
	store       *campaign.Store
	remote      RemoteStore
	logger      campaign.Logger
	pushTimeout time.Duration
	onState     func(State)

	mu    sync.Mutex
	state State

	// pushMu serializes upstream publishes so concurrent local saves cannot
	// land out of order at the remote.
	pushMu sync.Mutex
}

func New(opts Options) (*Reconciler, error) {
	if opts.Store == nil || opts.Remote == nil {
		return nil, campaign.ErrInvalidInput
	}
	pushTimeout := opts.PushTimeout
	if pushTimeout <= 0 {
		pushTimeout = defaultPushTimeout
	}
	r := &Reconciler{
		store:       opts.Store,
		remote:      opts.Remote,
		logger:      opts.Logger,
		pushTimeout: pushTimeout,
		onState:     opts.OnStateChange,
		state:       StateConnecting,
	}
	return r, nil
}

func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	changed := r.state != s
	r.state = s
	r.mu.Unlock()
	if changed && r.onState != nil {
		r.onState(s)
	}
}

// Run subscribes to the remote and processes snapshots until ctx is done. It
// registers itself as the store's pusher, so every local-origin save flows
// upstream for as long as Run is active. Run returns the subscription error
// when the remote becomes unusable, or ctx.Err() on shutdown.
func (r *Reconciler) Run(ctx context.Context) error {
	r.store.SetPusher(func(doc campaign.Document) {
		go r.push(doc)
	})
	defer r.store.SetPusher(nil)

	r.setState(StateConnecting)
	snapshots, err := r.remote.Subscribe(ctx)
	if err != nil {
		r.setState(StateError)
		return err
	}

	first := true
	for {
		select {
		case <-ctx.Done():
			r.setState(StateOffline)
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				r.setState(StateError)
				return errors.New("remote subscription closed")
			}
			r.handleSnapshot(snap, first)
			first = false
		}
	}
}

func (r *Reconciler) handleSnapshot(snap Snapshot, first bool) {
	if snap.Err != nil {
		r.logf("remote snapshot error: %v", snap.Err)
		r.setState(StateError)
		return
	}
	if !snap.Exists {
		// First contact with an empty remote: seed it with the local
		// document so both sides start from the same state.
		if first {
			r.push(r.store.Get())
			return
		}
		r.setState(StateConnected)
		return
	}

	remote := snap.Doc
	remote.Normalize()
	local := r.store.Get()

	changed := campaign.ChangedSections(local, remote)
	if len(changed) == 0 {
		r.setState(StateConnected)
		return
	}

	r.setState(StateSyncing)
	r.logf("applying remote update, changed sections: %v", changed)
	if !r.store.ApplyRemote(remote) {
		r.setState(StateError)
		return
	}
	r.setState(StateConnected)
}

// PushLocal publishes the current local document upstream. The document file
// watcher calls this when an out-of-band edit is detected, since those edits
// never pass through Store.Save and so never hit the pusher.
func (r *Reconciler) PushLocal() {
	r.push(r.store.Get())
}

func (r *Reconciler) push(doc campaign.Document) {
	r.pushMu.Lock()
	defer r.pushMu.Unlock()
	r.setState(StateSyncing)
	ctx, cancel := context.WithTimeout(context.Background(), r.pushTimeout)
	defer cancel()
	if err := r.remote.Publish(ctx, doc); err != nil {
		r.logf("error pushing document upstream: %v", err)
		r.setState(StateError)
		return
	}
	r.setState(StateConnected)
}

func (r *Reconciler) logf(format string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}
