package app

import (
	"context"
	"time"

	"github.com/ayusman/gestureflow/internal/capture"
	"github.com/ayusman/gestureflow/internal/macro"
	"github.com/ayusman/gestureflow/internal/mapping"
	"github.com/ayusman/gestureflow/internal/notify"
	"github.com/ayusman/gestureflow/internal/recognition"
)

// HandleSample runs the frame path for one sample:
//
//  1. classify the landmark vector (errors and empty samples count as no gesture)
//  2. feed the observation to the debouncer
//  3. hand any gesture event to the dispatch loop without waiting
//
// It must be called from a single goroutine, normally the source loop.
func (a *App) HandleSample(s capture.Sample) {
	if a.resetNeeded.Swap(false) {
		a.debouncer.Reset()
	}
	if !a.enabled.Load() {
		return
	}
	a.samples.Add(1)

	obs := recognition.Observation{Timestamp: s.Timestamp}
	if s.HasHand() {
		r, err := a.classifier.Classify(s.Vector)
		if err != nil {
			a.log.Debugf("classify: %v", err)
		} else {
			obs.Label = r.Label
			obs.Confidence = r.Confidence
		}
	}

	ev, ok := a.debouncer.Observe(obs)
	if !ok {
		return
	}
	a.emitted.Add(1)
	a.log.Debugf("gesture %s (%.2f)", ev.GestureID, ev.Confidence)
	a.notifier.Notify(notify.Event{
		Kind:      notify.KindRecognized,
		GestureID: ev.GestureID,
		Time:      ev.Timestamp,
	})

	select {
	case a.events <- ev:
	default:
		a.dropped.Add(1)
		a.log.Warnf("dispatch queue full, dropped %s", ev.GestureID)
	}
}

// dispatchLoop drains gesture events until ctx is done.
func (a *App) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-a.events:
			a.Dispatch(ev)
		}
	}
}

// Dispatch resolves ev against the active profile snapshot and submits the
// result to the scheduler. It returns nil and false when the gesture is not
// mapped; the plan is nil when the scheduler ignores or rejects it.
func (a *App) Dispatch(ev recognition.GestureEvent) (*macro.Plan, macro.Decision, bool) {
	p := a.profiles.Active()
	if p == nil {
		a.notMapped.Add(1)
		return nil, macro.Rejected, false
	}

	res, ok := mapping.Resolve(ev, p)
	if !ok {
		a.notMapped.Add(1)
		a.log.Debugf("%s is not mapped in %s", ev.GestureID, p.Name)
		return nil, macro.Rejected, false
	}

	plan, decision := a.scheduler.Submit(res)
	a.dispatched.Add(1)
	if plan != nil {
		a.log.Infof("%s -> %s: %s (%s)", ev.GestureID, res.Entry.Action.Summary(), decision, plan.ID)
	} else {
		a.log.Debugf("%s -> %s: %s", ev.GestureID, res.Entry.Action.Summary(), decision)
	}
	return plan, decision, true
}

// Inject queues ev for dispatch as if it had been recognised. It reports
// false when the queue is full.
func (a *App) Inject(ev recognition.GestureEvent) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.GestureID = mapping.NormalizeGestureID(ev.GestureID)
	select {
	case a.events <- ev:
		a.emitted.Add(1)
		return true
	default:
		a.dropped.Add(1)
		return false
	}
}
