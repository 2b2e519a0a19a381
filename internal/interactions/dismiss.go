// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package interactions

import (
	"time"

	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
)

// dismissal is one staged removal: hidden immediately, committed to the
// server when the timer fires, cancellable until then.
type dismissal struct {
	timer *time.Timer
}

// Dismiss stages a not-interested removal. The item disappears from the
// derived sets at once; the server mutation only happens after the undo
// window elapses. Dismissing an already-staged id is a no-op.
func (l *Ledger) Dismiss(id int64) {
	l.mu.Lock()
	if _, staged := l.dismissals[id]; staged {
		l.mu.Unlock()
		return
	}
	d := &dismissal{}
	d.timer = time.AfterFunc(l.dismissDelay, func() { l.commitDismissal(id) })
	l.dismissals[id] = d
	l.mu.Unlock()

	logging.Debug().Int64("catalog_id", id).Dur("undo_window", l.dismissDelay).Msg("Dismissal staged")
}

// Undo cancels a staged dismissal before it commits, restoring visibility
// with no server call ever made. Returns false when there was nothing to
// undo (never staged, already committed, or already undone).
//
// Entry ownership decides races with the timer: commitDismissal removes
// the entry under the lock before doing anything, so whoever still finds
// the entry wins.
func (l *Ledger) Undo(id int64) bool {
	l.mu.Lock()
	d, ok := l.dismissals[id]
	if !ok {
		l.mu.Unlock()
		return false
	}
	d.timer.Stop()
	delete(l.dismissals, id)
	l.mu.Unlock()

	metrics.DismissalsUndone.Inc()
	logging.Debug().Int64("catalog_id", id).Msg("Dismissal undone")
	return true
}

// commitDismissal runs when the undo window closes: the staged removal
// becomes a regular optimistic not-interested mutation.
func (l *Ledger) commitDismissal(id int64) {
	l.mu.Lock()
	if _, ok := l.dismissals[id]; !ok {
		l.mu.Unlock()
		return
	}
	delete(l.dismissals, id)
	l.mu.Unlock()

	metrics.DismissalsCommitted.Inc()
	l.setFlag(id, models.FlagNotInterested, true)
}

// PendingDismissals returns how many dismissals are staged. The catalog
// store refuses LoadMore while this is non-zero, so pagination cannot
// re-fetch items that are about to vanish.
func (l *Ledger) PendingDismissals() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.dismissals)
}

// Dismissed reports whether the id is currently staged for removal.
func (l *Ledger) Dismissed(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.dismissals[id]
	return ok
}
