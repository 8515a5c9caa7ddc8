// Package ledgertest provides an in-memory issue recorder for tests.
package ledgertest

import (
	"context"
	"sync"

	"github.com/openctemio/sipguard/pkg/domain/issue"
)

// Recorder keeps recorded issues in memory.
type Recorder struct {
	mu     sync.Mutex
	issues []*issue.Issue

	// Err is returned by RecordAll when set.
	Err error
}

// RecordAll creates the issues and keeps them in order.
func (r *Recorder) RecordAll(_ context.Context, params []issue.Params) ([]*issue.Issue, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*issue.Issue, 0, len(params))
	for _, p := range params {
		is, err := issue.New(p)
		if err != nil {
			return nil, err
		}
		out = append(out, is)
	}
	r.mu.Lock()
	r.issues = append(r.issues, out...)
	r.mu.Unlock()
	return out, nil
}

// Issues returns everything recorded so far.
func (r *Recorder) Issues() []*issue.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*issue.Issue(nil), r.issues...)
}
