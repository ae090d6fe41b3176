// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package streamer

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jellydator/ttlcache/v3"

	"github.com/cardinalhq/streamdoctor/internal/logctx"
)

const stoppedQueryTTL = 30 * time.Minute

// StoppedQuery is the residue a query leaves in the registry after it ends,
// kept for a while so operators can still see what just ran.
type StoppedQuery struct {
	ID        uuid.UUID
	Name      string
	Status    string
	StoppedAt time.Time
}

// Registry tracks the queries a session knows about: the active set, in
// start order, plus a TTL cache of recently stopped ones.
type Registry struct {
	mu     sync.Mutex
	active map[uuid.UUID]*Query
	order  []uuid.UUID

	recent *ttlcache.Cache[uuid.UUID, StoppedQuery]
}

// NewRegistry creates an empty registry and starts its cache janitor. Call
// Close when done with it.
func NewRegistry() *Registry {
	r := &Registry{
		active: make(map[uuid.UUID]*Query),
		recent: ttlcache.New(
			ttlcache.WithTTL[uuid.UUID, StoppedQuery](stoppedQueryTTL),
			ttlcache.WithDisableTouchOnHit[uuid.UUID, StoppedQuery](),
		),
	}
	go r.recent.Start()
	return r
}

// Close stops the cache janitor.
func (r *Registry) Close() {
	r.recent.Stop()
}

func (r *Registry) register(q *Query) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[q.ID()] = q
	r.order = append(r.order, q.ID())
}

func (r *Registry) markStopped(q *Query) {
	r.mu.Lock()
	if _, ok := r.active[q.ID()]; ok {
		delete(r.active, q.ID())
		for i, id := range r.order {
			if id == q.ID() {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	r.recent.Set(q.ID(), StoppedQuery{
		ID:        q.ID(),
		Name:      q.Name(),
		Status:    q.StatusMessage(),
		StoppedAt: time.Now(),
	}, ttlcache.DefaultTTL)
}

// Active returns the running queries in start order.
func (r *Registry) Active() []*Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Query, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.active[id])
	}
	return out
}

// Get looks up an active query by ID.
func (r *Registry) Get(id uuid.UUID) (*Query, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.active[id]
	return q, ok
}

// RecentlyStopped returns queries that ended within the TTL window, most
// recently stopped first.
func (r *Registry) RecentlyStopped() []StoppedQuery {
	items := r.recent.Items()
	out := make([]StoppedQuery, 0, len(items))
	for _, item := range items {
		out = append(out, item.Value())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StoppedAt.After(out[j].StoppedAt)
	})
	return out
}

// Describe prints the active queries with a 1-based index, or a clear
// message when there are none. It performs no stop operations.
func (r *Registry) Describe(w io.Writer) {
	queries := r.Active()
	if len(queries) == 0 {
		fmt.Fprintln(w, "no active streaming queries")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tNAME\tSTATUS")
	for i, q := range queries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, q.ID(), q.Name(), q.StatusMessage())
	}
	_ = tw.Flush()
}

// StopAll gracefully stops every active query, logging each one before the
// stop is issued. Every query is attempted even when earlier stops fail;
// individual failures are aggregated. The caller's context bounds how long
// each stop may block.
func (r *Registry) StopAll(ctx context.Context) error {
	ll := logctx.FromContext(ctx)

	var errs *multierror.Error
	for _, q := range r.Active() {
		ll.Info("stopping query",
			"query", q.Name(),
			"id", q.ID().String())
		if err := q.Stop(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("stop query %q: %w", q.Name(), err))
		}
	}
	return errs.ErrorOrNil()
}
