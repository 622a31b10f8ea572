// Package coordinator implements the transaction manager: it routes
// begin/read/write/end/fail/recover/dump onto the site table and
// transaction table, advances the logical clock once per command, and
// drives SSI validation at commit time.
package coordinator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/emicklei/dot"
	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"repcrec/internal/site"
	"repcrec/internal/txn"
	"repcrec/internal/variable"
)

var (
	// ErrDuplicateTxn is reported when begin() names an id already in use.
	ErrDuplicateTxn = errors.New("coordinator: transaction already exists")
	// ErrUnknownTxn is reported when a command names a transaction id
	// that was never begun.
	ErrUnknownTxn = errors.New("coordinator: unknown transaction")
	// ErrSiteRange is reported when fail/recover names a site outside 1..10.
	ErrSiteRange = errors.New("coordinator: site id out of range")
)

// Coordinator owns the site table and the transaction table. Its
// methods are guarded by a single mutex, mirroring the teacher's
// narrow-critical-section commit lock: this simulator drives commands
// one at a time from a single driver goroutine, but callers embedding
// it (or the test suite, running scenarios concurrently) should not
// have to care.
type Coordinator struct {
	mu sync.Mutex

	clock int
	sites map[int]*site.Site
	txns  btree.Map[string, *txn.Transaction]

	// committed is appended to in commit order, which is always
	// non-decreasing end_time, so the validator can scan it directly
	// instead of re-sorting on every commit.
	committed []*txn.Transaction

	// activeStart tracks the start_time of every transaction still
	// live, so end() can compute the oldest snapshot any transaction
	// might still read and GC history entries no one can reach anymore.
	activeStart map[string]int

	out      io.Writer
	logger   *slog.Logger
	runID    uuid.UUID
	graphDir string
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithLogger overrides the default warn-level stderr logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithGraphDir turns on DOT conflict-graph dumps for rejected commits,
// written under dir.
func WithGraphDir(dir string) Option {
	return func(c *Coordinator) { c.graphDir = dir }
}

// New creates a Coordinator with all ten sites initialized at logical
// time 0.
func New(out io.Writer, opts ...Option) *Coordinator {
	c := &Coordinator{
		sites:       make(map[int]*site.Site, variable.Sites),
		activeStart: make(map[string]int),
		out:         out,
		logger:      slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		runID:       uuid.New(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With(slog.Group("run", "id", c.runID.String()))
	for id := 1; id <= variable.Sites; id++ {
		c.sites[id] = site.New(id, c.logger)
	}
	return c
}

// Time returns the current logical clock value, mostly useful for tests.
func (c *Coordinator) Time() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock
}

func (c *Coordinator) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Begin starts a new transaction with start_time = current clock.
func (c *Coordinator) Begin(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.tick()

	if _, ok := c.txns.Get(id); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTxn, id)
	}
	t := txn.New(id, c.clock)
	c.txns.Set(id, t)
	c.activeStart[id] = c.clock
	c.logger.Debug("begin", "txn", id, "start", c.clock)
	c.printf("%s begins", id)
	return nil
}

// Read resolves a snapshot read of varName for txnID, per the
// replicated/non-replicated resolution rules in the spec, and prints
// "xN: v" on success. An unavailable snapshot aborts the transaction
// rather than blocking — reads never wait in this simulator.
func (c *Coordinator) Read(txnID, varName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.tick()

	t, err := c.lookup(txnID)
	if err != nil {
		return err
	}
	if !t.IsActive() {
		return nil
	}

	idx, err := variable.Index(varName)
	if err != nil {
		return err
	}

	var (
		value int64
		ok    bool
		siteID int
	)

	if variable.IsReplicated(idx) {
		for id := 1; id <= variable.Sites; id++ {
			s := c.sites[id]
			if v, readOK := s.ReadableSnapshot(varName, t.StartTime); readOK {
				value, ok, siteID = v, true, id
				break
			}
		}
	} else {
		home := variable.HomeSite(idx)
		if v, readOK := c.sites[home].ReadableSnapshot(varName, t.StartTime); readOK {
			value, ok, siteID = v, true, home
		}
	}

	if !ok {
		c.logger.Debug("read unavailable, aborting", "txn", txnID, "var", varName)
		c.abort(t, "read "+varName+" unavailable")
		return nil
	}

	t.AddRead(varName)
	t.AddAccessedSite(siteID)
	c.printf("%s: %d", varName, value)
	return nil
}

// Write buffers a pending write and records every currently-up site
// holding varName as accessed — no site is mutated until commit.
func (c *Coordinator) Write(txnID, varName string, value int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.tick()

	t, err := c.lookup(txnID)
	if err != nil {
		return err
	}
	if !t.IsActive() {
		return nil
	}

	t.AddWrite(varName, value)

	var affected []int
	for id := 1; id <= variable.Sites; id++ {
		s := c.sites[id]
		if s.IsUp() && s.Holds(varName) {
			t.AddAccessedSite(id)
			affected = append(affected, id)
		}
	}
	c.printf("%s writes %s: %d at sites %s", txnID, varName, value, formatSites(affected))
	return nil
}

// End attempts to commit txnID: doomed-site check, then SSI
// validation, then (on success) applies the write set to every
// currently-up site holding each written variable.
func (c *Coordinator) End(txnID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.tick()

	t, err := c.lookup(txnID)
	if err != nil {
		return err
	}

	if t.IsTerminal() {
		if t.Status == txn.Aborted {
			c.printf("%s aborts", txnID)
		}
		return nil
	}

	if t.Doomed {
		c.abort(t, "accessed a site that failed while the transaction held it")
		return nil
	}

	result := validate(t, c.committed)
	if !result.accepted {
		c.logger.Info("commit rejected by validator", "txn", txnID, "reason", result.reason, "cycle", result.cycle)
		c.dumpGraphOnReject(t, result)
		c.abort(t, result.reason)
		return nil
	}

	t.Commit(c.clock)
	c.committed = append(c.committed, t)

	for varName, value := range t.WriteSet {
		for id := 1; id <= variable.Sites; id++ {
			s := c.sites[id]
			if s.IsUp() && s.Holds(varName) {
				s.Write(varName, value, c.clock)
			}
		}
	}

	c.logger.Debug("commit", "txn", txnID, "at", c.clock, "writes", len(t.WriteSet))
	c.printf("%s commits", txnID)
	c.retireTxn(t.ID)
	return nil
}

func (c *Coordinator) abort(t *txn.Transaction, reason string) {
	t.Abort(c.clock)
	c.logger.Debug("abort", "txn", t.ID, "reason", reason, "at", c.clock)
	c.printf("%s aborts", t.ID)
	c.retireTxn(t.ID)
}

// retireTxn drops a finished transaction from the active-start set and
// runs history GC against every site using the new oldest watermark.
func (c *Coordinator) retireTxn(id string) {
	delete(c.activeStart, id)
	oldest := c.clock
	for _, start := range c.activeStart {
		if start < oldest {
			oldest = start
		}
	}
	for _, s := range c.sites {
		s.GC(oldest)
	}
}

// Fail marks a site down at the current time and dooms every active
// transaction that already has the site in its access set — matching
// the access-at-failure-time check the original TransactionManager
// performs in fail(), rather than end() re-deriving it later from
// whether the site ever failed after the transaction's start_time
// (which would also doom transactions that only touched the site after
// it had already recovered).
func (c *Coordinator) Fail(siteID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.tick()

	s, err := c.lookupSite(siteID)
	if err != nil {
		return err
	}
	s.Fail(c.clock)
	for id := range c.activeStart {
		t, ok := c.txns.Get(id)
		if !ok {
			continue
		}
		if _, accessed := t.AccessedSites[siteID]; accessed {
			t.Doomed = true
		}
	}
	c.printf("Site %d fails at time %d", siteID, c.clock)
	return nil
}

// Recover marks a site up at the current time and applies its
// recovery semantics to the variables it holds.
func (c *Coordinator) Recover(siteID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.tick()

	s, err := c.lookupSite(siteID)
	if err != nil {
		return err
	}
	s.Recover(c.clock)
	c.printf("Site %d recovers at time %d", siteID, c.clock)
	return nil
}

// Dump prints the committed state of every site, in site-id order.
func (c *Coordinator) Dump() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.tick()

	ids := make([]int, 0, len(c.sites))
	for id := range c.sites {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		vars := c.sites[id].Dump(c.clock)
		parts := make([]string, len(vars))
		for i, v := range vars {
			parts[i] = fmt.Sprintf("%s: %d", v.Name, v.Value)
		}
		c.printf("site %d - %s", id, joinComma(parts))
	}
	return nil
}

func (c *Coordinator) tick() {
	c.clock++
}

func (c *Coordinator) lookup(id string) (*txn.Transaction, error) {
	t, ok := c.txns.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTxn, id)
	}
	return t, nil
}

func (c *Coordinator) lookupSite(id int) (*site.Site, error) {
	s, ok := c.sites[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrSiteRange, id)
	}
	return s, nil
}

// dumpGraphOnReject renders the conflict edges that led to a rejected
// commit as a DOT graph, for offline inspection with graphviz, when
// the coordinator was configured with a graph directory.
func (c *Coordinator) dumpGraphOnReject(t *txn.Transaction, result validation) {
	if c.graphDir == "" {
		return
	}
	g := dot.NewGraph(dot.Directed)
	g.Attr("label", result.reason)

	nodes := make(map[string]dot.Node)
	node := func(id string) dot.Node {
		if n, ok := nodes[id]; ok {
			return n
		}
		n := g.Node(id)
		nodes[id] = n
		return n
	}
	for _, e := range result.edges {
		g.Edge(node(e.from), node(e.to)).Attr("label", string(e.kind))
	}

	path := fmt.Sprintf("%s/%s-%d.dot", c.graphDir, t.ID, c.clock)
	if err := os.WriteFile(path, []byte(g.String()), 0o644); err != nil {
		c.logger.Warn("failed to write conflict graph", "path", path, "err", err)
	}
}

func formatSites(ids []int) string {
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return "[" + joinComma(parts) + "]"
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
