package reconciler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/edusync/idnsync/pkg/cipher"
	"github.com/edusync/idnsync/pkg/directory"
	"github.com/edusync/idnsync/pkg/fanout"
	"github.com/edusync/idnsync/pkg/schema"
	"github.com/edusync/idnsync/pkg/source"
	"github.com/edusync/idnsync/pkg/types"
)

// Test topology shared across the reconciler tests: one regular tenant
// and the shared tenant, both below a common root.
const (
	testRoot       = "o=edu"
	testBase       = "ou=user,ou=inst07,o=edu"
	testSharedBase = "ou=user,ou=shared,o=edu"
)

var testTime = time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC)

func testCipher(t *testing.T) *cipher.Cipher {
	t.Helper()
	c, err := cipher.NewFromPassword("0123456789abcdef")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	return c
}

// testEvent builds a fresh event envelope the way the trigger writes it.
func testEvent(id int64, typ types.EventType, uid string) types.Event {
	return types.Event{
		RecordID:  id,
		TableKey:  "uniqueid=" + uid,
		Status:    types.StatusNew,
		Type:      typ,
		Time:      testTime,
		TableName: types.SourceView,
	}
}

// personRow builds a source view row. uniqueid is a float64 like the
// driver delivers it.
func personRow(uid float64, username string, extra map[string]any) source.Row {
	row := source.Row{"uniqueid": uid, "username": username}
	for col, v := range extra {
		row[col] = v
	}
	return row
}

type modifyOp struct {
	dn      string
	replace map[string][]string
	remove  []string
}

type renameOp struct{ dn, newRDN string }

type passwdOp struct{ dn, password string }

// fakeDirectory is an in-memory directory.Gateway. Entries live in a map
// keyed by DN; every write is recorded for assertions.
type fakeDirectory struct {
	entries map[string]*directory.Entry
	order   []string

	// ghosts are reported by searches although no entry exists, the way
	// a server can briefly keep reporting an entry deleted a moment ago.
	ghosts []directory.Entry

	adds     []string
	modifies []modifyOp
	renames  []renameOp
	removed  []string
	passwds  []passwdOp
	ops      []string

	searchErr error
	getErr    error
	addErr    error
	modifyErr error
	deleteErr error

	// modifyErrFor fails modifies of single DNs, for skip-and-continue
	// tests.
	modifyErrFor map[string]error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		entries:      make(map[string]*directory.Entry),
		modifyErrFor: make(map[string]error),
	}
}

// put seeds an entry without recording a write.
func (f *fakeDirectory) put(dn string, attrs map[string][]string) {
	copied := make(map[string][]string, len(attrs))
	for name, values := range attrs {
		copied[name] = append([]string(nil), values...)
	}
	if _, exists := f.entries[dn]; !exists {
		f.order = append(f.order, dn)
	}
	f.entries[dn] = &directory.Entry{DN: dn, Attrs: copied}
}

// entry fails the test when dn is absent.
func (f *fakeDirectory) entry(t *testing.T, dn string) *directory.Entry {
	t.Helper()
	e, ok := f.entries[dn]
	if !ok {
		t.Fatalf("no entry %s, have %v", dn, f.order)
	}
	return e
}

// writes counts all recorded write operations.
func (f *fakeDirectory) writes() int {
	return len(f.adds) + len(f.modifies) + len(f.renames) + len(f.removed) + len(f.passwds)
}

func splitFilter(filter string) (attr, value string, ok bool) {
	inner := strings.TrimSuffix(strings.TrimPrefix(filter, "("), ")")
	attr, value, ok = strings.Cut(inner, "=")
	return attr, value, ok && attr != ""
}

func underBase(dn, base string) bool {
	return dn == base || strings.HasSuffix(dn, ","+base)
}

func (f *fakeDirectory) Search(base string, scope directory.Scope, filter string, attrs []string) ([]directory.Entry, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	attr, value, ok := splitFilter(filter)
	if !ok {
		return nil, fmt.Errorf("fake cannot parse filter %q", filter)
	}

	var found []directory.Entry
	match := func(e *directory.Entry) {
		if !underBase(e.DN, base) {
			return
		}
		if scope == directory.ScopeBase && e.DN != base {
			return
		}
		for _, v := range e.Values(attr) {
			if v == value {
				found = append(found, *e)
				return
			}
		}
	}
	for _, dn := range f.order {
		if e, ok := f.entries[dn]; ok {
			match(e)
		}
	}
	for i := range f.ghosts {
		match(&f.ghosts[i])
	}
	return found, nil
}

func (f *fakeDirectory) SearchPaged(base, filter string, attrs []string, pageSize uint32) ([]directory.Entry, error) {
	return f.Search(base, directory.ScopeSubtree, filter, attrs)
}

func (f *fakeDirectory) GetEntry(dn string, attrs []string) (*directory.Entry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	e, ok := f.entries[dn]
	if !ok {
		return nil, fmt.Errorf("%w: %s", directory.ErrNotFound, dn)
	}
	copied := *e
	return &copied, nil
}

func (f *fakeDirectory) Add(dn string, attrs map[string][]string) error {
	if f.addErr != nil {
		return f.addErr
	}
	if _, exists := f.entries[dn]; exists {
		return fmt.Errorf("entry already exists: %s", dn)
	}
	f.put(dn, attrs)
	f.adds = append(f.adds, dn)
	f.ops = append(f.ops, "add "+dn)
	return nil
}

func (f *fakeDirectory) Modify(dn string, replace map[string][]string, remove []string) error {
	if f.modifyErr != nil {
		return f.modifyErr
	}
	if err := f.modifyErrFor[dn]; err != nil {
		return err
	}
	e, ok := f.entries[dn]
	if !ok {
		return fmt.Errorf("modify of missing entry %s", dn)
	}
	for name, values := range replace {
		e.Attrs[name] = append([]string(nil), values...)
	}
	for _, name := range remove {
		delete(e.Attrs, name)
	}
	f.modifies = append(f.modifies, modifyOp{dn: dn, replace: replace, remove: remove})
	f.ops = append(f.ops, "modify "+dn)
	return nil
}

func (f *fakeDirectory) ModifyDN(dn, newRDN string) error {
	e, ok := f.entries[dn]
	if !ok {
		return fmt.Errorf("rename of missing entry %s", dn)
	}
	delete(f.entries, dn)
	newDN := newRDN + "," + parentDN(dn)
	e.DN = newDN
	if _, value, ok := strings.Cut(newRDN, "="); ok {
		e.Attrs[schema.AttrCN] = []string{value}
	}
	f.entries[newDN] = e
	f.order = append(f.order, newDN)
	f.renames = append(f.renames, renameOp{dn: dn, newRDN: newRDN})
	f.ops = append(f.ops, "modifydn "+dn)
	return nil
}

func (f *fakeDirectory) Delete(dn string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.entries[dn]; !ok {
		return fmt.Errorf("delete of missing entry %s", dn)
	}
	delete(f.entries, dn)
	f.removed = append(f.removed, dn)
	f.ops = append(f.ops, "delete "+dn)
	return nil
}

func (f *fakeDirectory) ModifyPassword(dn, password string) error {
	f.passwds = append(f.passwds, passwdOp{dn: dn, password: password})
	f.ops = append(f.ops, "passwd "+dn)
	return nil
}

func (f *fakeDirectory) Close() error { return nil }

// fakeSource is an in-memory source.Gateway serving canned person rows.
// Only the person lookups are backed; the event methods are unused here.
type fakeSource struct {
	byUID  map[string][]source.Row
	byUser map[string][]source.Row
	err    error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		byUID:  make(map[string][]source.Row),
		byUser: make(map[string][]source.Row),
	}
}

func (f *fakeSource) add(uid string, row source.Row) {
	f.byUID[uid] = append(f.byUID[uid], row)
	if name, ok := row["username"].(string); ok {
		f.byUser[name] = append(f.byUser[name], row)
	}
}

func (f *fakeSource) PersonByUniqueID(ctx context.Context, uid string) ([]source.Row, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUID[uid], nil
}

func (f *fakeSource) PersonsByUsername(ctx context.Context, usernames ...string) ([]source.Row, error) {
	if f.err != nil {
		return nil, f.err
	}
	var rows []source.Row
	for _, name := range usernames {
		rows = append(rows, f.byUser[name]...)
	}
	return rows, nil
}

func (f *fakeSource) PendingEvents(context.Context, int) ([]types.Event, error) { return nil, nil }

func (f *fakeSource) EventsSince(context.Context, time.Time, int) ([]types.Event, error) {
	return nil, nil
}

func (f *fakeSource) UniqueIDBounds(context.Context) (int64, int64, bool, error) {
	return 0, 0, false, nil
}

func (f *fakeSource) PersonRange(context.Context, int64, int64) ([]source.Row, error) {
	return nil, nil
}

func (f *fakeSource) AllEvents(context.Context, *time.Time) ([]types.Event, error) {
	return nil, nil
}

func (f *fakeSource) WriteBack(context.Context, []source.EventUpdate) error { return nil }

func (f *fakeSource) Close() error { return nil }

// testSetup bundles a reconciler wired to fresh fakes for the regular
// test tenant.
type testSetup struct {
	rec   *Reconciler
	dir   *fakeDirectory
	src   *fakeSource
	queue *fanout.Queue
}

func newTestSetup(t *testing.T) *testSetup {
	t.Helper()
	s := &testSetup{
		dir:   newFakeDirectory(),
		src:   newFakeSource(),
		queue: fanout.NewQueue(),
	}
	s.rec = New(Config{
		Tenant:     types.Tenant{Database: "inst07", Label: "Inst 07", BaseDN: testBase},
		Source:     s.src,
		Directory:  s.dir,
		Cipher:     testCipher(t),
		Queue:      s.queue,
		RootDN:     testRoot,
		SharedBase: testSharedBase,
		Now:        func() time.Time { return testTime },
	})
	return s
}

// newSharedSetup builds a reconciler bound to the shared tenant, as the
// fan-out drain runs it.
func newSharedSetup(t *testing.T) *testSetup {
	t.Helper()
	s := &testSetup{
		dir: newFakeDirectory(),
		src: newFakeSource(),
	}
	s.rec = New(Config{
		Tenant:     types.Tenant{Database: "shared", Label: "Shared", BaseDN: testSharedBase, Shared: true},
		Source:     s.src,
		Directory:  s.dir,
		Cipher:     testCipher(t),
		RootDN:     testRoot,
		SharedBase: testSharedBase,
		Now:        func() time.Time { return testTime },
	})
	return s
}
