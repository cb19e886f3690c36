package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusync/idnsync/pkg/fanout"
	"github.com/edusync/idnsync/pkg/ldaptime"
	"github.com/edusync/idnsync/pkg/schema"
	"github.com/edusync/idnsync/pkg/types"
)

func TestDrainReplacesWatchedAttributes(t *testing.T) {
	s := newSharedSetup(t)
	dn := "cn=jdoe," + testSharedBase
	s.dir.put(dn, map[string][]string{
		schema.AttrCN:        {"jdoe"},
		schema.AttrUniqueID:  {"880123"},
		schema.AttrGivenName: {"Jane"},
	})
	q := fanout.NewQueue()
	q.RecordChange("jdoe", map[string]schema.Value{
		schema.AttrGivenName: schema.NewString("Janet"),
	})

	err := s.rec.DrainFanout(context.Background(), q)

	require.NoError(t, err)
	require.Len(t, s.dir.modifies, 1)
	mod := s.dir.modifies[0]
	assert.Equal(t, dn, mod.dn)
	assert.Equal(t, []string{"Janet"}, mod.replace[schema.AttrGivenName])
	assert.Equal(t, []string{ldaptime.Format(testTime)}, mod.replace[schema.AttrETLTimestamp])
	assert.Nil(t, mod.remove, "watched attributes are never deleted in the shared tenant")
	assert.Zero(t, q.Len())
}

func TestDrainSkipsMissingSharedEntry(t *testing.T) {
	s := newSharedSetup(t)
	q := fanout.NewQueue()
	q.RecordChange("ghost", map[string]schema.Value{
		schema.AttrGivenName: schema.NewString("Janet"),
	})

	err := s.rec.DrainFanout(context.Background(), q)

	require.NoError(t, err)
	assert.Zero(t, s.dir.writes())
}

func TestDrainSkipsEqualValues(t *testing.T) {
	s := newSharedSetup(t)
	s.dir.put("cn=jdoe,"+testSharedBase, map[string][]string{
		schema.AttrCN:        {"jdoe"},
		schema.AttrGivenName: {"Jane"},
	})
	q := fanout.NewQueue()
	q.RecordChange("jdoe", map[string]schema.Value{
		schema.AttrGivenName: schema.NewString("Jane"),
	})

	err := s.rec.DrainFanout(context.Background(), q)

	require.NoError(t, err)
	assert.Zero(t, s.dir.writes())
}

func TestDrainPasswordComparesBeforeWriting(t *testing.T) {
	s := newSharedSetup(t)
	c := testCipher(t)
	stored, err := c.Encrypt("geheim")
	require.NoError(t, err)
	dn := "cn=jdoe," + testSharedBase
	s.dir.put(dn, map[string][]string{
		schema.AttrCN:       {"jdoe"},
		schema.AttrPassword: {stored},
	})

	q := fanout.NewQueue()
	q.RecordChange("jdoe", map[string]schema.Value{
		schema.AttrPassword: schema.NewString("geheim"),
	})
	require.NoError(t, s.rec.DrainFanout(context.Background(), q))
	assert.Zero(t, s.dir.writes(), "unchanged password must not be rewritten")

	q.RecordChange("jdoe", map[string]schema.Value{
		schema.AttrPassword: schema.NewString("neugeheim"),
	})
	require.NoError(t, s.rec.DrainFanout(context.Background(), q))

	require.Len(t, s.dir.modifies, 1)
	replaced := s.dir.modifies[0].replace[schema.AttrPassword]
	require.Len(t, replaced, 1)
	clear, err := c.Decrypt(replaced[0])
	require.NoError(t, err)
	assert.Equal(t, "neugeheim", clear)
	require.Len(t, s.dir.passwds, 1)
	assert.Equal(t, passwdOp{dn: dn, password: "neugeheim"}, s.dir.passwds[0])
}

func TestDrainRenameResyncsSharedRows(t *testing.T) {
	s := newSharedSetup(t)
	s.src.add("880123", personRow(880123, "janed", map[string]any{"surname": "Doe"}))
	oldDN := "cn=jdoe," + testSharedBase
	s.dir.put(oldDN, map[string][]string{
		schema.AttrCN:       {"jdoe"},
		schema.AttrUniqueID: {"880123"},
		schema.AttrSN:       {"Doe"},
	})
	q := fanout.NewQueue()
	q.RecordRename("jdoe", "janed")

	err := s.rec.DrainFanout(context.Background(), q)

	require.NoError(t, err)
	require.Len(t, s.dir.renames, 1)
	assert.Equal(t, renameOp{dn: oldDN, newRDN: "cn=janed"}, s.dir.renames[0])
	e := s.dir.entry(t, "cn=janed,"+testSharedBase)
	assert.Equal(t, []string{"janed"}, e.Values(schema.AttrCN))
}

func TestDrainRenameWithoutSharedRowDoesNothing(t *testing.T) {
	s := newSharedSetup(t)
	s.dir.put("cn=jdoe,"+testSharedBase, map[string][]string{
		schema.AttrCN: {"jdoe"},
	})
	q := fanout.NewQueue()
	q.RecordRename("jdoe", "janed")

	err := s.rec.DrainFanout(context.Background(), q)

	require.NoError(t, err)
	assert.Zero(t, s.dir.writes(), "shared persons are only renamed when the shared source knows them")
}

func TestDrainKeepsGoingAfterItemFailure(t *testing.T) {
	s := newSharedSetup(t)
	s.dir.put("cn=broken,"+testSharedBase, map[string][]string{
		schema.AttrCN:        {"broken"},
		schema.AttrGivenName: {"Old"},
	})
	s.dir.put("cn=fine,"+testSharedBase, map[string][]string{
		schema.AttrCN:        {"fine"},
		schema.AttrGivenName: {"Old"},
	})
	s.dir.modifyErrFor["cn=broken,"+testSharedBase] = assert.AnError

	q := fanout.NewQueue()
	q.RecordChange("broken", map[string]schema.Value{schema.AttrGivenName: schema.NewString("New")})
	q.RecordChange("fine", map[string]schema.Value{schema.AttrGivenName: schema.NewString("New")})

	require.NoError(t, s.rec.DrainFanout(context.Background(), q),
		"item failures are logged, not returned")

	assert.Equal(t, []string{"Old"},
		s.dir.entry(t, "cn=broken,"+testSharedBase).Values(schema.AttrGivenName))
	assert.Equal(t, []string{"New"},
		s.dir.entry(t, "cn=fine,"+testSharedBase).Values(schema.AttrGivenName))
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	s := newSharedSetup(t)
	q := fanout.NewQueue()
	q.RecordChange("jdoe", map[string]schema.Value{schema.AttrGivenName: schema.NewString("x")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.rec.DrainFanout(ctx, q)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.dir.writes())
}

func TestFanoutEndToEnd(t *testing.T) {
	// A change in a regular tenant travels through the queue into the
	// shared tenant's entry.
	tenant := newTestSetup(t)
	tenant.src.add("4711", personRow(4711, "jdoe", map[string]any{
		"given":   "Janet",
		"surname": "Doe",
	}))
	tenant.dir.put("cn=jdoe,"+testBase, map[string][]string{
		schema.AttrCN:        {"jdoe"},
		schema.AttrUniqueID:  {"4711"},
		schema.AttrGivenName: {"Jane"},
		schema.AttrSN:        {"Doe"},
	})

	upd := tenant.rec.ProcessEvent(context.Background(), testEvent(1, types.EventTypeUpdate, "4711"))
	require.Equal(t, types.StatusSuccess, upd.Status)
	require.Equal(t, 1, tenant.queue.Len())

	shared := newSharedSetup(t)
	shared.dir.put("cn=jdoe,"+testSharedBase, map[string][]string{
		schema.AttrCN:        {"jdoe"},
		schema.AttrUniqueID:  {"880123"},
		schema.AttrGivenName: {"Jane"},
	})

	require.NoError(t, shared.rec.DrainFanout(context.Background(), tenant.queue))

	e := shared.dir.entry(t, "cn=jdoe,"+testSharedBase)
	assert.Equal(t, []string{"Janet"}, e.Values(schema.AttrGivenName))
	assert.True(t, e.HasAttr(schema.AttrETLTimestamp))
}

func TestSharedTenantDoesNotQueueItsOwnChanges(t *testing.T) {
	dirFake := newFakeDirectory()
	srcFake := newFakeSource()
	q := fanout.NewQueue()
	rec := New(Config{
		Tenant:     types.Tenant{Database: "shared", BaseDN: testSharedBase, Shared: true},
		Source:     srcFake,
		Directory:  dirFake,
		Cipher:     testCipher(t),
		Queue:      q,
		RootDN:     testRoot,
		SharedBase: testSharedBase,
	})
	srcFake.add("880123", personRow(880123, "jdoe", map[string]any{"given": "Janet"}))
	dirFake.put("cn=jdoe,"+testSharedBase, map[string][]string{
		schema.AttrCN:        {"jdoe"},
		schema.AttrUniqueID:  {"880123"},
		schema.AttrGivenName: {"Jane"},
	})

	upd := rec.ProcessEvent(context.Background(), testEvent(1, types.EventTypeUpdate, "880123"))

	require.Equal(t, types.StatusSuccess, upd.Status)
	assert.Zero(t, q.Len(), "shared-tenant changes must not feed back into the queue")
}
