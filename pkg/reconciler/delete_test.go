package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edusync/idnsync/pkg/directory"
	"github.com/edusync/idnsync/pkg/schema"
	"github.com/edusync/idnsync/pkg/types"
)

func TestDeleteRemovesAllUniqueIDMatches(t *testing.T) {
	s := newTestSetup(t)
	s.dir.put("cn=jdoe,"+testBase, map[string][]string{
		schema.AttrCN: {"jdoe"}, schema.AttrUniqueID: {"4711"},
	})
	s.dir.put("cn=jdoe1,"+testBase, map[string][]string{
		schema.AttrCN: {"jdoe1"}, schema.AttrUniqueID: {"4711"},
	})
	s.dir.put("cn=other,"+testBase, map[string][]string{
		schema.AttrCN: {"other"}, schema.AttrUniqueID: {"9999"},
	})

	upd := s.rec.ProcessEvent(context.Background(), testEvent(1, types.EventTypeDelete, "4711"))

	assert.Equal(t, types.StatusSuccess, upd.Status)
	assert.Equal(t, []string{"cn=jdoe," + testBase, "cn=jdoe1," + testBase}, s.dir.removed)
	s.dir.entry(t, "cn=other,"+testBase)
}

func TestDeleteWithoutEntryIsSuccess(t *testing.T) {
	s := newTestSetup(t)

	upd := s.rec.ProcessEvent(context.Background(), testEvent(1, types.EventTypeDelete, "4711"))

	assert.Equal(t, types.StatusSuccess, upd.Status)
	assert.Empty(t, upd.Message)
	assert.Zero(t, s.dir.writes())
}

func TestDeleteRemovesOrphanedSharedTwin(t *testing.T) {
	s := newTestSetup(t)
	tenantDN := "cn=jdoe," + testBase
	sharedDN := "cn=jdoe," + testSharedBase
	s.dir.put(tenantDN, map[string][]string{
		schema.AttrCN: {"jdoe"}, schema.AttrUniqueID: {"4711"},
	})
	s.dir.put(sharedDN, map[string][]string{
		schema.AttrCN: {"jdoe"}, schema.AttrUniqueID: {"880123"},
	})

	upd := s.rec.ProcessEvent(context.Background(), testEvent(1, types.EventTypeDelete, "4711"))

	assert.Equal(t, types.StatusSuccess, upd.Status)
	assert.Equal(t, []string{tenantDN, sharedDN}, s.dir.removed)
}

func TestDeleteIgnoresStaleSearchResult(t *testing.T) {
	// The cross-tenant cn search may still report the entry that was
	// deleted a moment earlier. It must not count as a remaining match.
	s := newTestSetup(t)
	tenantDN := "cn=jdoe," + testBase
	sharedDN := "cn=jdoe," + testSharedBase
	s.dir.put(tenantDN, map[string][]string{
		schema.AttrCN: {"jdoe"}, schema.AttrUniqueID: {"4711"},
	})
	s.dir.put(sharedDN, map[string][]string{
		schema.AttrCN: {"jdoe"}, schema.AttrUniqueID: {"880123"},
	})
	s.dir.ghosts = append(s.dir.ghosts, directory.Entry{
		DN:    tenantDN,
		Attrs: map[string][]string{schema.AttrCN: {"jdoe"}},
	})

	upd := s.rec.ProcessEvent(context.Background(), testEvent(1, types.EventTypeDelete, "4711"))

	assert.Equal(t, types.StatusSuccess, upd.Status)
	assert.Contains(t, s.dir.removed, sharedDN)
}

func TestDeleteKeepsSharedTwinWithAccountStatus(t *testing.T) {
	for _, attr := range schema.AccountStatusAttrs {
		t.Run(attr, func(t *testing.T) {
			s := newTestSetup(t)
			tenantDN := "cn=jdoe," + testBase
			sharedDN := "cn=jdoe," + testSharedBase
			s.dir.put(tenantDN, map[string][]string{
				schema.AttrCN: {"jdoe"}, schema.AttrUniqueID: {"4711"},
			})
			s.dir.put(sharedDN, map[string][]string{
				schema.AttrCN: {"jdoe"}, attr: {"A"},
			})

			upd := s.rec.ProcessEvent(context.Background(), testEvent(1, types.EventTypeDelete, "4711"))

			assert.Equal(t, types.StatusSuccess, upd.Status)
			assert.Equal(t, []string{tenantDN}, s.dir.removed)
			s.dir.entry(t, sharedDN)
		})
	}
}

func TestDeleteKeepsSharedTwinWhenSeveralRemain(t *testing.T) {
	s := newTestSetup(t)
	tenantDN := "cn=jdoe," + testBase
	sharedDN := "cn=jdoe," + testSharedBase
	otherDN := "cn=jdoe,ou=user,ou=inst08,o=edu"
	s.dir.put(tenantDN, map[string][]string{
		schema.AttrCN: {"jdoe"}, schema.AttrUniqueID: {"4711"},
	})
	s.dir.put(sharedDN, map[string][]string{schema.AttrCN: {"jdoe"}})
	s.dir.put(otherDN, map[string][]string{schema.AttrCN: {"jdoe"}})

	upd := s.rec.ProcessEvent(context.Background(), testEvent(1, types.EventTypeDelete, "4711"))

	assert.Equal(t, types.StatusSuccess, upd.Status)
	assert.Equal(t, []string{tenantDN}, s.dir.removed)
	s.dir.entry(t, sharedDN)
	s.dir.entry(t, otherDN)
}

func TestDeleteKeepsRemainingMatchOutsideSharedTenant(t *testing.T) {
	s := newTestSetup(t)
	tenantDN := "cn=jdoe," + testBase
	otherDN := "cn=jdoe,ou=user,ou=inst08,o=edu"
	s.dir.put(tenantDN, map[string][]string{
		schema.AttrCN: {"jdoe"}, schema.AttrUniqueID: {"4711"},
	})
	s.dir.put(otherDN, map[string][]string{schema.AttrCN: {"jdoe"}})

	upd := s.rec.ProcessEvent(context.Background(), testEvent(1, types.EventTypeDelete, "4711"))

	assert.Equal(t, types.StatusSuccess, upd.Status)
	assert.Equal(t, []string{tenantDN}, s.dir.removed)
	s.dir.entry(t, otherDN)
}

func TestSharedTenantNeverChasesTwins(t *testing.T) {
	s := newSharedSetup(t)
	deletedDN := "cn=jdoe," + testSharedBase
	twinDN := "cn=jdoe,ou=etd," + testSharedBase
	s.dir.put(deletedDN, map[string][]string{
		schema.AttrCN: {"jdoe"}, schema.AttrUniqueID: {"880123"},
	})
	s.dir.put(twinDN, map[string][]string{schema.AttrCN: {"jdoe"}})

	err := s.rec.DeleteByUniqueID(context.Background(), "880123")

	require.NoError(t, err)
	assert.Equal(t, []string{deletedDN}, s.dir.removed)
	s.dir.entry(t, twinDN)
}

func TestDeleteFailuresAreRetryable(t *testing.T) {
	s := newTestSetup(t)
	s.dir.put("cn=jdoe,"+testBase, map[string][]string{
		schema.AttrCN: {"jdoe"}, schema.AttrUniqueID: {"4711"},
	})
	s.dir.deleteErr = assert.AnError

	upd := s.rec.ProcessEvent(context.Background(), testEvent(1, types.EventTypeDelete, "4711"))

	assert.Equal(t, types.StatusError, upd.Status)
	assert.Equal(t, float64(1), upd.Attempt)
}
