package names

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnterNameInterningIsStable(t *testing.T) {
	var tbl Table

	r1, err := tbl.EnterName(Source, "foo")
	require.NoError(t, err)
	r2, err := tbl.EnterName(Source, "foo")
	require.NoError(t, err)
	require.Equal(t, r1, r2, "re-entering the same source identifier must return the same Ref")

	r3, err := tbl.EnterName(Constant, "foo")
	require.NoError(t, err)
	require.NotEqual(t, r1, r3, "a Constant and a Source name with the same text must be distinct")
}

func TestEnterNameUniqueAlwaysFresh(t *testing.T) {
	var tbl Table
	a, err := tbl.EnterName(Unique, "tmp")
	require.NoError(t, err)
	b, err := tbl.EnterName(Unique, "tmp")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.NotEqual(t, tbl.Text(a), tbl.Text(b))
	require.True(t, tbl.IsSynthetic(a))
	require.True(t, tbl.IsSynthetic(b))
}

func TestFreezeRejectsMutation(t *testing.T) {
	var tbl Table
	r, err := tbl.EnterName(Source, "x")
	require.NoError(t, err)

	tbl.Freeze()
	require.True(t, tbl.IsFrozen())

	_, err = tbl.EnterName(Source, "y")
	require.Error(t, err)
	var ferr *FrozenTableError
	require.ErrorAs(t, err, &ferr)

	// Freeze is idempotent and reads still work after a second Freeze.
	tbl.Freeze()
	require.Equal(t, "x", tbl.Text(r))
}

func TestNamesNeverDeleted(t *testing.T) {
	var tbl Table
	r1, _ := tbl.EnterName(Source, "a")
	r2, _ := tbl.EnterName(Source, "b")
	require.NotEqual(t, r1, r2)
	require.Equal(t, "a", tbl.Text(r1))
	require.Equal(t, "b", tbl.Text(r2))
}
