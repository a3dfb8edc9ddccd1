package symbols

import (
	"testing"

	"github.com/sorbet-go/checker/internal/names"
	"github.com/stretchr/testify/require"
)

func TestEnterSymbolIsIdempotentPerOwnerName(t *testing.T) {
	var nt names.Table
	tbl := NewTable()

	n, _ := nt.EnterName(names.Source, "Foo")
	r1, err := tbl.EnterSymbol(Root, n, Class)
	require.NoError(t, err)
	r2, err := tbl.EnterSymbol(Root, n, Class)
	require.NoError(t, err)
	require.Equal(t, r1, r2)
}

func TestFinalizeArgumentsSynthesizesBlock(t *testing.T) {
	var nt names.Table
	tbl := NewTable()
	mname, _ := nt.EnterName(names.Source, "bar")
	m, err := tbl.EnterSymbol(Root, mname, Method)
	require.NoError(t, err)

	argName, _ := nt.EnterName(names.Source, "x")
	require.NoError(t, tbl.AddArgument(m, Argument{Name: argName}))

	blockName, _ := nt.EnterName(names.Unique, "<block>")
	require.NoError(t, tbl.FinalizeArguments(m, blockName))

	sym, ok := tbl.Get(m)
	require.True(t, ok)
	require.Len(t, sym.Arguments, 2)
	require.True(t, sym.Arguments[len(sym.Arguments)-1].Block)
}

func TestFinalizeArgumentsIsIdempotent(t *testing.T) {
	var nt names.Table
	tbl := NewTable()
	mname, _ := nt.EnterName(names.Source, "baz")
	m, _ := tbl.EnterSymbol(Root, mname, Method)
	blockName, _ := nt.EnterName(names.Unique, "<block>")

	require.NoError(t, tbl.FinalizeArguments(m, blockName))
	require.NoError(t, tbl.FinalizeArguments(m, blockName))

	sym, _ := tbl.Get(m)
	require.Len(t, sym.Arguments, 1, "calling FinalizeArguments twice must not add a second block arg")
}

func TestLinearizationMixinOrderAndCaching(t *testing.T) {
	var nt names.Table
	tbl := NewTable()

	mkClass := func(name string) Ref {
		n, _ := nt.EnterName(names.Source, name)
		r, _ := tbl.EnterSymbol(Root, n, Class)
		return r
	}
	object := mkClass("Object")
	m1 := mkClass("M1")
	m2 := mkClass("M2")
	base := mkClass("Base")
	require.NoError(t, tbl.SetSuperClass(base, object))

	child := mkClass("Child")
	require.NoError(t, tbl.SetSuperClass(child, base))
	require.NoError(t, tbl.AddMixin(child, m1))
	require.NoError(t, tbl.AddMixin(child, m2))

	lin, err := tbl.Linearize(child)
	require.NoError(t, err)
	// Nearest-included-first: M2 was included last, so it's searched
	// before M1.
	require.Equal(t, []Ref{child, m2, m1, base, object}, lin)

	// Mutating Mixins after Linearize must not change the cached result.
	require.NoError(t, tbl.AddMixin(child, m1))
	lin2, err := tbl.Linearize(child)
	require.NoError(t, err)
	require.Equal(t, lin, lin2)
}

func TestDefinesBehaviorIgnoresRewriterSynthesized(t *testing.T) {
	var nt names.Table
	tbl := NewTable()
	cn, _ := nt.EnterName(names.Source, "C")
	cls, _ := tbl.EnterSymbol(Root, cn, Class)

	mn, _ := nt.EnterName(names.Source, "synthesized")
	_, err := tbl.EnterSymbol(cls, mn, Method|RewriterSynthesized)
	require.NoError(t, err)
	require.False(t, tbl.DefinesBehavior(cls))

	mn2, _ := nt.EnterName(names.Source, "real")
	_, err = tbl.EnterSymbol(cls, mn2, Method)
	require.NoError(t, err)
	require.True(t, tbl.DefinesBehavior(cls))
}

func TestFreezeRejectsMutation(t *testing.T) {
	var nt names.Table
	tbl := NewTable()
	n, _ := nt.EnterName(names.Source, "X")
	r, err := tbl.EnterSymbol(Root, n, Class)
	require.NoError(t, err)

	tbl.Freeze()
	err = tbl.AddMixin(r, Root)
	require.Error(t, err)
	var ferr *FrozenTableError
	require.ErrorAs(t, err, &ferr)
}
