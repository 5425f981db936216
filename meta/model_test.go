package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDimAndVar(t *testing.T) {
	m := New()

	rec, err := m.AddDim(Root, "time", Unlimited)
	require.NoError(t, err)
	assert.True(t, rec.Unlimited)
	assert.Equal(t, uint64(0), rec.Len)

	col, err := m.AddDim(Root, "col", 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), col.Len)

	v, err := m.AddVar(Root, "temp", Float, []DimID{rec.ID, col.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, v.Rank())

	// Duplicate names collide within a group.
	_, err = m.AddDim(Root, "col", 9)
	assert.ErrorIs(t, err, ErrExists)
	_, err = m.AddVar(Root, "temp", Int, nil)
	assert.ErrorIs(t, err, ErrExists)

	// Names may not be empty or contain a path separator.
	_, err = m.AddDim(Root, "", 1)
	assert.ErrorIs(t, err, ErrBadName)
	_, err = m.AddVar(Root, "a/b", Int, nil)
	assert.ErrorIs(t, err, ErrBadName)
}

func TestDimVisibilityAcrossGroups(t *testing.T) {
	m := New()
	rootDim, err := m.AddDim(Root, "n", 3)
	require.NoError(t, err)

	g, err := m.AddGroup(Root, "obs")
	require.NoError(t, err)
	childDim, err := m.AddDim(g.ID, "m", 2)
	require.NoError(t, err)

	// An ancestor dimension is visible from the child group.
	_, err = m.AddVar(g.ID, "uses_root", Int, []DimID{rootDim.ID})
	assert.NoError(t, err)

	// A child-group dimension is not visible from the root.
	_, err = m.AddVar(Root, "uses_child", Int, []DimID{childDim.ID})
	assert.ErrorIs(t, err, ErrBadRef)

	// Nor is a dimension id that was never defined.
	_, err = m.AddVar(Root, "dangling", Int, []DimID{99})
	assert.ErrorIs(t, err, ErrBadRef)
}

func TestAddTypeResolution(t *testing.T) {
	m := New()

	enum, err := m.AddType(Root, TypeDef{
		Name:    "level",
		Class:   ClassEnum,
		Base:    Short,
		Members: []EnumMember{{Name: "low", Value: 0}, {Name: "high", Value: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, KindShort, enum.Kind)
	assert.Equal(t, 2, enum.Size)
	assert.GreaterOrEqual(t, enum.ID, UserBase)

	// An enum over an unresolvable base is rejected.
	_, err = m.AddType(Root, TypeDef{Name: "bad", Class: ClassEnum, Base: TypeID(99)})
	assert.ErrorIs(t, err, ErrBadRef)

	cmp, err := m.AddType(Root, TypeDef{
		Name:  "point",
		Class: ClassCompound,
		Size:  16,
		Fields: []Field{
			{Name: "x", Type: Double, Offset: 0},
			{Name: "lvl", Type: enum.ID, Offset: 8},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 16, m.TypeSize(cmp.ID))

	_, err = m.AddType(Root, TypeDef{
		Name:   "broken",
		Class:  ClassCompound,
		Size:   8,
		Fields: []Field{{Name: "f", Type: TypeID(99)}},
	})
	assert.ErrorIs(t, err, ErrBadRef)

	// Vlen types have no fixed size but must have a resolvable base.
	vl, err := m.AddType(Root, TypeDef{Name: "list", Class: ClassVarLen, Base: Int})
	require.NoError(t, err)
	assert.Equal(t, 0, m.TypeSize(vl.ID))

	// A variable over an unsized type is rejected; String is the one
	// variable-sized type a variable may still declare.
	_, err = m.AddVar(Root, "v", vl.ID, nil)
	assert.ErrorIs(t, err, ErrBadRef)
	_, err = m.AddVar(Root, "s", String, nil)
	assert.NoError(t, err)
}

func TestSetAttrUpsert(t *testing.T) {
	m := New()
	v, err := m.AddVar(Root, "x", Int, nil)
	require.NoError(t, err)

	require.NoError(t, m.SetAttr(Root, v.ID, Attribute{Name: "units", Type: Char, Nelems: 1, Data: []byte("K")}))
	require.NoError(t, m.SetAttr(Root, v.ID, Attribute{Name: "valid", Type: Int, Nelems: 1, Data: []byte{1, 0, 0, 0}}))

	// Replacing keeps the attribute's position.
	require.NoError(t, m.SetAttr(Root, v.ID, Attribute{Name: "units", Type: Char, Nelems: 2, Data: []byte("mK")}))
	require.Len(t, v.Attrs, 2)
	assert.Equal(t, "units", v.Attrs[0].Name)
	assert.Equal(t, []byte("mK"), v.Attrs[0].Data)

	// Group attributes address the group through Global.
	require.NoError(t, m.SetAttr(Root, Global, Attribute{Name: "title", Type: Char, Nelems: 1, Data: []byte("t")}))
	a, ok := m.Root().Attr("title")
	require.True(t, ok)
	assert.Equal(t, []byte("t"), a.Data)

	// SetAttr copies the value; later caller mutation does not leak in.
	buf := []byte{7, 0, 0, 0}
	require.NoError(t, m.SetAttr(Root, v.ID, Attribute{Name: "valid", Type: Int, Nelems: 1, Data: buf}))
	buf[0] = 9
	a, ok = v.Attr("valid")
	require.True(t, ok)
	assert.Equal(t, byte(7), a.Data[0])
}

func TestAttrDeleteAndRename(t *testing.T) {
	m := New()
	require.NoError(t, m.SetAttr(Root, Global, Attribute{Name: "a", Type: Int, Nelems: 0}))
	require.NoError(t, m.SetAttr(Root, Global, Attribute{Name: "b", Type: Int, Nelems: 0}))

	assert.ErrorIs(t, m.RenameAttr(Root, Global, "a", "b"), ErrExists)
	require.NoError(t, m.RenameAttr(Root, Global, "a", "c"))
	_, ok := m.Root().Attr("c")
	assert.True(t, ok)

	require.NoError(t, m.DelAttr(Root, Global, "b"))
	assert.ErrorIs(t, m.DelAttr(Root, Global, "b"), ErrNotFound)
	assert.ErrorIs(t, m.RenameAttr(Root, Global, "missing", "x"), ErrNotFound)
}

func TestRenames(t *testing.T) {
	m := New()
	d1, err := m.AddDim(Root, "rows", 2)
	require.NoError(t, err)
	_, err = m.AddDim(Root, "cols", 3)
	require.NoError(t, err)
	v1, err := m.AddVar(Root, "a", Int, nil)
	require.NoError(t, err)
	_, err = m.AddVar(Root, "b", Int, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, m.RenameDim(d1.ID, "cols"), ErrExists)
	require.NoError(t, m.RenameDim(d1.ID, "lines"))
	assert.Equal(t, "lines", d1.Name)

	// Renaming to the current name is a no-op, not a collision.
	assert.NoError(t, m.RenameDim(d1.ID, "lines"))

	assert.ErrorIs(t, m.RenameVar(v1.ID, "b"), ErrExists)
	require.NoError(t, m.RenameVar(v1.ID, "alpha"))

	assert.ErrorIs(t, m.RenameDim(DimID(42), "x"), ErrNotFound)
	assert.ErrorIs(t, m.RenameVar(VarID(42), "x"), ErrNotFound)
}
