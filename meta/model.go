package meta

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Model mutation errors.
var (
	ErrExists   = os.ErrExist
	ErrNotFound = os.ErrNotExist
	ErrBadName  = errors.New("meta: invalid name")
	ErrBadRef   = errors.New("meta: unresolvable dimension or type reference")
)

// Dimension is a named extent shared by variables in its group and all
// nested groups. For an unlimited dimension, Len is the current number
// of records.
type Dimension struct {
	ID        DimID
	Name      string
	Len       uint64
	Unlimited bool
	Group     GrpID
}

// Attribute is a named, typed value attached to a group or variable.
// Data holds the value in the declared type's on-disk layout.
type Attribute struct {
	Name   string
	Type   TypeID
	Nelems int
	Data   []byte
}

// Variable is a named array over a list of dimensions.
type Variable struct {
	ID    VarID
	Name  string
	Type  TypeID
	Dims  []DimID
	Group GrpID
	Attrs []*Attribute

	// Fill overrides the type's default fill value when non-nil.
	Fill []byte
	// Chunks is the chunk shape for chunked enhanced-format storage.
	Chunks []uint64
}

// Rank returns the number of dimensions.
func (v *Variable) Rank() int { return len(v.Dims) }

// Attr returns the named attribute, if present.
func (v *Variable) Attr(name string) (*Attribute, bool) {
	for _, a := range v.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Group is one node of the schema tree.
type Group struct {
	ID     GrpID
	Name   string
	Parent *Group
	Groups []*Group
	Dims   []*Dimension
	Vars   []*Variable
	Types  []*Type
	Attrs  []*Attribute
}

// Model is the schema of one open dataset. It is owned exclusively by
// that dataset's session and is not safe for concurrent mutation.
type Model struct {
	root   *Group
	groups map[GrpID]*Group
	dims   map[DimID]*Dimension
	vars   map[VarID]*Variable
	types  map[TypeID]*Type

	nextDim  DimID
	nextVar  VarID
	nextGrp  GrpID
	nextType TypeID
}

// New returns an empty Model containing only the root group.
func New() *Model {
	root := &Group{ID: Root, Name: ""}
	return &Model{
		root:     root,
		groups:   map[GrpID]*Group{Root: root},
		dims:     map[DimID]*Dimension{},
		vars:     map[VarID]*Variable{},
		types:    map[TypeID]*Type{},
		nextGrp:  Root + 1,
		nextType: UserBase,
	}
}

func checkName(name string) error {
	if name == "" || strings.ContainsRune(name, '/') {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return nil
}

// AddGroup defines a new group under parent. The name must be unique
// among the parent's child groups.
func (m *Model) AddGroup(parent GrpID, name string) (*Group, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	p, ok := m.groups[parent]
	if !ok {
		return nil, fmt.Errorf("meta: group %d: %w", parent, ErrNotFound)
	}
	for _, g := range p.Groups {
		if g.Name == name {
			return nil, fmt.Errorf("meta: group %q: %w", name, ErrExists)
		}
	}
	g := &Group{ID: m.nextGrp, Name: name, Parent: p}
	m.nextGrp++
	p.Groups = append(p.Groups, g)
	m.groups[g.ID] = g
	return g, nil
}

// AddDim defines a dimension in grp. A length of Unlimited declares a
// record dimension.
func (m *Model) AddDim(grp GrpID, name string, length uint64) (*Dimension, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	g, ok := m.groups[grp]
	if !ok {
		return nil, fmt.Errorf("meta: group %d: %w", grp, ErrNotFound)
	}
	for _, d := range g.Dims {
		if d.Name == name {
			return nil, fmt.Errorf("meta: dimension %q: %w", name, ErrExists)
		}
	}
	d := &Dimension{ID: m.nextDim, Name: name, Group: grp}
	if length == Unlimited {
		d.Unlimited = true
	} else {
		d.Len = length
	}
	m.nextDim++
	g.Dims = append(g.Dims, d)
	m.dims[d.ID] = d
	return d, nil
}

// AddVar defines a variable in grp. Every referenced dimension must be
// visible from grp (defined there or in an ancestor) and the type must
// resolve within the model.
func (m *Model) AddVar(grp GrpID, name string, typ TypeID, dims []DimID) (*Variable, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	g, ok := m.groups[grp]
	if !ok {
		return nil, fmt.Errorf("meta: group %d: %w", grp, ErrNotFound)
	}
	for _, v := range g.Vars {
		if v.Name == name {
			return nil, fmt.Errorf("meta: variable %q: %w", name, ErrExists)
		}
	}
	if m.TypeSize(typ) == 0 && typ != String {
		return nil, fmt.Errorf("meta: type %d: %w", typ, ErrBadRef)
	}
	for _, id := range dims {
		if !m.dimVisible(g, id) {
			return nil, fmt.Errorf("meta: dimension %d: %w", id, ErrBadRef)
		}
	}
	v := &Variable{ID: m.nextVar, Name: name, Type: typ, Dims: append([]DimID(nil), dims...), Group: grp}
	m.nextVar++
	g.Vars = append(g.Vars, v)
	m.vars[v.ID] = v
	return v, nil
}

// AddType registers a user-defined type in grp.
func (m *Model) AddType(grp GrpID, def TypeDef) (*Type, error) {
	if err := checkName(def.Name); err != nil {
		return nil, err
	}
	g, ok := m.groups[grp]
	if !ok {
		return nil, fmt.Errorf("meta: group %d: %w", grp, ErrNotFound)
	}
	for _, t := range g.Types {
		if t.Name == def.Name {
			return nil, fmt.Errorf("meta: type %q: %w", def.Name, ErrExists)
		}
	}
	t := &Type{
		ID:      m.nextType,
		Name:    def.Name,
		Class:   def.Class,
		Size:    def.Size,
		Base:    def.Base,
		Fields:  append([]Field(nil), def.Fields...),
		Members: append([]EnumMember(nil), def.Members...),
		Group:   grp,
	}
	switch def.Class {
	case ClassCompound:
		for _, f := range t.Fields {
			if m.TypeSize(f.Type) == 0 {
				return nil, fmt.Errorf("meta: field %q type %d: %w", f.Name, f.Type, ErrBadRef)
			}
		}
	case ClassEnum:
		base, ok := m.typeKind(def.Base)
		if !ok || base.Size() == 0 {
			return nil, fmt.Errorf("meta: enum base %d: %w", def.Base, ErrBadRef)
		}
		t.Kind = base
		t.Size = base.Size()
	case ClassVarLen:
		if m.TypeSize(def.Base) == 0 && def.Base != String {
			return nil, fmt.Errorf("meta: vlen base %d: %w", def.Base, ErrBadRef)
		}
	}
	m.nextType++
	g.Types = append(g.Types, t)
	m.types[t.ID] = t
	return t, nil
}

// SetAttr creates or replaces an attribute on a group (v == Global) or
// variable. Attribute writes are permitted in data mode, so this is the
// one schema mutation backends may apply after EndDef.
func (m *Model) SetAttr(grp GrpID, v VarID, att Attribute) error {
	if err := checkName(att.Name); err != nil {
		return err
	}
	list, err := m.attrList(grp, v)
	if err != nil {
		return err
	}
	a := &Attribute{Name: att.Name, Type: att.Type, Nelems: att.Nelems, Data: append([]byte(nil), att.Data...)}
	for i, old := range *list {
		if old.Name == att.Name {
			(*list)[i] = a
			return nil
		}
	}
	*list = append(*list, a)
	return nil
}

// DelAttr removes an attribute from a group or variable.
func (m *Model) DelAttr(grp GrpID, v VarID, name string) error {
	list, err := m.attrList(grp, v)
	if err != nil {
		return err
	}
	for i, a := range *list {
		if a.Name == name {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("meta: attribute %q: %w", name, ErrNotFound)
}

// RenameAttr renames an attribute in place, keeping its position.
func (m *Model) RenameAttr(grp GrpID, v VarID, old, new string) error {
	if err := checkName(new); err != nil {
		return err
	}
	list, err := m.attrList(grp, v)
	if err != nil {
		return err
	}
	for _, a := range *list {
		if a.Name == new {
			return fmt.Errorf("meta: attribute %q: %w", new, ErrExists)
		}
	}
	for _, a := range *list {
		if a.Name == old {
			a.Name = new
			return nil
		}
	}
	return fmt.Errorf("meta: attribute %q: %w", old, ErrNotFound)
}

// RenameDim renames a dimension. The new name must be unique in its group.
func (m *Model) RenameDim(id DimID, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	d, ok := m.dims[id]
	if !ok {
		return fmt.Errorf("meta: dimension %d: %w", id, ErrNotFound)
	}
	for _, sib := range m.groups[d.Group].Dims {
		if sib.Name == name && sib.ID != id {
			return fmt.Errorf("meta: dimension %q: %w", name, ErrExists)
		}
	}
	d.Name = name
	return nil
}

// RenameVar renames a variable. The new name must be unique in its group.
func (m *Model) RenameVar(id VarID, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	v, ok := m.vars[id]
	if !ok {
		return fmt.Errorf("meta: variable %d: %w", id, ErrNotFound)
	}
	for _, sib := range m.groups[v.Group].Vars {
		if sib.Name == name && sib.ID != id {
			return fmt.Errorf("meta: variable %q: %w", name, ErrExists)
		}
	}
	v.Name = name
	return nil
}

func (m *Model) attrList(grp GrpID, v VarID) (*[]*Attribute, error) {
	if v == Global {
		g, ok := m.groups[grp]
		if !ok {
			return nil, fmt.Errorf("meta: group %d: %w", grp, ErrNotFound)
		}
		return &g.Attrs, nil
	}
	vv, ok := m.vars[v]
	if !ok {
		return nil, fmt.Errorf("meta: variable %d: %w", v, ErrNotFound)
	}
	return &vv.Attrs, nil
}

func (m *Model) dimVisible(g *Group, id DimID) bool {
	d, ok := m.dims[id]
	if !ok {
		return false
	}
	for cur := g; cur != nil; cur = cur.Parent {
		if cur.ID == d.Group {
			return true
		}
	}
	return false
}

func (m *Model) typeKind(t TypeID) (Kind, bool) {
	if t > 0 && t < UserBase {
		return Kind(t), true
	}
	if ut, ok := m.types[t]; ok {
		return ut.Kind, true
	}
	return KindNone, false
}

// TypeSize returns the element size in bytes of a predefined or
// user-defined type, or 0 when the type does not resolve (or is
// variable-sized, as String and vlen types are).
func (m *Model) TypeSize(t TypeID) int {
	if t > 0 && t < UserBase {
		return Kind(t).Size()
	}
	if ut, ok := m.types[t]; ok {
		if ut.Class == ClassVarLen {
			return 0
		}
		return ut.Size
	}
	return 0
}
