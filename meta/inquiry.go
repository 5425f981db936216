package meta

// Inquiry over the model. These lookups back the dispatch layer's
// format-agnostic inquiry operations, so backends that keep their Model
// synchronized never answer inquiry themselves.

import (
	"fmt"
	"strings"
)

// Root returns the root group.
func (m *Model) Root() *Group { return m.root }

// Group looks up a group by id.
func (m *Model) Group(id GrpID) (*Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, fmt.Errorf("meta: group %d: %w", id, ErrNotFound)
	}
	return g, nil
}

// Dim looks up a dimension by id.
func (m *Model) Dim(id DimID) (*Dimension, error) {
	d, ok := m.dims[id]
	if !ok {
		return nil, fmt.Errorf("meta: dimension %d: %w", id, ErrNotFound)
	}
	return d, nil
}

// Var looks up a variable by id.
func (m *Model) Var(id VarID) (*Variable, error) {
	v, ok := m.vars[id]
	if !ok {
		return nil, fmt.Errorf("meta: variable %d: %w", id, ErrNotFound)
	}
	return v, nil
}

// Type looks up a predefined or user-defined type by id.
func (m *Model) Type(id TypeID) (*Type, error) {
	if id > 0 && id < UserBase {
		k := Kind(id)
		return &Type{ID: id, Name: k.String(), Class: ClassPrimitive, Size: k.Size(), Kind: k}, nil
	}
	t, ok := m.types[id]
	if !ok {
		return nil, fmt.Errorf("meta: type %d: %w", id, ErrNotFound)
	}
	return t, nil
}

// NDims, NVars, NAtts and NGroups report counts for one group.
func (g *Group) NDims() int   { return len(g.Dims) }
func (g *Group) NVars() int   { return len(g.Vars) }
func (g *Group) NAtts() int   { return len(g.Attrs) }
func (g *Group) NGroups() int { return len(g.Groups) }

// Attr returns the named group attribute, if present.
func (g *Group) Attr(name string) (*Attribute, bool) {
	for _, a := range g.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// DimByName finds a dimension by name, searching the group and its
// ancestors, nearest scope first.
func (g *Group) DimByName(name string) (*Dimension, bool) {
	for cur := g; cur != nil; cur = cur.Parent {
		for _, d := range cur.Dims {
			if d.Name == name {
				return d, true
			}
		}
	}
	return nil, false
}

// VarByName finds a variable defined directly in the group.
func (g *Group) VarByName(name string) (*Variable, bool) {
	for _, v := range g.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// TypeByName finds a user-defined type by name, searching the group and
// its ancestors.
func (g *Group) TypeByName(name string) (*Type, bool) {
	for cur := g; cur != nil; cur = cur.Parent {
		for _, t := range cur.Types {
			if t.Name == name {
				return t, true
			}
		}
	}
	return nil, false
}

// GroupByName finds a direct child group.
func (g *Group) GroupByName(name string) (*Group, bool) {
	for _, c := range g.Groups {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// FullName returns the absolute path of the group, "/" for the root.
func (g *Group) FullName() string {
	if g.Parent == nil {
		return "/"
	}
	var parts []string
	for cur := g; cur.Parent != nil; cur = cur.Parent {
		parts = append(parts, cur.Name)
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

// GroupByFullName resolves an absolute path such as "/obs/daily".
func (m *Model) GroupByFullName(path string) (*Group, error) {
	g := m.root
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		child, ok := g.GroupByName(part)
		if !ok {
			return nil, fmt.Errorf("meta: group %q: %w", path, ErrNotFound)
		}
		g = child
	}
	return g, nil
}

// UnlimDim returns the first unlimited dimension, or nil if none exists.
func (m *Model) UnlimDim() *Dimension {
	var found *Dimension
	for _, d := range m.dims {
		if d.Unlimited && (found == nil || d.ID < found.ID) {
			found = d
		}
	}
	return found
}

// Shape resolves a variable's dimension ids to current lengths.
func (m *Model) Shape(v *Variable) ([]uint64, error) {
	shape := make([]uint64, len(v.Dims))
	for i, id := range v.Dims {
		d, err := m.Dim(id)
		if err != nil {
			return nil, err
		}
		shape[i] = d.Len
	}
	return shape, nil
}

// Clone returns a deep copy of the model. Snapshots taken before a
// mutating call make read-only enforcement checkable after the fact.
func (m *Model) Clone() *Model {
	c := New()
	c.nextDim, c.nextVar, c.nextGrp, c.nextType = m.nextDim, m.nextVar, m.nextGrp, m.nextType
	m.cloneGroup(c, m.root, c.root)
	return c
}

func (m *Model) cloneGroup(c *Model, src, dst *Group) {
	dst.Attrs = cloneAttrs(src.Attrs)
	for _, d := range src.Dims {
		cd := *d
		dst.Dims = append(dst.Dims, &cd)
		c.dims[cd.ID] = &cd
	}
	for _, t := range src.Types {
		ct := *t
		ct.Fields = append([]Field(nil), t.Fields...)
		ct.Members = append([]EnumMember(nil), t.Members...)
		dst.Types = append(dst.Types, &ct)
		c.types[ct.ID] = &ct
	}
	for _, v := range src.Vars {
		cv := *v
		cv.Dims = append([]DimID(nil), v.Dims...)
		cv.Attrs = cloneAttrs(v.Attrs)
		cv.Fill = append([]byte(nil), v.Fill...)
		cv.Chunks = append([]uint64(nil), v.Chunks...)
		dst.Vars = append(dst.Vars, &cv)
		c.vars[cv.ID] = &cv
	}
	for _, child := range src.Groups {
		cg := &Group{ID: child.ID, Name: child.Name, Parent: dst}
		dst.Groups = append(dst.Groups, cg)
		c.groups[cg.ID] = cg
		m.cloneGroup(c, child, cg)
	}
}

func cloneAttrs(attrs []*Attribute) []*Attribute {
	if attrs == nil {
		return nil
	}
	out := make([]*Attribute, len(attrs))
	for i, a := range attrs {
		ca := *a
		ca.Data = append([]byte(nil), a.Data...)
		out[i] = &ca
	}
	return out
}

// ID-ordered listings over the whole model. IDs are dense and allocated
// in definition order, so these double as definition-order listings;
// codecs rely on that to serialize a model so a replay of the same
// definitions reproduces the same ids.

// AllGroups returns every group, root first, in id order.
func (m *Model) AllGroups() []*Group {
	out := make([]*Group, 0, len(m.groups))
	for id := Root; id < m.nextGrp; id++ {
		if g, ok := m.groups[id]; ok {
			out = append(out, g)
		}
	}
	return out
}

// AllDims returns every dimension in id order.
func (m *Model) AllDims() []*Dimension {
	out := make([]*Dimension, 0, len(m.dims))
	for id := DimID(0); id < m.nextDim; id++ {
		if d, ok := m.dims[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// AllVars returns every variable in id order.
func (m *Model) AllVars() []*Variable {
	out := make([]*Variable, 0, len(m.vars))
	for id := VarID(0); id < m.nextVar; id++ {
		if v, ok := m.vars[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// AllTypes returns every user-defined type in id order.
func (m *Model) AllTypes() []*Type {
	out := make([]*Type, 0, len(m.types))
	for id := UserBase; id < m.nextType; id++ {
		if t, ok := m.types[id]; ok {
			out = append(out, t)
		}
	}
	return out
}
