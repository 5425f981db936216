package meta

import "errors"

// SkipGroup can be returned by a WalkFunc to skip a group's contents.
var SkipGroup = errors.New("skip this group")

// WalkFunc is the callback for Walk. It is called once per group with a
// nil variable, then once per variable in that group. If it returns
// SkipGroup for a group, Walk skips that group's variables and subgroups.
type WalkFunc func(path string, g *Group, v *Variable) error

// Walk visits the schema tree rooted at the model's root group in
// definition order, calling fn for each group and variable.
func Walk(m *Model, fn WalkFunc) error {
	err := walkGroup(m.root, fn)
	if errors.Is(err, SkipGroup) {
		return nil
	}
	return err
}

func walkGroup(g *Group, fn WalkFunc) error {
	path := g.FullName()
	if err := fn(path, g, nil); err != nil {
		if errors.Is(err, SkipGroup) {
			return nil
		}
		return err
	}
	for _, v := range g.Vars {
		if err := fn(path, g, v); err != nil {
			return err
		}
	}
	for _, child := range g.Groups {
		if err := walkGroup(child, fn); err != nil {
			return err
		}
	}
	return nil
}
