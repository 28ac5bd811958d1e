package decl

// Lattice operations over the declared hierarchy. Any is top, Bottom is
// bottom, Join is the least upper bound and Meet the approximate
// intersection used for branch narrowing.

// IsSubtype reports a <: b. Reflexive and transitive; TypeVars are
// compared through their bounds.
func (tt *TypeTable) IsSubtype(a, b *Type) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Tag == TagBottom || b.Tag == TagAny {
		return true
	}
	if a.Tag == TagAny || b.Tag == TagBottom {
		return false
	}
	if a.Tag == TagTypeVar {
		return tt.IsSubtype(a.Bound, b)
	}
	if b.Tag == TagTypeVar {
		return tt.IsSubtype(a, b.Bound)
	}
	if a.Tag == TagUnion {
		for _, m := range a.Members {
			if !tt.IsSubtype(m, b) {
				return false
			}
		}
		return true
	}
	if b.Tag == TagUnion {
		for _, m := range b.Members {
			if tt.IsSubtype(a, m) {
				return true
			}
		}
		return false
	}
	if a.Tag == TagConcrete && b.Tag == TagConcrete {
		if a.Name != b.Name || len(a.Args) != len(b.Args) {
			return false
		}
		d, ok := tt.defs[a.Name]
		if !ok {
			return a.Equals(b)
		}
		for i, arg := range a.Args {
			covariant := i < len(d.Params) && d.Params[i].Covariant
			if covariant {
				if !tt.IsSubtype(arg, b.Args[i]) {
					return false
				}
			} else if !arg.Equals(b.Args[i]) {
				return false
			}
		}
		return true
	}
	// Nominal climb: a's declared ancestry must reach b.
	if b.Tag == TagAbstract {
		for name := a.Name; name != ""; {
			if name == b.Name {
				return true
			}
			d, ok := tt.defs[name]
			if !ok {
				return false
			}
			name = d.Parent
		}
	}
	return false
}

// Join computes a precise least upper bound: comparable types collapse
// to the wider one, incomparable types form a union. Termination of
// fixpoint iteration is Widen's job, not Join's.
func (tt *TypeTable) Join(a, b *Type) *Type {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if tt.IsSubtype(a, b) {
		return b
	}
	if tt.IsSubtype(b, a) {
		return a
	}
	return Union(a, b)
}

func (tt *TypeTable) JoinAll(ts ...*Type) *Type {
	out := Bottom
	for _, t := range ts {
		out = tt.Join(out, t)
	}
	return out
}

// Meet approximates the intersection of two types; an empty
// intersection is Bottom. Used both for dispatch applicability and for
// narrowing a tested variable inside a guarded branch.
func (tt *TypeTable) Meet(a, b *Type) *Type {
	if a == nil || b == nil {
		return Bottom
	}
	if tt.IsSubtype(a, b) {
		return a
	}
	if tt.IsSubtype(b, a) {
		return b
	}
	if a.Tag == TagTypeVar {
		return tt.Meet(a.Bound, b)
	}
	if b.Tag == TagTypeVar {
		return tt.Meet(a, b.Bound)
	}
	if a.Tag == TagUnion {
		parts := make([]*Type, 0, len(a.Members))
		for _, m := range a.Members {
			parts = append(parts, tt.Meet(m, b))
		}
		return Union(parts...)
	}
	if b.Tag == TagUnion {
		return tt.Meet(b, a)
	}
	if a.Tag == TagAbstract && b.Tag == TagAbstract {
		// Single-parent hierarchy: unrelated abstracts share no
		// descendants.
		return Bottom
	}
	return Bottom
}

// Subtract removes from a everything provably a subtype of b; the
// complement used in the else-arm of an `isa` guard. Conservative: when
// nothing can be removed, a is returned unchanged.
func (tt *TypeTable) Subtract(a, b *Type) *Type {
	if tt.IsSubtype(a, b) {
		return Bottom
	}
	if a.Tag == TagUnion {
		var kept []*Type
		for _, m := range a.Members {
			if !tt.IsSubtype(m, b) {
				kept = append(kept, m)
			}
		}
		return Union(kept...)
	}
	return a
}

// Widen collapses a type history that failed to converge within
// threshold distinct observations: first to the join of everything
// seen, and when that join is not itself a declared Abstract narrower
// than Any, all the way to Any. This is the termination guarantee for
// recursive and loop-carried types.
func (tt *TypeTable) Widen(history []*Type, threshold int) *Type {
	distinct := distinctTypes(history)
	if len(distinct) <= threshold {
		return tt.JoinAll(distinct...)
	}
	joined := tt.JoinAll(distinct...)
	if joined.Tag == TagAbstract {
		return joined
	}
	if anc := tt.commonAncestor(distinct); anc != nil {
		return anc
	}
	return Any
}

// commonAncestor finds the nearest declared Abstract above every member
// of ts, or nil when only Any qualifies.
func (tt *TypeTable) commonAncestor(ts []*Type) *Type {
	if len(ts) == 0 {
		return nil
	}
	for _, name := range tt.ancestry(ts[0]) {
		anc := Abstract(name)
		all := true
		for _, t := range ts[1:] {
			if !tt.IsSubtype(t, anc) {
				all = false
				break
			}
		}
		if all {
			return anc
		}
	}
	return nil
}

// ancestry lists the abstract ancestor names of t, nearest first.
func (tt *TypeTable) ancestry(t *Type) []string {
	start := ""
	switch t.Tag {
	case TagConcrete:
		if d, ok := tt.defs[t.Name]; ok {
			start = d.Parent
		}
	case TagAbstract:
		start = t.Name
	case TagUnion:
		if len(t.Members) > 0 {
			// Ancestors of the first member; commonAncestor filters
			// against the rest.
			return tt.ancestry(t.Members[0])
		}
	}
	var out []string
	for name := start; name != ""; {
		out = append(out, name)
		d, ok := tt.defs[name]
		if !ok {
			break
		}
		name = d.Parent
	}
	return out
}

func distinctTypes(ts []*Type) []*Type {
	var out []*Type
	for _, t := range ts {
		if t == nil || t.IsBottom() {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen.Equals(t) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, t)
		}
	}
	return out
}
