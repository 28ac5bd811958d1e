package interp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gfn "github.com/panyam/goutils/fn"

	"github.com/velang/velprof/decl"
)

// ErrResourceLimit marks tool-internal resource failures (cache-entry
// cap, call-depth cap). These abort the current run and are reported
// distinctly from target-program diagnostics.
var ErrResourceLimit = errors.New("resource limit exceeded")

// Limits bounds one profiling run so it terminates even on inputs
// engineered to diverge under real execution.
type Limits struct {
	MaxDepth        int
	MaxCacheEntries int
	WidenThreshold  int
}

func DefaultLimits() Limits {
	return Limits{MaxDepth: 256, MaxCacheEntries: 10000, WidenThreshold: 3}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxDepth <= 0 {
		l.MaxDepth = d.MaxDepth
	}
	if l.MaxCacheEntries <= 0 {
		l.MaxCacheEntries = d.MaxCacheEntries
	}
	if l.WidenThreshold <= 0 {
		l.WidenThreshold = d.WidenThreshold
	}
	return l
}

type absEnv = *decl.Env[*decl.Type]

// Interp abstractly interprets method bodies over argument types,
// resolving every call through the method table and memoizing per
// (function, argument-type-tuple) in a run-scoped cache.
// Interpretation is single-threaded recursive descent; reentrancy
// (recursive target functions) is handled through cache placeholders,
// not the Go call stack alone.
type Interp struct {
	ctx    context.Context
	table  *MethodTable
	cache  *Cache
	limits Limits

	// active is the stack of in-progress cache keys. A recursive
	// re-entry taints every key above the cycle head so results built
	// from an unstable placeholder are recomputed, not sealed.
	active []string
}

func New(ctx context.Context, table *MethodTable, limits Limits) *Interp {
	if ctx == nil {
		ctx = context.Background()
	}
	limits = limits.withDefaults()
	return &Interp{
		ctx:    ctx,
		table:  table,
		cache:  NewCache(limits.MaxCacheEntries),
		limits: limits,
	}
}

func (in *Interp) Cache() *Cache { return in.cache }

// EntryCall profiles one toplevel call expression. Argument
// expressions are evaluated in an empty environment, so identifiers
// there surface as UndefinedBinding on the entry frame itself. The
// returned frame is the root of this entry's call tree; a non-nil
// error is a tool-internal failure, never a target diagnostic.
func (in *Interp) EntryCall(call *decl.CallExpr) (*CallFrame, error) {
	frame := newFrame(call.Func, call.Pos(), nil)
	env := decl.NewEnv[*decl.Type](nil)
	args := make([]*decl.Type, len(call.Args))
	bottom := false
	for i, a := range call.Args {
		t, err := in.evalExpr(a, env, frame, nil, 1)
		if err != nil {
			return frame, err
		}
		args[i] = t
		bottom = bottom || t.IsBottom()
	}
	frame.ArgTypes = args
	if bottom {
		// Unreachable call: do not dispatch, do not cascade.
		frame.Stub = true
		return frame, nil
	}
	// A duplicate entry call shares the sealed result; re-expanding it
	// would clobber the sealed entry.
	if e, ok := in.cache.Lookup(Key(frame.FnName, args)); ok && e.sealed {
		frame.Return = e.result.Return
		frame.Errors = append(frame.Errors, e.result.Errors...)
		return frame, nil
	}
	return frame, in.resolve(frame, 1)
}

// Interpret profiles function(argTypes) as if called from callSite.
func (in *Interp) Interpret(function string, argTypes []*decl.Type, callSite decl.Location) (*CallFrame, error) {
	return in.interpretCall(function, argTypes, callSite, 1)
}

// interpretCall is the recursive heart of the profiler: cache lookup,
// placeholder handling, dispatch, body fixpoint.
func (in *Interp) interpretCall(fn string, args []*decl.Type, loc decl.Location, depth int) (*CallFrame, error) {
	if err := in.ctx.Err(); err != nil {
		return nil, err
	}
	if depth > in.limits.MaxDepth {
		return nil, fmt.Errorf("call depth exceeded %d at %s: %w", in.limits.MaxDepth, loc, ErrResourceLimit)
	}
	frame := newFrame(fn, loc, args)

	key := Key(fn, args)
	if e, ok := in.cache.Lookup(key); ok {
		if e.sealed {
			// Shared, not re-expanded.
			frame.Return = e.result.Return
			frame.Errors = append(frame.Errors, e.result.Errors...)
			return frame, nil
		}
		// Recursive re-entry: hand back the placeholder's current
		// best-effort type and let the enclosing fixpoint iterate.
		// Everything between the cycle head and here depends on an
		// unstable type and must not seal.
		e.hit = true
		for i := len(in.active) - 1; i >= 0 && in.active[i] != key; i-- {
			if mid, ok := in.cache.Lookup(in.active[i]); ok {
				mid.tainted = true
			}
		}
		frame.Recursive = true
		frame.Return = e.current
		return frame, nil
	}
	return frame, in.resolve(frame, depth)
}

// resolve dispatches frame's call and, on a match, runs the body
// fixpoint. The frame's key must not be in the cache yet.
func (in *Interp) resolve(frame *CallFrame, depth int) error {
	key := Key(frame.FnName, frame.ArgTypes)
	entry, err := in.cache.Begin(key)
	if err != nil {
		return err
	}
	in.active = append(in.active, key)
	defer func() { in.active = in.active[:len(in.active)-1] }()

	res := in.table.Lookup(frame.FnName, frame.ArgTypes)
	switch res.Status {
	case DispatchNoMatch:
		frame.Return = frame.addError(NoMatchingMethod, frame.CallSite, frame.RenderCall(),
			"no method matching %s", frame.RenderCall())
		in.cache.Seal(key, InferenceResult{Return: frame.Return, Errors: frame.AllErrors(), Converged: true})
		return nil
	case DispatchAmbiguous:
		cands := gfn.Map(res.Candidates, func(s *MethodSignature) string { return s.String() })
		frame.Return = frame.addError(AmbiguousMethod, frame.CallSite, frame.RenderCall(),
			"ambiguous call %s: candidates %s are equally specific", frame.RenderCall(), strings.Join(cands, ", "))
		in.cache.Seal(key, InferenceResult{Return: frame.Return, Errors: frame.AllErrors(), Converged: true})
		return nil
	}

	in.checkUnionSplits(frame)

	sig := res.Method
	switch {
	case sig.Result != nil: // builtin, fixed signature
		frame.Return = sig.Result
	case sig.Ctor != "": // struct construction
		frame.Return = decl.Concrete(sig.Ctor)
	default:
		if err := in.expandBody(frame, entry, sig, depth); err != nil {
			in.cache.Drop(key)
			return err
		}
	}
	if entry.tainted {
		// Computed against an unstable placeholder somewhere below the
		// cycle head. The frame's result is still usable here, but the
		// cache entry must be recomputed on the next occurrence.
		in.cache.Drop(key)
		return nil
	}
	in.cache.Seal(key, InferenceResult{
		Return:    frame.Return,
		Errors:    frame.AllErrors(),
		Converged: entry.converged(),
	})
	return nil
}

// checkUnionSplits verifies dispatch member-wise for union-typed
// arguments. A union can select a method even though one of its
// members has no applicable method at all; that member would fail at
// runtime, so it gets its own NoMatchingMethod diagnostic. Splitting
// one argument position at a time keeps the check linear in the union
// width.
func (in *Interp) checkUnionSplits(frame *CallFrame) {
	for i, arg := range frame.ArgTypes {
		if arg.Tag != decl.TagUnion {
			continue
		}
		for _, member := range arg.Members {
			split := make([]*decl.Type, len(frame.ArgTypes))
			copy(split, frame.ArgTypes)
			split[i] = member
			if in.table.Lookup(frame.FnName, split).Status != DispatchNoMatch {
				continue
			}
			rendered := renderCall(frame.FnName, split)
			frame.addError(NoMatchingMethod, frame.CallSite, rendered,
				"no method matching %s (splitting %s)", rendered, arg)
		}
	}
}

// expandBody interprets sig's body against frame's argument types,
// iterating to a fixpoint when the body re-enters its own in-progress
// cache entry. Each iteration runs into a scratch frame so only the
// final, stabilized pass contributes children and diagnostics.
func (in *Interp) expandBody(frame *CallFrame, entry *cacheEntry, sig *MethodSignature, depth int) error {
	tt := in.table.Types
	maxIter := in.limits.WidenThreshold + 3

	for iter := 0; ; iter++ {
		scratch := newFrame(frame.FnName, frame.CallSite, frame.ArgTypes)
		env := decl.NewEnv[*decl.Type](nil)
		for i, name := range sig.ParamNames {
			bound := tt.Meet(frame.ArgTypes[i], sig.Params[i])
			if bound.IsBottom() {
				bound = frame.ArgTypes[i]
			}
			env.Set(name, bound)
		}

		ret, definite, _, err := in.interpretBlock(sig.Body, env, scratch, sig, depth)
		if err != nil {
			return err
		}
		if !definite {
			ret = tt.Join(ret, decl.NothingType)
		}

		if !entry.hit {
			// No recursion observed: single pass suffices.
			frame.Children = scratch.Children
			frame.Errors = append(frame.Errors, scratch.Errors...)
			frame.Return = ret
			return nil
		}

		entry.history = append(entry.history, ret)
		next := tt.Join(entry.current, ret)
		if iter+1 >= in.limits.WidenThreshold {
			next = tt.Join(next, tt.Widen(entry.history, in.limits.WidenThreshold))
		}
		if next.Equals(entry.current) || iter >= maxIter {
			if iter >= maxIter && !next.Equals(entry.current) {
				next = decl.Any
				entry.diverged = true
			}
			frame.Children = scratch.Children
			frame.Errors = append(frame.Errors, scratch.Errors...)
			frame.Return = next
			return nil
		}
		entry.current = next
	}
}

// interpretBlock walks statements in order over the abstract
// environment. Returns the join of reachable return types, whether the
// block definitely returns, and the environment after the block.
func (in *Interp) interpretBlock(block *decl.BlockStmt, env absEnv, frame *CallFrame, sig *MethodSignature, depth int) (*decl.Type, bool, absEnv, error) {
	tt := in.table.Types
	rets := decl.Bottom
	if block == nil {
		return rets, false, env, nil
	}
	for _, stmt := range block.Stmts {
		switch s := stmt.(type) {
		case *decl.ExprStmt:
			if _, err := in.evalExpr(s.E, env, frame, sig, depth); err != nil {
				return nil, false, nil, err
			}

		case *decl.AssignStmt:
			t, err := in.evalExpr(s.Value, env, frame, sig, depth)
			if err != nil {
				return nil, false, nil, err
			}
			if s.Declared != nil && !t.IsBottom() {
				want := in.resolveRef(s.Declared, sig)
				narrowed := tt.Meet(t, want)
				if narrowed.IsBottom() {
					frame.addError(TypeConversionFailure, s.Pos(), s.String(),
						"cannot convert %s to %s in '%s'", t.String(), want.String(), s.String())
					// Keep going with the declared type so one bug does
					// not mask another downstream.
					t = want
				} else {
					t = narrowed
				}
			}
			env.Set(s.Name, t)

		case *decl.ReturnStmt:
			t := decl.NothingType
			if s.Value != nil {
				var err error
				if t, err = in.evalExpr(s.Value, env, frame, sig, depth); err != nil {
					return nil, false, nil, err
				}
			}
			rets = tt.Join(rets, t)
			// Statements after a definite return are unreachable;
			// stop expanding them.
			return rets, true, env, nil

		case *decl.IfStmt:
			if _, err := in.evalExpr(s.Cond, env, frame, sig, depth); err != nil {
				return nil, false, nil, err
			}
			envThen := env.Clone()
			envElse := env.Clone()
			if name, narrowed, complement, ok := in.branchGuard(s.Cond, env, sig); ok {
				envThen.Set(name, narrowed)
				envElse.Set(name, complement)
			}
			retT, defT, envThen, err := in.interpretBlock(s.Then, envThen, frame, sig, depth)
			if err != nil {
				return nil, false, nil, err
			}
			rets = tt.Join(rets, retT)
			defE := false
			if s.Else != nil {
				var retE *decl.Type
				retE, defE, envElse, err = in.interpretBlock(s.Else, envElse, frame, sig, depth)
				if err != nil {
					return nil, false, nil, err
				}
				rets = tt.Join(rets, retE)
			}
			switch {
			case defT && defE:
				return rets, true, env, nil
			case defT:
				env = envElse
			case defE:
				env = envThen
			default:
				env = in.mergeBranches(envThen, envElse)
			}

		case *decl.WhileStmt:
			var err error
			env, rets, err = in.interpretWhile(s, env, frame, sig, rets, depth)
			if err != nil {
				return nil, false, nil, err
			}

		case *decl.BlockStmt:
			retB, defB, envB, err := in.interpretBlock(s, env, frame, sig, depth)
			if err != nil {
				return nil, false, nil, err
			}
			env = envB
			rets = tt.Join(rets, retB)
			if defB {
				return rets, true, env, nil
			}

		default:
			return nil, false, nil, fmt.Errorf("unsupported statement %T at %s", stmt, stmt.Pos())
		}
	}
	return rets, false, env, nil
}

// interpretWhile iterates the loop body against the environment until
// bindings stop changing, widening loop-carried variables past the
// threshold. Only the final iteration's frames and diagnostics are
// kept.
func (in *Interp) interpretWhile(s *decl.WhileStmt, env absEnv, frame *CallFrame, sig *MethodSignature, rets *decl.Type, depth int) (absEnv, *decl.Type, error) {
	tt := in.table.Types
	loopEnv := env.Clone()
	histories := map[string][]*decl.Type{}
	for k, v := range loopEnv.Flatten() {
		histories[k] = []*decl.Type{v}
	}
	maxIter := in.limits.WidenThreshold + 3

	for iter := 0; ; iter++ {
		scratch := newFrame(frame.FnName, s.Pos(), nil)
		trial := loopEnv.Clone()
		if _, err := in.evalExpr(s.Cond, trial, scratch, sig, depth); err != nil {
			return nil, nil, err
		}
		bodyEnv := trial.Clone()
		if name, narrowed, _, ok := in.branchGuard(s.Cond, trial, sig); ok {
			bodyEnv.Set(name, narrowed)
		}
		bodyRet, _, bodyEnv, err := in.interpretBlock(s.Body, bodyEnv, scratch, sig, depth)
		if err != nil {
			return nil, nil, err
		}

		next := decl.NewEnv[*decl.Type](nil)
		changed := false
		for k, old := range loopEnv.Flatten() {
			nv, ok := bodyEnv.Get(k)
			if !ok {
				nv = old
			}
			j := tt.Join(old, nv)
			histories[k] = append(histories[k], j)
			if iter+1 >= in.limits.WidenThreshold {
				j = tt.Join(j, tt.Widen(histories[k], in.limits.WidenThreshold))
			}
			if !j.Equals(old) {
				changed = true
			}
			next.Set(k, j)
		}

		if !changed || iter >= maxIter {
			frame.Children = append(frame.Children, scratch.Children...)
			frame.Errors = append(frame.Errors, scratch.Errors...)
			return next, tt.Join(rets, bodyRet), nil
		}
		loopEnv = next
	}
}

// mergeBranches joins two branch environments pointwise; bindings
// introduced on only one path are dropped (they are not definitely
// assigned at the merge point).
func (in *Interp) mergeBranches(a, b absEnv) absEnv {
	tt := in.table.Types
	out := decl.NewEnv[*decl.Type](nil)
	bflat := b.Flatten()
	for k, va := range a.Flatten() {
		if vb, ok := bflat[k]; ok {
			out.Set(k, tt.Join(va, vb))
		}
	}
	return out
}

// branchGuard recognizes `x isa T` conditions over a bound identifier
// and yields the narrowed type for the then-arm and its complement for
// the else-arm.
func (in *Interp) branchGuard(cond decl.Expr, env absEnv, sig *MethodSignature) (name string, narrowed, complement *decl.Type, ok bool) {
	isa, isIsa := cond.(*decl.IsaExpr)
	if !isIsa {
		return "", nil, nil, false
	}
	ident, isIdent := isa.Subject.(*decl.IdentExpr)
	if !isIdent {
		return "", nil, nil, false
	}
	t, bound := env.Get(ident.Name)
	if !bound {
		return "", nil, nil, false
	}
	tt := in.table.Types
	tested := in.resolveRef(isa.Tested, sig)
	return ident.Name, tt.Meet(t, tested), tt.Subtract(t, tested), true
}

// evalExpr types one expression, appending any call frames it spawns to
// frame's children and diagnostics to frame's error set. A failed
// sub-expression types as Bottom without aborting the enclosing body.
func (in *Interp) evalExpr(e decl.Expr, env absEnv, frame *CallFrame, sig *MethodSignature, depth int) (*decl.Type, error) {
	switch x := e.(type) {
	case *decl.LiteralExpr:
		switch x.Kind {
		case decl.LitInt:
			return decl.IntType, nil
		case decl.LitFloat:
			return decl.FloatType, nil
		case decl.LitStr:
			return decl.StrType, nil
		default:
			return decl.BoolType, nil
		}

	case *decl.IdentExpr:
		if t, ok := env.Get(x.Name); ok {
			return t, nil
		}
		return frame.addError(UndefinedBinding, x.Pos(), x.Name,
			"undefined binding '%s'", x.Name), nil

	case *decl.CallExpr:
		args := make([]*decl.Type, len(x.Args))
		bottom := false
		for i, a := range x.Args {
			t, err := in.evalExpr(a, env, frame, sig, depth)
			if err != nil {
				return nil, err
			}
			args[i] = t
			bottom = bottom || t.IsBottom()
		}
		if bottom {
			// An argument already failed to type: this call sits in
			// unreachable code. Record a stub, do not dispatch.
			stub := newFrame(x.Func, x.Pos(), args)
			stub.Stub = true
			frame.Children = append(frame.Children, stub)
			return decl.Bottom, nil
		}
		child, err := in.interpretCall(x.Func, args, x.Pos(), depth+1)
		if child != nil {
			frame.Children = append(frame.Children, child)
		}
		if err != nil {
			return nil, err
		}
		return child.Return, nil

	case *decl.FieldAccessExpr:
		recv, err := in.evalExpr(x.Receiver, env, frame, sig, depth)
		if err != nil {
			return nil, err
		}
		return in.fieldAccess(x, recv, frame), nil

	case *decl.IsaExpr:
		if _, err := in.evalExpr(x.Subject, env, frame, sig, depth); err != nil {
			return nil, err
		}
		return decl.BoolType, nil

	default:
		return nil, fmt.Errorf("unsupported expression %T at %s", e, e.Pos())
	}
}

// fieldAccess validates the field against the receiver type's declared
// field set; valid accesses become dispatch-like child frames, invalid
// ones diagnose on the current frame.
func (in *Interp) fieldAccess(x *decl.FieldAccessExpr, recv *decl.Type, frame *CallFrame) *decl.Type {
	tt := in.table.Types
	rendered := fmt.Sprintf("%s.%s", recv.String(), x.Field)

	switch recv.Tag {
	case decl.TagBottom:
		stub := newFrame(x.Field, x.Pos(), []*decl.Type{recv})
		stub.Field = true
		stub.Stub = true
		frame.Children = append(frame.Children, stub)
		return decl.Bottom

	case decl.TagAny, decl.TagAbstract, decl.TagTypeVar:
		// No structural information to refute the access.
		return decl.Any

	case decl.TagUnion:
		out := decl.Bottom
		for _, m := range recv.Members {
			out = tt.Join(out, in.fieldAccess(x, m, frame))
		}
		return out

	case decl.TagConcrete:
		ft, found, structural := tt.FieldType(recv, x.Field)
		if !structural {
			return frame.addError(InvalidBuiltinCall, x.Pos(), rendered,
				"cannot access field '%s' on builtin type %s", x.Field, recv.String())
		}
		if !found {
			return frame.addError(InvalidFieldAccess, x.Pos(), rendered,
				"type %s has no field '%s'", recv.String(), x.Field)
		}
		fr := newFrame(x.Field, x.Pos(), []*decl.Type{recv})
		fr.Field = true
		fr.Return = ft
		frame.Children = append(frame.Children, fr)
		return ft

	default:
		return decl.Any
	}
}

// resolveRef turns a syntactic type reference into an abstract type,
// consulting the method's where-clause type variables first. The loader
// validated every reference, so unknown names degrade to Any here.
func (in *Interp) resolveRef(ref *decl.TypeRef, sig *MethodSignature) *decl.Type {
	if ref == nil {
		return decl.Any
	}
	if len(ref.Alts) > 0 {
		parts := gfn.Map(ref.Alts, func(a *decl.TypeRef) *decl.Type { return in.resolveRef(a, sig) })
		return decl.Union(parts...)
	}
	if ref.Name == "Any" {
		return decl.Any
	}
	if sig != nil {
		if tv, ok := sig.TypeVars[ref.Name]; ok {
			return tv
		}
	}
	args := gfn.Map(ref.Args, func(a *decl.TypeRef) *decl.Type { return in.resolveRef(a, sig) })
	if t := in.table.Types.TypeOf(ref.Name, args...); t != nil {
		return t
	}
	return decl.Any
}
