package vm

import "github.com/kristofer/vellum/pkg/value"

// gcState is the optional tracing collector spec.md §5 describes: a
// tracked-object list plus a byte budget. It exists to break reference
// cycles refcounting alone can't collect (e.g. a self-referential array);
// it is never required for correctness of acyclic programs, which is why
// it is off by default (gc is nil on a fresh ThreadLocal) rather than
// wired into every allocation site unconditionally.
type gcState struct {
	budget    int64
	allocated int64
	objects   []value.HeapObject
}

// EnableGC turns on allocation tracking and sets the byte budget that
// triggers an automatic sweep. Allocations made before EnableGC was
// called are not tracked and so are not cycle-collectible; this matches
// an opt-in collector rather than retrofitting every existing Value.
func (tl *ThreadLocal) EnableGC(budgetBytes int64) {
	tl.gc = &gcState{budget: budgetBytes}
}

// track registers obj with the collector (a no-op if GC isn't enabled)
// and runs a sweep if the byte budget has been exceeded. approxSize is a
// rough per-kind estimate; the budget only needs to be a stable proxy for
// "allocation pressure", not exact.
func (tl *ThreadLocal) track(obj value.HeapObject, approxSize int64) {
	if tl.gc == nil {
		return
	}
	tl.gc.objects = append(tl.gc.objects, obj)
	tl.gc.allocated += approxSize
	if tl.gc.allocated >= tl.gc.budget {
		tl.CollectGarbage()
	}
}

// CollectGarbage runs one mark-sweep pass: mark everything reachable from
// the current frame chain (self, registers, locals — spec.md §5's GC
// roots), then free every tracked object that wasn't reached, regardless
// of its own refcount. Refcounting alone never reaches zero on a
// self-referential cycle (each member holds the next one up, including
// itself transitively), so deliberately ignoring an unmarked object's
// refcount here is the whole point: any count it still carries can only
// come from other cyclic, equally-unreachable members, which are being
// dropped in this same pass.
func (tl *ThreadLocal) CollectGarbage() {
	if tl.gc == nil {
		return
	}
	marked := make(map[value.HeapObject]bool)
	for fr := tl.Frame; fr != nil; fr = fr.Link {
		markValue(fr.Self, marked)
		for _, v := range fr.Regs {
			markValue(v, marked)
		}
		for _, v := range fr.Locals {
			markValue(v, marked)
		}
	}

	live := tl.gc.objects[:0]
	for _, obj := range tl.gc.objects {
		if marked[obj] {
			live = append(live, obj)
			continue
		}
		obj.Drop()
	}
	tl.gc.objects = live
	tl.gc.allocated = 0
}

// LiveObjectCount reports how many tracked objects survived the most
// recent sweep (or have been allocated since, if no sweep has run yet).
// Exercised by gc_test.go to assert a collected cycle's count returns to
// zero.
func (tl *ThreadLocal) LiveObjectCount() int {
	if tl.gc == nil {
		return 0
	}
	return len(tl.gc.objects)
}

func markValue(v value.Value, marked map[value.HeapObject]bool) {
	obj := v.Obj
	if obj == nil || marked[obj] {
		return
	}
	marked[obj] = true
	switch o := obj.(type) {
	case *value.Array:
		for _, item := range o.Items {
			markValue(item, marked)
		}
	case *value.Tuple:
		for _, item := range o.Items {
			markValue(item, marked)
		}
	case *value.Dict:
		o.ForEach(func(k, val value.Value) {
			markValue(k, marked)
			markValue(val, marked)
		})
	case *value.ClassInstance:
		for _, fld := range o.Fields {
			markValue(fld, marked)
		}
	case *value.FnValue:
		for _, b := range o.Bound {
			markValue(b, marked)
		}
	}
}
