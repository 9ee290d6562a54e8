package fhircodec

import "strconv"

// pendingPrim collects the value side and the sidecar side of one primitive
// slot. Either may arrive first, so pairing waits for the end of the object.
type pendingPrim struct {
	list        bool
	values      []*Primitive
	hasValues   bool
	sidecars    []*Primitive
	hasSidecars bool
}

// pendingSet is the per-object state the reconciler works on.
type pendingSet struct {
	prims   map[string]*pendingPrim
	order   []string
	choices map[*fieldPlan]int
}

func (s *pendingSet) get(slot string, list bool) *pendingPrim {
	if s.prims == nil {
		s.prims = map[string]*pendingPrim{}
	}
	pp, ok := s.prims[slot]
	if !ok {
		pp = &pendingPrim{list: list}
		s.prims[slot] = pp
		s.order = append(s.order, slot)
	}
	return pp
}

// choose records the alternative a choice property selected and rejects a
// second, different one.
func (s *pendingSet) choose(ref propertyRef, path string) error {
	if s.choices == nil {
		s.choices = map[*fieldPlan]int{}
	}
	prev, ok := s.choices[ref.fp]
	if ok && prev != ref.alt {
		iss := issue(CodeChoiceViolation, joinPath(path, ref.fp.wire+"[x]"), map[string]string{"field": ref.fp.wire})
		iss[0].Hint = ref.fp.alts[prev].wire + " and " + ref.fp.alts[ref.alt].wire + " are both present"
		return iss
	}
	s.choices[ref.fp] = ref.alt
	return nil
}

// reconcile zips values and sidecars by position and stores the result on rec.
func (s *pendingSet) reconcile(rec *Record, path string) error {
	for _, slot := range s.order {
		pp := s.prims[slot]
		if !pp.list {
			if p := pairScalar(pp); p != nil {
				rec.put(slot, p)
			}
			continue
		}
		ps, err := pairList(pp)
		if err != nil {
			iss := issue(CodeSidecarMismatch, joinPath(path, slot), map[string]string{"field": slot})
			iss[0].Hint = err.Error()
			return iss
		}
		rec.put(slot, ps)
	}
	return nil
}

func pairScalar(pp *pendingPrim) *Primitive {
	p := &Primitive{}
	if len(pp.values) == 1 && pp.values[0] != nil {
		p.Value = pp.values[0].Value
	}
	if len(pp.sidecars) == 1 && pp.sidecars[0] != nil {
		p.ID, p.Extension = pp.sidecars[0].ID, pp.sidecars[0].Extension
	}
	if !p.HasValue() && !p.HasSidecar() {
		return nil
	}
	return p
}

type lengthMismatch struct{ values, sidecars int }

func (e lengthMismatch) Error() string {
	return strconv.Itoa(e.values) + " values and " + strconv.Itoa(e.sidecars) + " sidecars"
}

// pairList zips both arrays. When only one side was read the other is treated
// as all null.
func pairList(pp *pendingPrim) ([]*Primitive, error) {
	n := len(pp.values)
	if pp.hasSidecars {
		if pp.hasValues && len(pp.sidecars) != n {
			return nil, lengthMismatch{values: n, sidecars: len(pp.sidecars)}
		}
		n = len(pp.sidecars)
	}
	out := make([]*Primitive, n)
	for i := range out {
		p := &Primitive{}
		if i < len(pp.values) && pp.values[i] != nil {
			p.Value = pp.values[i].Value
		}
		if i < len(pp.sidecars) && pp.sidecars[i] != nil {
			p.ID, p.Extension = pp.sidecars[i].ID, pp.sidecars[i].Extension
		}
		out[i] = p
	}
	return out, nil
}
