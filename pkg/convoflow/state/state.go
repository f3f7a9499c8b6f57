// Package state implements the merge-policy model for conversation state.
//
// Stage functions return a partial delta of the state type; the engine
// merges each delta into the running state according to a per-field policy
// declared as a struct tag on the state type:
//
//	type Conversation struct {
//	    Messages []llm.Message `merge:"append" json:"messages"`
//	    NextRep  string        `merge:"replace" json:"next_rep,omitempty"`
//	}
//
// "append" concatenates slice values; "replace" overwrites with the delta's
// value when it is non-zero (a zero value in a delta means "unchanged").
// Every exported field must declare a policy - an untagged field is a schema
// error reported when the graph is built, not silently defaulted at merge
// time.
package state

import (
	"errors"
	"fmt"
	"reflect"
)

// Policy is a field merge policy.
type Policy int

// Supported merge policies.
const (
	// Replace overwrites the field when the delta value is non-zero.
	Replace Policy = iota
	// Append concatenates the delta slice onto the current slice.
	Append
)

// String returns the tag spelling of the policy.
func (p Policy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Field describes one state field and its declared policy.
type Field struct {
	Name   string
	Index  int
	Policy Policy
}

// Schema is the validated merge-policy table for a state type.
// Build it once with SchemaOf and share it; Schema is immutable.
type Schema struct {
	typ    reflect.Type
	fields []Field
}

// Fields returns the declared fields in struct order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Type returns the state type the schema was built for.
func (s *Schema) Type() reflect.Type {
	return s.typ
}

// SchemaOf builds and validates the merge-policy schema for S.
// All violations are reported together, joined with errors.Join.
//
// Rules:
//   - S must be a struct type
//   - every exported field must carry a `merge:"append"` or
//     `merge:"replace"` tag
//   - "append" is only valid on slice fields
func SchemaOf[S any]() (*Schema, error) {
	var zero S
	t := reflect.TypeOf(zero)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("state: %T is not a struct type", zero)
	}

	var errs []error
	sch := &Schema{typ: t}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		tag, ok := f.Tag.Lookup("merge")
		if !ok {
			errs = append(errs, fmt.Errorf("state: field %s.%s has no merge policy", t.Name(), f.Name))
			continue
		}

		var policy Policy
		switch tag {
		case "replace":
			policy = Replace
		case "append":
			if f.Type.Kind() != reflect.Slice {
				errs = append(errs, fmt.Errorf("state: field %s.%s declares merge:\"append\" but is not a slice", t.Name(), f.Name))
				continue
			}
			policy = Append
		default:
			errs = append(errs, fmt.Errorf("state: field %s.%s has unknown merge policy %q", t.Name(), f.Name, tag))
			continue
		}

		sch.fields = append(sch.fields, Field{Name: f.Name, Index: i, Policy: policy})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return sch, nil
}

// MustSchemaOf is SchemaOf that panics on a schema error.
// Intended for package-level schema variables.
func MustSchemaOf[S any]() *Schema {
	sch, err := SchemaOf[S]()
	if err != nil {
		panic(err)
	}
	return sch
}

// Merge applies a delta to the current state per the schema's policies and
// returns the merged state. Neither input is mutated: append fields get a
// freshly allocated backing slice when the delta contributes elements.
//
// Merging an all-zero delta returns the current state unchanged.
func Merge[S any](sch *Schema, current, delta S) S {
	cv := reflect.ValueOf(&current).Elem()
	dv := reflect.ValueOf(delta)

	for _, f := range sch.fields {
		cf := cv.Field(f.Index)
		df := dv.Field(f.Index)

		switch f.Policy {
		case Append:
			if df.Len() == 0 {
				continue
			}
			merged := reflect.MakeSlice(cf.Type(), 0, cf.Len()+df.Len())
			merged = reflect.AppendSlice(merged, cf)
			merged = reflect.AppendSlice(merged, df)
			cf.Set(merged)
		case Replace:
			if df.IsZero() {
				continue
			}
			cf.Set(df)
		}
	}

	return current
}

// MergeBranches combines the final states of parallel branches into the
// state at the fork point. Branches are applied in the given order.
//
// Append fields contribute only the elements each branch added beyond the
// base (its suffix past len(base)), so branches that started from the same
// fork state neither clobber nor duplicate each other's output. Replace
// fields take the last non-zero branch value that differs from the base.
func MergeBranches[S any](sch *Schema, base S, branches []S) S {
	merged := base
	mv := reflect.ValueOf(&merged).Elem()
	bv := reflect.ValueOf(base)

	for _, f := range sch.fields {
		mf := mv.Field(f.Index)
		baseField := bv.Field(f.Index)

		switch f.Policy {
		case Append:
			out := reflect.MakeSlice(mf.Type(), 0, mf.Len())
			out = reflect.AppendSlice(out, baseField)
			for _, branch := range branches {
				bf := reflect.ValueOf(branch).Field(f.Index)
				if bf.Len() > baseField.Len() {
					out = reflect.AppendSlice(out, bf.Slice(baseField.Len(), bf.Len()))
				}
			}
			mf.Set(out)
		case Replace:
			for _, branch := range branches {
				bf := reflect.ValueOf(branch).Field(f.Index)
				if bf.IsZero() {
					continue
				}
				if baseField.Comparable() && bf.Equal(baseField) {
					continue
				}
				mf.Set(bf)
			}
		}
	}

	return merged
}
