package writer

import (
	"fmt"
	"slices"

	"github.com/georgepadayatti/pdfflatten/pdf/generic"
)

// resourceCategories are the named-resource subdictionaries of a page's
// /Resources entry.
var resourceCategories = []string{"ExtGState", "ColorSpace", "Pattern", "Shading", "XObject", "Font", "Properties"}

// Renames maps a resource category to the names that had to be changed
// while merging, old name to new name.
type Renames map[string]map[string]string

// Lookup returns the new name for name in category, or name itself.
func (r Renames) Lookup(category, name string) string {
	if renamed, ok := r[category][name]; ok {
		return renamed
	}
	return name
}

// Empty reports whether no name was changed.
func (r Renames) Empty() bool {
	for _, m := range r {
		if len(m) > 0 {
			return false
		}
	}
	return true
}

// Resolver resolves indirect references. *reader.PdfFileReader
// implements it.
type Resolver interface {
	ResolveReference(obj generic.PdfObject) (generic.PdfObject, error)
	ResolveDict(obj generic.PdfObject) *generic.DictionaryObject
}

// MergeResources returns a new resource dictionary containing the
// entries of base and overlay. Base is not modified, nor are any of the
// category dictionaries it refers to. An overlay name that is already in
// use in base is given a fresh name (F1 becomes F1_1, then F1_2, ...) and
// reported in the returned Renames.
func MergeResources(base, overlay *generic.DictionaryObject, resolver Resolver) (*generic.DictionaryObject, Renames, error) {
	merged := generic.NewDictionary()
	if base != nil {
		merged = base.Copy()
	}
	renames := Renames{}

	for _, category := range overlay.Keys() {
		if category == "ProcSet" {
			merged.Set("ProcSet", mergeProcSets(resolveArray(merged.Get("ProcSet"), resolver), overlay.GetArray("ProcSet")))
			continue
		}
		if !slices.Contains(resourceCategories, category) {
			return nil, nil, fmt.Errorf("unknown resource category %q", category)
		}
		additions := overlay.GetDict(category)
		if additions == nil {
			return nil, nil, fmt.Errorf("resource category %q is not a direct dictionary", category)
		}

		target := generic.NewDictionary()
		if existing := merged.Get(category); existing != nil {
			dict := resolver.ResolveDict(existing)
			if dict == nil {
				return nil, nil, fmt.Errorf("resource category %q does not resolve to a dictionary", category)
			}
			target = dict.Copy()
		}

		for _, name := range additions.Keys() {
			newName := name
			if target.Has(name) {
				newName = freshName(name, target, additions)
				if renames[category] == nil {
					renames[category] = make(map[string]string)
				}
				renames[category][name] = newName
			}
			target.Set(newName, additions.Get(name))
		}
		merged.Set(category, target)
	}
	return merged, renames, nil
}

func freshName(name string, used ...*generic.DictionaryObject) string {
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		taken := false
		for _, d := range used {
			if d.Has(candidate) {
				taken = true
				break
			}
		}
		if !taken {
			return candidate
		}
	}
}

func resolveArray(obj generic.PdfObject, resolver Resolver) generic.ArrayObject {
	if arr, ok := obj.(generic.ArrayObject); ok {
		return arr
	}
	if obj == nil {
		return nil
	}
	resolved, err := resolver.ResolveReference(obj)
	if err != nil {
		return nil
	}
	arr, _ := resolved.(generic.ArrayObject)
	return arr
}

func mergeProcSets(base, extra generic.ArrayObject) generic.ArrayObject {
	out := slices.Clone(base)
	for _, item := range extra {
		if !slices.ContainsFunc(out, func(o generic.PdfObject) bool { return o == item }) {
			out = append(out, item)
		}
	}
	return out
}
