package dictionary

import (
	"sort"
	"sync"
)

// Well-known namespaces.
const (
	DictionaryURI = "http://www.repository.org/model/dictionary/1.0"
	ContentURI    = "http://www.repository.org/model/content/1.0"
	SystemURI     = "http://www.repository.org/model/system/1.0"
)

// Built-in data types.
var (
	TypeText     = QName{DictionaryURI, "text"}
	TypeMLText   = QName{DictionaryURI, "mltext"}
	TypeContent  = QName{DictionaryURI, "content"}
	TypeAny      = QName{DictionaryURI, "any"}
	TypeInt      = QName{DictionaryURI, "int"}
	TypeLong     = QName{DictionaryURI, "long"}
	TypeFloat    = QName{DictionaryURI, "float"}
	TypeDouble   = QName{DictionaryURI, "double"}
	TypeDate     = QName{DictionaryURI, "date"}
	TypeDatetime = QName{DictionaryURI, "datetime"}
	TypeBoolean  = QName{DictionaryURI, "boolean"}
	TypeQName    = QName{DictionaryURI, "qname"}
	TypeNodeRef  = QName{DictionaryURI, "noderef"}
	TypeCategory = QName{DictionaryURI, "category"}
	TypeLocale   = QName{DictionaryURI, "locale"}
)

var dataTypes = map[QName]bool{
	TypeText: true, TypeMLText: true, TypeContent: true, TypeAny: true,
	TypeInt: true, TypeLong: true, TypeFloat: true, TypeDouble: true,
	TypeDate: true, TypeDatetime: true, TypeBoolean: true, TypeQName: true,
	TypeNodeRef: true, TypeCategory: true, TypeLocale: true,
}

// Tokenise controls whether a property is split into terms.
type Tokenise int

const (
	TokeniseTrue Tokenise = iota
	TokeniseFalse
	TokeniseBoth
)

// PropertyDef describes one property of a class.
type PropertyDef struct {
	Name      QName
	DataType  QName
	Container QName
	Indexed   bool
	Stored    bool
	Tokenised Tokenise
	Multiple  bool
}

// ClassDef describes a type or an aspect.
type ClassDef struct {
	Name       QName
	Parent     QName
	IsAspect   bool
	Properties []QName
}

// Dictionary is an in-memory content model. It is safe for concurrent use
// once built.
type Dictionary struct {
	ns *Namespaces

	mu      sync.RWMutex
	classes map[QName]*ClassDef
	props   map[QName]*PropertyDef
}

// New returns an empty dictionary with the built-in namespaces registered.
func New() *Dictionary {
	ns := NewNamespaces()
	ns.Register("d", DictionaryURI)
	ns.Register("cm", ContentURI)
	ns.Register("sys", SystemURI)
	return &Dictionary{
		ns:      ns,
		classes: make(map[QName]*ClassDef),
		props:   make(map[QName]*PropertyDef),
	}
}

// Namespaces returns the dictionary's namespace resolver.
func (d *Dictionary) Namespaces() *Namespaces {
	return d.ns
}

// AddClass registers a type or aspect and its properties.
func (d *Dictionary) AddClass(c ClassDef, props ...PropertyDef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cc := c
	for _, p := range props {
		pp := p
		pp.Container = c.Name
		d.props[p.Name] = &pp
		cc.Properties = append(cc.Properties, p.Name)
	}
	d.classes[c.Name] = &cc
}

// Type returns the type definition named q.
func (d *Dictionary) Type(q QName) (*ClassDef, bool) {
	c, ok := d.Class(q)
	if !ok || c.IsAspect {
		return nil, false
	}
	return c, true
}

// Aspect returns the aspect definition named q.
func (d *Dictionary) Aspect(q QName) (*ClassDef, bool) {
	c, ok := d.Class(q)
	if !ok || !c.IsAspect {
		return nil, false
	}
	return c, true
}

// Class returns the type or aspect named q.
func (d *Dictionary) Class(q QName) (*ClassDef, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.classes[q]
	return c, ok
}

// Property returns the property named q.
func (d *Dictionary) Property(q QName) (*PropertyDef, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.props[q]
	return p, ok
}

// IsDataType reports whether q names a built-in data type.
func (d *Dictionary) IsDataType(q QName) bool {
	return dataTypes[q]
}

// SubTypes returns q and every type that transitively derives from it.
func (d *Dictionary) SubTypes(q QName) []QName {
	return d.subClasses(q, false)
}

// SubAspects returns q and every aspect that transitively derives from it.
func (d *Dictionary) SubAspects(q QName) []QName {
	return d.subClasses(q, true)
}

func (d *Dictionary) subClasses(q QName, aspects bool) []QName {
	d.mu.RLock()
	defer d.mu.RUnlock()
	children := make(map[QName][]QName)
	for name, c := range d.classes {
		if c.IsAspect == aspects && !c.Parent.IsZero() {
			children[c.Parent] = append(children[c.Parent], name)
		}
	}
	seen := map[QName]bool{q: true}
	out := []QName{q}
	stack := []QName{q}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range children[cur] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			stack = append(stack, child)
		}
	}
	sortQNames(out[1:])
	return out
}

// PropertiesOfType returns every indexed property with the given data type.
func (d *Dictionary) PropertiesOfType(dataType QName) []QName {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []QName
	for name, p := range d.props {
		if p.DataType == dataType && p.Indexed {
			out = append(out, name)
		}
	}
	sortQNames(out)
	return out
}

// AllProperties returns every indexed property.
func (d *Dictionary) AllProperties() []QName {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]QName, 0, len(d.props))
	for name, p := range d.props {
		if p.Indexed {
			out = append(out, name)
		}
	}
	sortQNames(out)
	return out
}

func sortQNames(qs []QName) {
	sort.Slice(qs, func(i, j int) bool {
		if qs[i].URI != qs[j].URI {
			return qs[i].URI < qs[j].URI
		}
		return qs[i].Local < qs[j].Local
	})
}
