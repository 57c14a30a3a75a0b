package classfile

import "fmt"

// MaxPoolSize is the largest constant_pool_count a class file can carry.
const MaxPoolSize = 0xFFFF

// Pool is a constant pool. Index 0 and the second slot of long and double
// entries hold nil. The Add methods intern: they return the index of an
// existing equal entry and append only when none exists.
type Pool struct {
	entries []Constant

	indexed  bool
	utf8     map[string]uint16
	classes  map[uint16]uint16 // name utf8 index -> Class index
	strings  map[uint16]uint16
	nats     map[[2]uint16]uint16
	packages map[uint16]uint16
	modules  map[uint16]uint16
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{entries: []Constant{nil}}
}

// Len returns the constant_pool_count: one more than the highest index.
func (p *Pool) Len() int { return len(p.entries) }

// Get returns the entry at i, or nil for index 0, unused slots and
// out-of-range indices.
func (p *Pool) Get(i uint16) Constant {
	if int(i) >= len(p.entries) {
		return nil
	}
	return p.entries[i]
}

// Clone returns a copy of the pool. Entries are shared; Set replaces them
// rather than mutating, so the copy is unaffected by later changes.
func (p *Pool) Clone() *Pool {
	return &Pool{entries: append([]Constant(nil), p.entries...)}
}

// Utf8 returns the string at i.
func (p *Pool) Utf8(i uint16) (string, error) {
	u, ok := p.Get(i).(*Utf8Info)
	if !ok {
		return "", p.kindError(i, TagUtf8)
	}
	if !u.Valid {
		return "", fmt.Errorf("constant %d: invalid modified UTF-8", i)
	}
	return u.Value, nil
}

// ClassName returns the binary name of the Class entry at i.
func (p *Pool) ClassName(i uint16) (string, error) {
	c, ok := p.Get(i).(*ClassInfo)
	if !ok {
		return "", p.kindError(i, TagClass)
	}
	return p.Utf8(c.NameIndex)
}

// PackageName returns the slashed name of the Package entry at i.
func (p *Pool) PackageName(i uint16) (string, error) {
	c, ok := p.Get(i).(*PackageInfo)
	if !ok {
		return "", p.kindError(i, TagPackage)
	}
	return p.Utf8(c.NameIndex)
}

func (p *Pool) kindError(i uint16, want uint8) error {
	c := p.Get(i)
	if c == nil {
		return fmt.Errorf("constant %d: missing, want %s", i, TagName(want))
	}
	return fmt.Errorf("constant %d: %s, want %s", i, TagName(c.Tag()), TagName(want))
}

// Set replaces the entry at i.
func (p *Pool) Set(i uint16, c Constant) {
	if p.indexed {
		p.unindex(i, p.entries[i])
		p.index(i, c)
	}
	p.entries[i] = c
}

// Add appends c and returns its index. Long and double entries take two
// slots.
func (p *Pool) Add(c Constant) uint16 {
	i := uint16(len(p.entries))
	p.entries = append(p.entries, c)
	if IsWide(c.Tag()) {
		p.entries = append(p.entries, nil)
	}
	if p.indexed {
		p.index(i, c)
	}
	return i
}

// AddUtf8 interns s.
func (p *Pool) AddUtf8(s string) uint16 {
	p.ensureIndex()
	if i, ok := p.utf8[s]; ok {
		return i
	}
	return p.Add(NewUtf8(s))
}

// AddClass interns a Class entry for a binary name.
func (p *Pool) AddClass(name string) uint16 {
	n := p.AddUtf8(name)
	if i, ok := p.classes[n]; ok {
		return i
	}
	return p.Add(&ClassInfo{NameIndex: n})
}

// AddString interns a String entry.
func (p *Pool) AddString(s string) uint16 {
	n := p.AddUtf8(s)
	if i, ok := p.strings[n]; ok {
		return i
	}
	return p.Add(&StringInfo{StringIndex: n})
}

// AddNameAndType interns a NameAndType entry.
func (p *Pool) AddNameAndType(name, desc string) uint16 {
	key := [2]uint16{p.AddUtf8(name), p.AddUtf8(desc)}
	if i, ok := p.nats[key]; ok {
		return i
	}
	return p.Add(&NameAndTypeInfo{NameIndex: key[0], DescriptorIndex: key[1]})
}

// AddPackage interns a Package entry for a slashed package name.
func (p *Pool) AddPackage(name string) uint16 {
	n := p.AddUtf8(name)
	if i, ok := p.packages[n]; ok {
		return i
	}
	return p.Add(&PackageInfo{NameIndex: n})
}

// AddModule interns a Module entry.
func (p *Pool) AddModule(name string) uint16 {
	n := p.AddUtf8(name)
	if i, ok := p.modules[n]; ok {
		return i
	}
	return p.Add(&ModuleInfo{NameIndex: n})
}

func (p *Pool) ensureIndex() {
	if p.indexed {
		return
	}
	p.indexed = true
	p.utf8 = make(map[string]uint16, len(p.entries))
	p.classes = make(map[uint16]uint16)
	p.strings = make(map[uint16]uint16)
	p.nats = make(map[[2]uint16]uint16)
	p.packages = make(map[uint16]uint16)
	p.modules = make(map[uint16]uint16)
	for i, c := range p.entries {
		if c != nil {
			p.index(uint16(i), c)
		}
	}
}

// index records c at i unless an equal entry is already known; the
// lowest index wins.
func (p *Pool) index(i uint16, c Constant) {
	put := func(m map[uint16]uint16, k uint16) {
		if _, ok := m[k]; !ok {
			m[k] = i
		}
	}
	switch c := c.(type) {
	case *Utf8Info:
		if _, ok := p.utf8[c.Value]; c.Valid && !ok {
			p.utf8[c.Value] = i
		}
	case *ClassInfo:
		put(p.classes, c.NameIndex)
	case *StringInfo:
		put(p.strings, c.StringIndex)
	case *PackageInfo:
		put(p.packages, c.NameIndex)
	case *ModuleInfo:
		put(p.modules, c.NameIndex)
	case *NameAndTypeInfo:
		k := [2]uint16{c.NameIndex, c.DescriptorIndex}
		if _, ok := p.nats[k]; !ok {
			p.nats[k] = i
		}
	}
}

func (p *Pool) unindex(i uint16, c Constant) {
	drop := func(m map[uint16]uint16, k uint16) {
		if m[k] == i {
			delete(m, k)
		}
	}
	switch c := c.(type) {
	case *Utf8Info:
		if j, ok := p.utf8[c.Value]; ok && j == i {
			delete(p.utf8, c.Value)
		}
	case *ClassInfo:
		drop(p.classes, c.NameIndex)
	case *StringInfo:
		drop(p.strings, c.StringIndex)
	case *PackageInfo:
		drop(p.packages, c.NameIndex)
	case *ModuleInfo:
		drop(p.modules, c.NameIndex)
	case *NameAndTypeInfo:
		k := [2]uint16{c.NameIndex, c.DescriptorIndex}
		if p.nats[k] == i {
			delete(p.nats, k)
		}
	}
}
