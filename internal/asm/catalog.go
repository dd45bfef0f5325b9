package asm

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Catalog is the immutable set of templates of one architecture, indexed by header and by
// mnemonic. Lookups return templates in declaration order, which is the order both the
// assembler and the disassembler try them in.
type Catalog struct {
	templates []*Template
	byHeader  map[Header][]*Template
	byName    map[string][]*Template
}

// NewCatalog indexes templates, assigning Serial in declaration order. Every problem in the
// list is reported, not only the first.
func NewCatalog(templates []*Template) (*Catalog, error) {
	c := &Catalog{
		templates: templates,
		byHeader:  map[Header][]*Template{},
		byName:    map[string][]*Template{},
	}
	var errs *multierror.Error
	seen := make(map[string]int, len(templates))
	for i, t := range templates {
		t.Serial = i
		key := t.String()
		if len(t.Headers) > 0 {
			key += " @" + t.Headers[0].String()
		}
		if prev, ok := seen[key]; ok {
			errs = multierror.Append(errs, fmt.Errorf("template %d duplicates template %d: %s", i, prev, key))
		}
		seen[key] = i
		if t.Codec == nil {
			errs = multierror.Append(errs, fmt.Errorf("template %d (%s) has no codec", i, key))
		}
		if len(t.Headers) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("template %d (%s) has no header", i, key))
		}
		for j, p := range t.Params {
			if p.Accepts.Contains(LocationIntegerRegister) && p.Class == nil {
				errs = multierror.Append(errs, fmt.Errorf("template %d (%s) parameter %d accepts registers without a class", i, key, j))
			}
		}
		if t.Long != nil && len(t.Long.Params) != len(t.Params) {
			errs = multierror.Append(errs, fmt.Errorf("template %d (%s) relaxes to %s with a different shape", i, key, t.Long))
		}
		for _, h := range t.Headers {
			c.byHeader[h] = append(c.byHeader[h], t)
		}
		c.byName[t.Name] = append(c.byName[t.Name], t)
	}
	return c, errs.ErrorOrNil()
}

// MustCatalog is NewCatalog for static tables, which are broken only by programming errors.
func MustCatalog(templates []*Template) *Catalog {
	c, err := NewCatalog(templates)
	if err != nil {
		panic("BUG: invalid template table: " + err.Error())
	}
	return c
}

// Templates returns every template in declaration order.
func (c *Catalog) Templates() []*Template { return c.templates }

// HeaderCount returns the number of distinct headers.
func (c *Catalog) HeaderCount() int { return len(c.byHeader) }

// TemplatesForHeader returns the templates starting with h, or nil if h is unknown.
func (c *Catalog) TemplatesForHeader(h Header) []*Template { return c.byHeader[h] }

// Named returns the templates of a mnemonic.
func (c *Catalog) Named(name string) []*Template { return c.byName[name] }

// Select returns the first template named name that accepts args.
func (c *Catalog) Select(name string, args ...Location) (*Template, error) {
	return c.SelectFunc(name, nil, args...)
}

// SelectFunc is like Select, skipping templates for which keep returns false.
//
// When no template accepts args, the error of the candidate that matched the most operands
// is returned.
func (c *Catalog) SelectFunc(name string, keep func(*Template) bool, args ...Location) (*Template, error) {
	candidates := c.byName[name]
	if len(candidates) == 0 {
		return nil, &UnknownMnemonicError{Mnemonic: name}
	}
	var best *IllegalOperandError
	for _, t := range candidates {
		if keep != nil && !keep(t) {
			continue
		}
		err := t.Check(args)
		if err == nil {
			return t, nil
		}
		if ie, ok := err.(*IllegalOperandError); ok && (best == nil || ie.Position > best.Position) {
			best = ie
		}
	}
	if best == nil {
		return nil, &UnknownMnemonicError{Mnemonic: name}
	}
	return nil, best
}
