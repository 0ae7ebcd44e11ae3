// Package design models the Design data structure: RTL/testbench sources,
// clocks, target FPGA and the xedaproject aggregator that groups designs
// with per-flow default settings. Designs are immutable once constructed;
// only specific flows are permitted to rewrite rtl/tb fields (e.g. a
// post-synth simulation splicing in a generated netlist), and that
// rewrite happens on a copy handed to the dependency, never in place.
package design

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/xedahq/xeda/pkg/fingerprint"
)

// SourceKind enumerates the recognised RTL/TB source kinds.
type SourceKind string

const (
	KindVHDL          SourceKind = "vhdl"
	KindVerilog       SourceKind = "verilog"
	KindSystemVerilog SourceKind = "systemverilog"
	KindCPP           SourceKind = "cpp"
	KindSDC           SourceKind = "sdc"
	KindXDC           SourceKind = "xdc"
	KindCocotb        SourceKind = "cocotb"
	KindOther         SourceKind = "other"
)

// FileResource is an absolute path plus a lazily-computed SHA-256 digest
// of its contents. Equality for cache purposes uses both path and hash.
type FileResource struct {
	Path string

	mu  sync.Mutex
	sum string
}

// NewFileResource resolves path to an absolute form rooted at root when
// path is relative.
func NewFileResource(root, path string) *FileResource {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	return &FileResource{Path: p}
}

// ContentSHA256 computes (and caches) the SHA-256 of the file's contents.
// Implements fingerprint.FileHasher.
func (f *FileResource) ContentSHA256() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sum != "" {
		return f.sum, nil
	}
	sum, err := fingerprint.FileContentSHA256(f.Path)
	if err != nil {
		return "", fmt.Errorf("design: reading %s: %w", f.Path, err)
	}
	f.sum = sum
	return sum, nil
}

// AbsPath implements fingerprint.FileHasher.
func (f *FileResource) AbsPath() string { return f.Path }

// Equal compares two resources by path and content hash.
func (f *FileResource) Equal(other *FileResource) bool {
	if f.Path != other.Path {
		return false
	}
	a, errA := f.ContentSHA256()
	b, errB := other.ContentSHA256()
	return errA == nil && errB == nil && a == b
}

// Source is one RTL or testbench source file.
type Source struct {
	Resource *FileResource
	Kind     SourceKind
	Standard string // language standard, e.g. "2008" for VHDL
}

// CocotbConfig describes the optional cocotb testbench submodule.
type CocotbConfig struct {
	Module   string
	Toplevel string
	Testcase string
}

// SourceSet is the shape shared by rtl and tb: ordered sources, primary
// clocks, top-level names, generics/parameters, and preprocessor defines.
type SourceSet struct {
	Sources    []Source
	Clocks     map[string]string // clock name -> port name
	Top        []string          // up to two names
	Parameters map[string]interface{}
	Defines    map[string]string

	// tb-only
	Cocotb *CocotbConfig
	UUT    string
}

// LanguageSettings pins per-language standard/flag options.
type LanguageSettings struct {
	VHDL struct {
		Standard     string
		SynopsysFlag bool
	}
	Verilog struct {
		Standard string
	}
}

// Design is the immutable input describing the hardware under flow.
type Design struct {
	Name     string
	RTL      SourceSet
	TB       SourceSet
	Language LanguageSettings
	RootPath string
}

// WithSubstitutedRTLSources returns a shallow copy of d with its rtl
// sources replaced, used by flows such as post-synth simulation that
// push a generated netlist into a dependency's view of the design
// without mutating the depender's own Design.
func (d *Design) WithSubstitutedRTLSources(sources []Source) *Design {
	cp := *d
	cp.RTL.Sources = sources
	return &cp
}

// CanonicalMap renders the design into the generic map[string]interface{}
// shape fingerprint.Canonicalize understands, substituting each source's
// content hash for its bytes per §4.1.
func (d *Design) CanonicalMap() map[string]interface{} {
	return map[string]interface{}{
		"name":     d.Name,
		"rtl":      sourceSetMap(d.RTL),
		"tb":       sourceSetMap(d.TB),
		"language": languageMap(d.Language),
	}
}

func sourceSetMap(s SourceSet) map[string]interface{} {
	sources := make([]interface{}, len(s.Sources))
	for i, src := range s.Sources {
		sources[i] = map[string]interface{}{
			"file":     src.Resource,
			"kind":     string(src.Kind),
			"standard": src.Standard,
		}
	}
	clocks := make(map[string]interface{}, len(s.Clocks))
	for k, v := range s.Clocks {
		clocks[k] = v
	}
	top := make([]interface{}, len(s.Top))
	for i, t := range s.Top {
		top[i] = t
	}
	parameters := make(map[string]interface{}, len(s.Parameters))
	for k, v := range s.Parameters {
		parameters[k] = v
	}
	defines := make(map[string]interface{}, len(s.Defines))
	for k, v := range s.Defines {
		defines[k] = v
	}
	m := map[string]interface{}{
		"sources":    sources,
		"clocks":     clocks,
		"top":        top,
		"parameters": parameters,
		"defines":    defines,
		"uut":        s.UUT,
	}
	if s.Cocotb != nil {
		m["cocotb"] = map[string]interface{}{
			"module":   s.Cocotb.Module,
			"toplevel": s.Cocotb.Toplevel,
			"testcase": s.Cocotb.Testcase,
		}
	}
	return m
}

func languageMap(l LanguageSettings) map[string]interface{} {
	return map[string]interface{}{
		"vhdl_standard":     l.VHDL.Standard,
		"vhdl_synopsys":     l.VHDL.SynopsysFlag,
		"verilog_standard":  l.Verilog.Standard,
	}
}

// DesignHash computes the design's content-addressed fingerprint (§4.1,
// §3 "design_hash"): file contents are substituted by their SHA-256
// digests before the canonical form is hashed.
func (d *Design) DesignHash() (string, error) {
	return fingerprint.Hash(d.CanonicalMap())
}

// XedaProject is the optional aggregator file naming one or more designs
// plus project-wide per-flow default settings (§6, §12).
type XedaProject struct {
	Designs []*Design
	Flows   map[string]map[string]interface{} // flow name -> settings table
}

// DesignByName looks up a design by name, or nil.
func (p *XedaProject) DesignByName(name string) *Design {
	for _, d := range p.Designs {
		if d.Name == name {
			return d
		}
	}
	return nil
}
