package design

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodedDesign is what decoding a design description yields: the typed
// Design plus its embedded per-flow default settings table (§3 "flow"
// field), which the caller folds into the Settings-merge chain as the
// design tier (§4.3).
type DecodedDesign struct {
	Design     *Design
	FlowConfig map[string]map[string]interface{}
}

// DecodeDesignYAML unmarshals a design description document into a
// typed Design. Per the engine's explicit non-goal on file-format
// readers, this reduces to a "typed dictionary load": the document is
// first decoded into a generic map[string]interface{}, then walked into
// Design's fields by hand, the same two-stage shape the original
// Python's pydantic models use at runtime, done explicitly because Go
// has no equivalent model layer (§10).
func DecodeDesignYAML(data []byte, rootPath string) (*DecodedDesign, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("design: parsing yaml: %w", err)
	}
	return decodeDesignMap(raw, rootPath)
}

func decodeDesignMap(raw map[string]interface{}, rootPath string) (*DecodedDesign, error) {
	name, _ := raw["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("design: missing required field 'name'")
	}

	d := &Design{Name: name, RootPath: rootPath}

	if rtl, ok := raw["rtl"].(map[string]interface{}); ok {
		d.RTL = decodeSourceSet(rtl, rootPath)
	}
	if tb, ok := raw["tb"].(map[string]interface{}); ok {
		d.TB = decodeSourceSet(tb, rootPath)
	}
	if lang, ok := raw["language"].(map[string]interface{}); ok {
		d.Language = decodeLanguage(lang)
	}

	flowConfig := map[string]map[string]interface{}{}
	if flow, ok := raw["flow"].(map[string]interface{}); ok {
		for name, v := range flow {
			if m, ok := v.(map[string]interface{}); ok {
				flowConfig[name] = m
			}
		}
	}

	return &DecodedDesign{Design: d, FlowConfig: flowConfig}, nil
}

func decodeSourceSet(m map[string]interface{}, rootPath string) SourceSet {
	var ss SourceSet
	ss.Clocks = map[string]string{}
	ss.Parameters = map[string]interface{}{}
	ss.Defines = map[string]string{}

	if raw, ok := m["sources"].([]interface{}); ok {
		for _, item := range raw {
			ss.Sources = append(ss.Sources, decodeSource(item, rootPath))
		}
	}
	if clocks, ok := m["clocks"].(map[string]interface{}); ok {
		for name, port := range clocks {
			if s, ok := port.(string); ok {
				ss.Clocks[name] = s
			}
		}
	}
	if top, ok := m["top"].([]interface{}); ok {
		for _, t := range top {
			if s, ok := t.(string); ok {
				ss.Top = append(ss.Top, s)
			}
		}
	} else if top, ok := m["top"].(string); ok {
		ss.Top = []string{top}
	}
	if params, ok := m["parameters"].(map[string]interface{}); ok {
		ss.Parameters = params
	}
	if defines, ok := m["defines"].(map[string]interface{}); ok {
		for k, v := range defines {
			if s, ok := v.(string); ok {
				ss.Defines[k] = s
			}
		}
	}
	if cocotb, ok := m["cocotb"].(map[string]interface{}); ok {
		cfg := &CocotbConfig{}
		cfg.Module, _ = cocotb["module"].(string)
		cfg.Toplevel, _ = cocotb["toplevel"].(string)
		cfg.Testcase, _ = cocotb["testcase"].(string)
		ss.Cocotb = cfg
	}
	if uut, ok := m["uut"].(string); ok {
		ss.UUT = uut
	}
	return ss
}

func decodeSource(item interface{}, rootPath string) Source {
	switch v := item.(type) {
	case string:
		return Source{Resource: NewFileResource(rootPath, v), Kind: kindFromPath(v)}
	case map[string]interface{}:
		path, _ := v["file"].(string)
		kind, _ := v["type"].(string)
		standard, _ := v["standard"].(string)
		k := SourceKind(kind)
		if k == "" {
			k = kindFromPath(path)
		}
		return Source{Resource: NewFileResource(rootPath, path), Kind: k, Standard: standard}
	default:
		return Source{}
	}
}

func kindFromPath(path string) SourceKind {
	for _, suffix := range []struct {
		ext  string
		kind SourceKind
	}{
		{".vhd", KindVHDL}, {".vhdl", KindVHDL},
		{".v", KindVerilog},
		{".sv", KindSystemVerilog}, {".svh", KindSystemVerilog},
		{".cpp", KindCPP}, {".cc", KindCPP},
		{".sdc", KindSDC},
		{".xdc", KindXDC},
		{".py", KindCocotb},
	} {
		if len(path) >= len(suffix.ext) && path[len(path)-len(suffix.ext):] == suffix.ext {
			return suffix.kind
		}
	}
	return KindOther
}

func decodeLanguage(m map[string]interface{}) LanguageSettings {
	var l LanguageSettings
	if vhdl, ok := m["vhdl"].(map[string]interface{}); ok {
		l.VHDL.Standard, _ = vhdl["standard"].(string)
		l.VHDL.SynopsysFlag, _ = vhdl["synopsys"].(bool)
	}
	if verilog, ok := m["verilog"].(map[string]interface{}); ok {
		l.Verilog.Standard, _ = verilog["standard"].(string)
	}
	return l
}

// DecodeXedaProjectYAML unmarshals an xedaproject aggregator document
// (§6, §12): a list of designs (or a single "design" table) plus a
// project-wide "flows" settings table.
func DecodeXedaProjectYAML(data []byte, rootPath string) (*XedaProject, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("xedaproject: parsing yaml: %w", err)
	}

	proj := &XedaProject{Flows: map[string]map[string]interface{}{}}

	switch designs := raw["designs"].(type) {
	case []interface{}:
		for _, item := range designs {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			decoded, err := decodeDesignMap(m, rootPath)
			if err != nil {
				return nil, err
			}
			proj.Designs = append(proj.Designs, decoded.Design)
		}
	default:
		if single, ok := raw["design"].(map[string]interface{}); ok {
			decoded, err := decodeDesignMap(single, rootPath)
			if err != nil {
				return nil, err
			}
			proj.Designs = append(proj.Designs, decoded.Design)
		}
	}

	if flows, ok := raw["flows"].(map[string]interface{}); ok {
		for name, v := range flows {
			if m, ok := v.(map[string]interface{}); ok {
				proj.Flows[name] = m
			}
		}
	}

	return proj, nil
}
