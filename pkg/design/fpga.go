package design

import "regexp"

// FPGA is a target device record, derived from a free-form part string.
// Fields that cannot be inferred are left at their zero value.
type FPGA struct {
	Part     string
	Vendor   string
	Family   string
	Device   string
	Speed    string
	Package  string
	Pins     string
	Grade    string
	Capacity string
}

var (
	xilinx7Pattern = regexp.MustCompile(`(?i)^xc7([akszv])(\d+)t?-?([0-9a-z]+)?-?([0-9a-z]+)?([a-z])?$`)
	xilinxUSPattern = regexp.MustCompile(`(?i)^xc(zu|ku|au)(\w+)-?([0-9a-z]+)?-?([0-9a-z]+)?([a-z])?$`)
	lattice5Pattern = regexp.MustCompile(`(?i)^lfe5u[m]?-(\d+)f?-?([0-9a-z]+)?-?([0-9a-z]+)?([a-z])?$`)
)

var xilinx7Family = map[string]string{
	"a": "artix7",
	"k": "kintex7",
	"s": "spartan7",
	"z": "zynq7",
	"v": "virtex7",
}

var xilinxUSFamily = map[string]string{
	"zu": "zynq-ultrascale+",
	"ku": "kintex-ultrascale",
	"au": "artix-ultrascale+",
}

// ParseFPGAPart attempts to recognise a Xilinx 7-series/UltraScale(+) or
// Lattice ECP5 part string, filling in whatever fields the family parser
// can derive. Unrecognised strings return an FPGA with only Part set.
func ParseFPGAPart(part string) *FPGA {
	f := &FPGA{Part: part}

	if m := xilinx7Pattern.FindStringSubmatch(part); m != nil {
		f.Vendor = "xilinx"
		f.Family = xilinx7Family[regexpLower(m[1])]
		f.Device = m[2]
		f.Package = m[3]
		f.Pins = m[4]
		f.Grade = m[5]
		return f
	}

	if m := xilinxUSPattern.FindStringSubmatch(part); m != nil {
		f.Vendor = "xilinx"
		f.Family = xilinxUSFamily[regexpLower(m[1])]
		f.Device = m[2]
		f.Package = m[3]
		f.Pins = m[4]
		f.Grade = m[5]
		return f
	}

	if m := lattice5Pattern.FindStringSubmatch(part); m != nil {
		f.Vendor = "lattice"
		f.Family = "ecp5"
		f.Capacity = m[1]
		f.Package = m[2]
		f.Pins = m[3]
		f.Grade = m[4]
		return f
	}

	return f
}

func regexpLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
