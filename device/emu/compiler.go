package emu

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/exascience/accel/device"
)

type compileResult struct {
	status device.BuildStatus
	log    string
	temps  map[string]string
}

type diagnostics struct {
	label  string
	errors int
	lines  []string
}

func (d *diagnostics) errorf(line, col int, format string, args ...any) {
	d.errors++
	d.lines = append(d.lines, fmt.Sprintf("%v:%v:%v: error: %v", d.label, line, col, fmt.Sprintf(format, args...)))
}

func (d *diagnostics) optionf(format string, args ...any) {
	d.errors++
	d.lines = append(d.lines, "error: "+fmt.Sprintf(format, args...))
}

var languageStandards = map[string]bool{"CL1.1": true, "CL1.2": true, "CL2.0": true}

var flagOptions = make(map[string]bool)

func init() {
	for _, option := range strings.Fields(`-w -Werror -g -cl-opt-disable -cl-mad-enable
		-cl-fast-relaxed-math -cl-denorms-are-zero -cl-finite-math-only
		-cl-no-signed-zeros -cl-unsafe-math-optimizations`) {
		flagOptions[option] = true
	}
}

// parseOptions validates build options and returns the prefix for
// saved compiler temporaries, if requested.
func parseOptions(options string, d *diagnostics) (savePrefix string, save bool) {
	fields := strings.Fields(options)
	for i := 0; i < len(fields); i++ {
		option := fields[i]
		switch {
		case option == "-x":
			if i+1 >= len(fields) {
				d.optionf("missing argument to '-x'")
				continue
			}
			i++
			if fields[i] != "clc++" {
				d.optionf("unsupported source language '%v'", fields[i])
			}
		case option == "-D" || option == "-I":
			if i+1 >= len(fields) {
				d.optionf("missing argument to '%v'", option)
				continue
			}
			i++
		case strings.HasPrefix(option, "-D"), strings.HasPrefix(option, "-I"):
		case strings.HasPrefix(option, "-cl-std="):
			if std := strings.TrimPrefix(option, "-cl-std="); !languageStandards[std] {
				d.optionf("invalid value '%v' in '%v'", std, option)
			}
		case option == "-save-temps":
			savePrefix, save = "", true
		case strings.HasPrefix(option, "-save-temps="):
			savePrefix, save = strings.TrimPrefix(option, "-save-temps="), true
		case flagOptions[option]:
		default:
			d.optionf("invalid build option '%v'", option)
		}
	}
	return
}

var closing = map[byte]byte{')': '(', ']': '[', '}': '{'}

// stripComments replaces comments and literals with blanks, keeping line
// structure intact, so that later checks only see code.
func stripComments(src string) string {
	out := []byte(src)
	for i := 0; i < len(out); i++ {
		switch {
		case out[i] == '/' && i+1 < len(out) && out[i+1] == '/':
			for i < len(out) && out[i] != '\n' {
				out[i] = ' '
				i++
			}
		case out[i] == '/' && i+1 < len(out) && out[i+1] == '*':
			out[i], out[i+1] = ' ', ' '
			i += 2
			for i < len(out) && !(out[i] == '*' && i+1 < len(out) && out[i+1] == '/') {
				if out[i] != '\n' {
					out[i] = ' '
				}
				i++
			}
			if i < len(out) {
				out[i], out[i+1] = ' ', ' '
				i++
			}
		case out[i] == '"' || out[i] == '\'':
			quote := out[i]
			i++
			for i < len(out) && out[i] != quote && out[i] != '\n' {
				if out[i] == '\\' && i+1 < len(out) {
					out[i] = ' '
					i++
				}
				out[i] = ' '
				i++
			}
		}
	}
	return string(out)
}

type bracket struct {
	char      byte
	line, col int
}

func checkBrackets(code string, d *diagnostics) {
	var stack []bracket
	line, col := 1, 0
	for i := 0; i < len(code); i++ {
		c := code[i]
		col++
		switch c {
		case '\n':
			line, col = line+1, 0
		case '(', '[', '{':
			stack = append(stack, bracket{c, line, col})
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1].char != closing[c] {
				d.errorf(line, col, "unexpected '%c'", c)
				return
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		open := stack[len(stack)-1]
		d.errorf(open.line, open.col, "unterminated '%c'", open.char)
	}
}

var (
	mangledName = regexp.MustCompile(`mangled_name\s*\(\s*(\w+)\s*\)`)
	kernelDecl  = regexp.MustCompile(`kernel\s+void\s+(\w+)\s*\(([^)]*)\)`)
	identifier  = regexp.MustCompile(`[A-Za-z_]\w*`)
)

var scalarTypes = map[string]bool{
	"void": true, "bool": true, "char": true, "uchar": true, "short": true, "ushort": true, "int": true,
	"uint": true, "long": true, "ulong": true, "float": true, "double": true, "half": true, "size_t": true,
}

var qualifiers = map[string]bool{
	"global": true, "__global": true, "local": true, "__local": true, "constant": true, "__constant": true,
	"const": true, "restrict": true, "volatile": true, "unsigned": true,
}

func lineOf(code string, offset int) (line, col int) {
	line = 1 + strings.Count(code[:offset], "\n")
	col = offset - strings.LastIndex(code[:offset], "\n")
	return
}

func typeDefined(code, name string) bool {
	if scalarTypes[name] {
		return true
	}
	q := regexp.QuoteMeta(name)
	return regexp.MustCompile(`\b(struct|class)\s+`+q+`\b`).MatchString(code) ||
		regexp.MustCompile(`\btypedef\b[^;]*\b`+q+`\s*;`).MatchString(code) ||
		regexp.MustCompile(`\btypename\s+`+q+`\b`).MatchString(code)
}

// typeNames splits a declared parameter type into the base type names it
// refers to, including template arguments.
func typeNames(decl string) (names []string) {
	for _, name := range identifier.FindAllString(decl, -1) {
		if !qualifiers[name] {
			names = append(names, name)
		}
	}
	return
}

func checkInstantiation(code string, src device.Source, d *diagnostics) {
	var instantiation []int
	for _, m := range mangledName.FindAllStringSubmatchIndex(code, -1) {
		if code[m[2]:m[3]] == src.EntryPoint {
			instantiation = m
			break
		}
	}
	if instantiation == nil {
		d.errorf(1, 1, "no kernel named '%v' in program", src.EntryPoint)
		return
	}
	rest := code[instantiation[1]:]
	decl := kernelDecl.FindStringSubmatchIndex(rest)
	if decl == nil {
		line, col := lineOf(code, instantiation[0])
		d.errorf(line, col, "expected kernel declaration after instantiation of '%v'", src.EntryPoint)
		return
	}
	template := rest[decl[2]:decl[3]]
	definitions := 0
	for _, m := range kernelDecl.FindAllStringSubmatch(code, -1) {
		if m[1] == template {
			definitions++
		}
	}
	line, col := lineOf(code, instantiation[1]+decl[0])
	if definitions < 2 {
		d.errorf(line, col, "no template named '%v'", template)
	}
	for _, param := range strings.Split(rest[decl[4]:decl[5]], ",") {
		names := typeNames(param)
		if len(names) < 2 {
			d.errorf(line, col, "expected parameter declaration in '%v'", strings.TrimSpace(param))
			continue
		}
		for _, name := range names[:len(names)-1] {
			if !typeDefined(code, name) {
				d.errorf(line, col, "unknown type name '%v'", name)
			}
		}
	}
}

// compile checks src for one device. It never executes the source; the
// native body attached to the source is what runs on the device.
func compile(src device.Source, options string, info device.Info) compileResult {
	label := src.Label
	if label == "" {
		label = "<source>"
	}
	d := &diagnostics{label: label}
	savePrefix, save := parseOptions(options, d)
	code := stripComments(src.Text)
	checkBrackets(code, d)
	if d.errors == 0 {
		checkInstantiation(code, src, d)
	}
	if d.errors == 0 && src.Native == nil {
		d.errorf(1, 1, "kernel '%v' has no implementation for device %v", src.EntryPoint, info.Name)
	}

	result := compileResult{status: device.BuildSuccess}
	if d.errors > 0 {
		result.status = device.BuildFailure
		d.lines = append(d.lines, fmt.Sprintf("%v error%v generated.", d.errors, plural(d.errors)))
	}
	result.log = strings.Join(d.lines, "\n")
	if save {
		if savePrefix != "" {
			savePrefix += "_"
		}
		result.temps = map[string]string{
			savePrefix + label + ".cl": src.Text,
			savePrefix + label + ".i":  code,
		}
	}
	return result
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
