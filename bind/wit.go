package bind

import (
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/dynbridge/errors"
)

// Signature is a parsed WIT-style function signature.
type Signature struct {
	Params  []wit.Type
	Results []wit.Type
}

var (
	sigPattern = regexp.MustCompile(`^\s*func\s*\(([^)]*)\)(?:\s*->\s*(.+))?\s*$`)

	// Pattern: [export] name: func(params) -> result;
	witFuncPattern = regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*(func\s*\([^)]*\)(?:\s*->\s*[^;]+)?)`)
)

// ParseSignature parses declaration signature text of the form
// "func(name: type, ...) -> type". Result may be a single type or a
// parenthesized tuple; a missing arrow means no results.
func ParseSignature(s string) (*Signature, error) {
	match := sigPattern.FindStringSubmatch(s)
	if match == nil {
		return nil, errors.InvalidInput(errors.PhaseBind, "malformed signature "+s)
	}

	sig := &Signature{}

	paramsStr := strings.TrimSpace(match[1])
	if paramsStr != "" {
		for _, p := range splitParams(paramsStr) {
			typStr := p
			if idx := strings.LastIndex(p, ":"); idx != -1 {
				typStr = strings.TrimSpace(p[idx+1:])
			}
			t, err := parseWitType(typStr)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseBind, errors.KindInvalidInput, err, "parse param type "+typStr)
			}
			sig.Params = append(sig.Params, t)
		}
	}

	resultStr := strings.TrimSpace(match[2])
	if resultStr != "" && resultStr != "()" {
		if strings.HasPrefix(resultStr, "(") && strings.HasSuffix(resultStr, ")") {
			inner := strings.TrimPrefix(strings.TrimSuffix(resultStr, ")"), "(")
			for _, part := range splitParams(inner) {
				t, err := parseWitType(part)
				if err != nil {
					return nil, errors.Wrap(errors.PhaseBind, errors.KindInvalidInput, err, "parse result type "+part)
				}
				sig.Results = append(sig.Results, t)
			}
		} else {
			t, err := parseWitType(resultStr)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseBind, errors.KindInvalidInput, err, "parse result type "+resultStr)
			}
			sig.Results = []wit.Type{t}
		}
	}

	return sig, nil
}

// CheckWIT verifies that every function a module declares appears in
// the given WIT interface text with matching arity, guest names
// produced by the namer. Mismatches are configuration errors.
func CheckWIT(witText string, m *Module, namer Namer) error {
	if namer == nil {
		namer = PathNamer{}
	}

	declared := make(map[string]*Signature)
	for _, match := range witFuncPattern.FindAllStringSubmatch(witText, -1) {
		sig, err := ParseSignature(match[2])
		if err != nil {
			return err
		}
		declared[match[1]] = sig
	}

	check := func(f *Func) error {
		name := namer.GuestName(f.Path)
		witSig, ok := declared[name]
		if !ok {
			return errors.NotFound(errors.PhaseBind, "wit function", name)
		}
		if f.Sig == "" {
			return nil
		}
		sig, err := ParseSignature(f.Sig)
		if err != nil {
			return err
		}
		if len(sig.Params) != len(witSig.Params) || len(sig.Results) != len(witSig.Results) {
			return errors.New(errors.PhaseBind, errors.KindTypeMismatch).
				Path(m.Name, f.Path).
				Detail("declared %d params %d results, wit has %d params %d results",
					len(sig.Params), len(sig.Results), len(witSig.Params), len(witSig.Results)).
				Build()
		}
		return nil
	}

	for i := range m.Funcs {
		if err := check(&m.Funcs[i]); err != nil {
			return err
		}
	}
	for oi := range m.Objects {
		for i := range m.Objects[oi].Methods {
			if err := check(&m.Objects[oi].Methods[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// splitParams splits a parameter list, handling nested parens.
func splitParams(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(':
			depth++
			current.WriteRune(ch)
		case ')':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					result = append(result, str)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}

	return result
}

func parseWitType(s string) (wit.Type, error) {
	return wit.ParseType(strings.TrimSpace(s))
}
