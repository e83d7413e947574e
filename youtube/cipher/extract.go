package cipher

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

const jsVarStr = `[a-zA-Z_$][a-zA-Z_0-9]*`

const (
	reverseActionBody = `:function\(a\)\{` +
		`(?:return )?a\.reverse\(\)` +
		`\}`
	spliceActionBody = `:function\(a,b\)\{` +
		`a\.splice\(0,b\)` +
		`\}`
	swapActionBody = `:function\(a,b\)\{` +
		`var c=a\[0\];a\[0\]=a\[b(?:%a\.length)?\];a\[b(?:%a\.length)?\]=c(?:;return a)?` +
		`\}`
)

var (
	actionsObjRegexp = regexp.MustCompile(fmt.Sprintf(
		`(?:var|let|const)\s+(%s)=\{((?:(?:%s%s|%s%s|%s%s),?\n?)+)\}\s*;?`,
		jsVarStr, jsVarStr, swapActionBody, jsVarStr, spliceActionBody, jsVarStr, reverseActionBody))
	reverseKeyRegexp = regexp.MustCompile(fmt.Sprintf(`(?m)(?:^|,)(%s)%s`, jsVarStr, reverseActionBody))
	spliceKeyRegexp  = regexp.MustCompile(fmt.Sprintf(`(?m)(?:^|,)(%s)%s`, jsVarStr, spliceActionBody))
	swapKeyRegexp    = regexp.MustCompile(fmt.Sprintf(`(?m)(?:^|,)(%s)%s`, jsVarStr, swapActionBody))

	actionsFuncRegexps = []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(
			`function(?:\s+%s)?\(a\)\{`+
				`a=a\.split\([^)]*\);\s*`+
				`((?:(?:a=)?%s(?:\.%s|\[[^\]]+\])\(a,\d+\);?\s*)+)`+
				`return a\.join\([^)]*\)`+
				`\}`, jsVarStr, jsVarStr, jsVarStr)),
		regexp.MustCompile(fmt.Sprintf(
			`%s\s*=\s*function\(a\)\{`+
				`a=a\.split\([^)]*\);\s*`+
				`((?:(?:a=)?%s(?:\.%s|\[[^\]]+\])\(a,\d+\);?\s*)+)`+
				`return a\.join\([^)]*\)`+
				`\}`, jsVarStr, jsVarStr, jsVarStr)),
	}

	// nFunctionNameRegexps locates the name of the n-parameter transform
	// function across the several player.js revisions seen in the wild.
	nFunctionNameRegexps = []*regexp.Regexp{
		regexp.MustCompile(`\.get\("n"\)\)&&\(b=([a-zA-Z0-9$]+)\[(\d+)\](.+)\|\|([a-zA-Z0-9]+)`),
		regexp.MustCompile(`\.get\("n"\)\)\s*&&\s*\(b=([a-zA-Z0-9$]{1,})\[(\d+)\]\([a-zA-Z0-9$]{1,}\).+\|\|([a-zA-Z0-9$]{1,})`),
		regexp.MustCompile(`\.get\("n"\)\)\s*&&\s*\(b=([a-zA-Z0-9$]{1,})\([a-zA-Z0-9$]{1,}\)`),
		regexp.MustCompile(`\.get\("n"\).*?&&.*?([a-zA-Z0-9$]{1,})\([a-zA-Z0-9$]{1,}\)`),
	}
)

// actionOp is one step of the sig-transform function body: which named
// action key ("rev", "spl", "swp") with its numeric argument, if any.
type actionOp struct {
	kind string
	arg  int
}

// parseActions locates the action-table object and the transform function
// body in playerJS and returns the ordered operation chain, AST-style: the
// object defines which key names mean reverse/splice/swap, and the function
// body is scanned for calls to those keys in order.
func parseActions(playerJS []byte) ([]actionOp, error) {
	objMatch := actionsObjRegexp.FindSubmatch(playerJS)
	funcBody := findActionsFuncBody(playerJS)
	if len(objMatch) < 3 || len(funcBody) == 0 {
		return nil, fmt.Errorf("cipher: action table or transform function not found")
	}
	obj := objMatch[1]
	objBody := objMatch[2]

	var reverseKey, spliceKey, swapKey string
	if m := reverseKeyRegexp.FindSubmatch(objBody); len(m) > 1 {
		reverseKey = string(m[1])
	}
	if m := spliceKeyRegexp.FindSubmatch(objBody); len(m) > 1 {
		spliceKey = string(m[1])
	}
	if m := swapKeyRegexp.FindSubmatch(objBody); len(m) > 1 {
		swapKey = string(m[1])
	}
	if reverseKey == "" && spliceKey == "" && swapKey == "" {
		return nil, fmt.Errorf("cipher: no action keys resolved from action table")
	}

	callRe, err := regexp.Compile(fmt.Sprintf(
		`(?:a=)?%s(?:\.(%s|%s|%s)|\[(?:"(%s|%s|%s)"|'(%s|%s|%s)')\])\(a,(\d+)\)`,
		regexp.QuoteMeta(string(obj)),
		regexp.QuoteMeta(reverseKey), regexp.QuoteMeta(spliceKey), regexp.QuoteMeta(swapKey),
		regexp.QuoteMeta(reverseKey), regexp.QuoteMeta(spliceKey), regexp.QuoteMeta(swapKey),
		regexp.QuoteMeta(reverseKey), regexp.QuoteMeta(spliceKey), regexp.QuoteMeta(swapKey),
	))
	if err != nil {
		return nil, err
	}

	var ops []actionOp
	for _, m := range callRe.FindAllSubmatch(funcBody, -1) {
		if len(m) < 5 {
			continue
		}
		key := firstNonEmpty(m[1], m[2], m[3])
		arg := atoiOr(string(m[4]), 0)
		switch key {
		case reverseKey:
			ops = append(ops, actionOp{kind: "rev"})
		case spliceKey:
			ops = append(ops, actionOp{kind: "spl", arg: arg})
		case swapKey:
			ops = append(ops, actionOp{kind: "swp", arg: arg})
		}
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("cipher: empty operation chain")
	}
	return ops, nil
}

func findActionsFuncBody(playerJS []byte) []byte {
	for _, re := range actionsFuncRegexps {
		if m := re.FindSubmatch(playerJS); len(m) > 1 {
			return m[1]
		}
	}
	return nil
}

// findNFunctionName locates the name of the n-parameter transform function.
func findNFunctionName(playerJS []byte) (string, bool) {
	for _, re := range nFunctionNameRegexps {
		m := re.FindSubmatch(playerJS)
		if len(m) == 0 {
			continue
		}
		switch len(m) {
		case 5:
			if atoiOr(string(m[2]), -1) == 0 {
				return string(m[4]), true
			}
			return string(m[1]), true
		case 4:
			if atoiOr(string(m[2]), -1) == 0 {
				return string(m[3]), true
			}
			return string(m[1]), true
		default:
			return string(m[1]), true
		}
	}
	return "", false
}

// extractFunctionBody returns the full `name=function(...){...}` (or
// `function name(...){...}`) source for name, walking balanced braces so
// that nested blocks and string literals containing braces don't truncate
// the match early.
func extractFunctionBody(playerJS []byte, name string) (string, bool) {
	name = strings.TrimSpace(name)
	defPatterns := []string{
		name + "=function(",
		name + " = function(",
		"function " + name + "(",
	}
	start := -1
	for _, def := range defPatterns {
		if i := bytes.Index(playerJS, []byte(def)); i >= 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}

	bracePos := bytes.IndexByte(playerJS[start:], '{')
	if bracePos < 0 {
		return "", false
	}
	pos := start + bracePos + 1
	var strChar byte
	for depth := 1; depth > 0; pos++ {
		if pos >= len(playerJS) {
			return "", false
		}
		b := playerJS[pos]
		switch b {
		case '{':
			if strChar == 0 {
				depth++
			}
		case '}':
			if strChar == 0 {
				depth--
			}
		case '`', '"', '\'':
			if pos > 1 && playerJS[pos-1] == '\\' && playerJS[pos-2] != '\\' {
				continue
			}
			if strChar == 0 {
				strChar = b
			} else if strChar == b {
				strChar = 0
			}
		}
	}
	return string(playerJS[start:pos]), true
}

func firstNonEmpty(groups ...[]byte) string {
	for _, g := range groups {
		if len(g) > 0 {
			return string(g)
		}
	}
	return ""
}

func atoiOr(s string, fallback int) int {
	n := 0
	if s == "" {
		return fallback
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	return n
}
