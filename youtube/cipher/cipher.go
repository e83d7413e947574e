package cipher

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/robertkrimen/otto"

	"github.com/ytget/ytdlp/v2/internal/jsruntime"
)

// Decipherer loads one player script generation and exposes signature and
// n-parameter transforms against it. A Decipherer is reusable across every
// format of the same video (and across videos sharing a player_id), but is
// not safe to Load twice with a different script without discarding it.
type Decipherer struct {
	mu sync.Mutex

	playerID string
	raw      []byte

	sigOps    []actionOp
	sigOpsErr error

	nFuncName string
	nFuncBody string
	nFuncErr  error

	host *jsruntime.Host
}

// NewDecipherer creates a Decipherer bound to its own JS Runtime Host.
// Callers own the Decipherer's lifecycle and should call Close when done.
func NewDecipherer() *Decipherer {
	return &Decipherer{host: jsruntime.New(4)}
}

// Close releases the underlying JS runtime.
func (d *Decipherer) Close() error {
	return d.host.Close()
}

// Load parses playerJS once, resolving both the sig-transform action chain
// and the n-function body, caching the results for the lifetime of the
// Decipherer. A Load failure is not fatal: DecipherSig/TransformN degrade
// to identity on whichever tiers remain unavailable.
func (d *Decipherer) Load(playerID string, playerJS []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.playerID = playerID
	d.raw = playerJS

	d.sigOps, d.sigOpsErr = parseActions(playerJS)

	name, ok := findNFunctionName(playerJS)
	if !ok {
		d.nFuncErr = fmt.Errorf("cipher: n-function name not found")
		return
	}
	body, ok := extractFunctionBody(playerJS, name)
	if !ok {
		d.nFuncErr = fmt.Errorf("cipher: n-function body not found for %q", name)
		return
	}
	d.nFuncName = name
	d.nFuncBody = body
}

// PlayerID returns the player_id this Decipherer was last Load-ed with.
func (d *Decipherer) PlayerID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playerID
}

// DecipherSig transforms an obfuscated `s` parameter into the final
// signature. AST-primary tier compiles the action chain resolved at Load
// time into a small JS function and executes it through the JS Runtime
// Host (a real goja parse/execute, the same engine TransformN's primary
// tier uses); on any failure, falls back to otto executing the raw
// action-table function body directly. Never errors: an untransformable
// signature is returned unchanged, matching the upstream player's own
// tolerance for a stale or unrecognized player_id.
func (d *Decipherer) DecipherSig(ctx context.Context, sig string) string {
	d.mu.Lock()
	ops, opsErr := d.sigOps, d.sigOpsErr
	raw := d.raw
	d.mu.Unlock()

	if opsErr == nil && len(ops) > 0 {
		if out, err := d.astDecipherSig(ctx, ops, sig); err == nil {
			return out
		}
	}

	if out, ok := d.ottoDecipherSig(raw, sig); ok {
		return out
	}
	return sig
}

func (d *Decipherer) astDecipherSig(ctx context.Context, ops []actionOp, sig string) (string, error) {
	global := "__cipher_sig_" + sha1Hex(opsKey(ops))[:12]
	src := global + ` = function(a) { a = a.split(""); ` + opsToJS(ops) + ` return a.join(""); };`
	prog, err := jsruntime.Compile(global+".js", src, false)
	if err != nil {
		return "", err
	}
	if _, err := d.host.RunProgram(ctx, prog); err != nil {
		return "", err
	}
	return d.host.CallString(ctx, global, sig)
}

// opsToJS renders a resolved action chain as the literal JS statements the
// player's own sig-transform function would run, so astDecipherSig executes
// the same operations through goja rather than reimplementing them in Go.
func opsToJS(ops []actionOp) string {
	var b strings.Builder
	for _, op := range ops {
		switch op.kind {
		case "rev":
			b.WriteString("a.reverse(); ")
		case "spl":
			b.WriteString("a.splice(0, " + strconv.Itoa(op.arg) + "); ")
		case "swp":
			n := strconv.Itoa(op.arg)
			b.WriteString("var c = a[0]; a[0] = a[" + n + " % a.length]; a[" + n + " % a.length] = c; ")
		}
	}
	return b.String()
}

func opsKey(ops []actionOp) string {
	var b strings.Builder
	for _, op := range ops {
		b.WriteString(op.kind)
		b.WriteString(strconv.Itoa(op.arg))
	}
	return b.String()
}

// TransformN rewrites the `n` query parameter used for throttling bypass.
// AST-primary tier compiles the extracted n-function body through the JS
// Runtime Host (a real goja parse/execute, not a string scan); on failure,
// falls back to a one-shot otto evaluation of the same body. Never errors:
// an absent or unrecognized n-function leaves the value unchanged.
func (d *Decipherer) TransformN(ctx context.Context, n string) string {
	d.mu.Lock()
	name, body, bodyErr := d.nFuncName, d.nFuncBody, d.nFuncErr
	d.mu.Unlock()

	if bodyErr == nil && body != "" {
		if out, err := d.astTransformN(ctx, name, body, n); err == nil {
			return out
		}
	}
	if out, ok := ottoCallSingleArgFunction(body, n); ok {
		return out
	}
	return n
}

func (d *Decipherer) astTransformN(ctx context.Context, name, body, n string) (string, error) {
	global := "__cipher_n_" + sha1Hex(name+body)[:12]
	src := global + " = " + body + ";"
	prog, err := jsruntime.Compile(global+".js", src, false)
	if err != nil {
		return "", err
	}
	if _, err := d.host.RunProgram(ctx, prog); err != nil {
		return "", err
	}
	return d.host.CallString(ctx, global, n)
}

func (d *Decipherer) ottoDecipherSig(playerJS []byte, sig string) (string, bool) {
	body, ok := findActionsFuncBodyWrapped(playerJS)
	if !ok {
		return "", false
	}
	vm := otto.New()
	const fnName = "__cipher_sig"
	if _, err := vm.Run(fnName + "=" + body); err != nil {
		return "", false
	}
	value, err := vm.Call(fnName, nil, sig)
	if err != nil {
		return "", false
	}
	out, err := value.ToString()
	if err != nil {
		return "", false
	}
	return out, true
}

// findActionsFuncBodyWrapped returns the whole sig-transform function,
// including its `function(a){...}` wrapper, suitable for direct otto
// assignment.
func findActionsFuncBodyWrapped(playerJS []byte) (string, bool) {
	for _, re := range actionsFuncRegexps {
		if m := re.FindSubmatch(playerJS); len(m) > 0 {
			return string(m[0]), true
		}
	}
	return "", false
}

func ottoCallSingleArgFunction(body, arg string) (string, bool) {
	if body == "" {
		return "", false
	}
	vm := otto.New()
	global := "__cipher_fallback"
	if _, err := vm.Run(global + " = " + body); err != nil {
		return "", false
	}
	value, err := vm.Call(global, nil, arg)
	if err != nil {
		return "", false
	}
	out, err := value.ToString()
	if err != nil {
		return "", false
	}
	return out, true
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
