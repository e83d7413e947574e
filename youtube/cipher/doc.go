/*
Package cipher deciphers YouTube's obfuscated signature (`s`) and
n-parameter (`n`) query values against one player script generation.

# Architecture

Each transform has two tiers:

 1. AST-primary: the action-table object and transform function are located
    in the raw player script with structural regexes (grounded on the
    action-table/n-function patterns YouTube's player has used across
    revisions); the resolved operation chain is then compiled into a small
    JS function and executed through the JS Runtime Host's real goja
    parser/VM, for both the signature and the n-parameter.
 2. Regex/string-scan fallback: the transform function is run once through
    a throwaway otto VM. For the signature this is the whole function source
    matched by the same patterns the primary tier uses; for the n-parameter
    it is the same function body the primary tier extracted. The
    action-table object is not loaded into that VM.

Both DecipherSig and TransformN never return an error to the caller: an
unrecognized or stale player script degrades to returning the input
unchanged, matching the behaviour of a player that simply fails to apply a
transform it doesn't understand.

# Dependencies

  - github.com/dop251/goja (via internal/jsruntime): AST-primary JS engine
  - github.com/robertkrimen/otto: regex-fallback JS engine
*/
package cipher
