//go:build (amd64 || 386 || arm || mips || mipsle || wasm) && !bakery_disable_padding && !bakery_enable_padding

package opt

// PaddingMult_ scales registry slot padding.
// Padding is disabled by default for:
// - amd64
// - 32-bit architectures (386, arm, mips, mipsle, wasm)
const PaddingMult_ = 0
