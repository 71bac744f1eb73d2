//go:build !(amd64 || 386 || arm || mips || mipsle || wasm) && !bakery_disable_padding && !bakery_enable_padding

package opt

// PaddingMult_ scales registry slot padding.
// Padding is automatically enabled for architectures that are NOT:
// - amd64 (x86_64): Hardware optimizations often make padding less critical
// - 32-bit architectures (386, arm, mips, mipsle, wasm): Smaller cache lines/memory constraints
//
// Enabled for: arm64, s390x, ppc64, ppc64le, riscv64, loong64, mips64, mips64le, etc.
const PaddingMult_ = 1
