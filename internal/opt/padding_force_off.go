//go:build bakery_disable_padding

package opt

// PaddingMult_ scales registry slot padding.
// Padding is force-disabled via the bakery_disable_padding build tag.
// Use: go build -tags=bakery_disable_padding
const PaddingMult_ = 0
