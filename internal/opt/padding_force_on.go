//go:build bakery_enable_padding

package opt

// PaddingMult_ scales registry slot padding.
// Padding is force-enabled via the bakery_enable_padding build tag.
// Use: go build -tags=bakery_enable_padding
const PaddingMult_ = 1
