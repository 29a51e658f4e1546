package testutil

import "github.com/roach88/s01l/internal/ir"

// Well-known principals for tests and scenarios.
var (
	Registry = ir.MustAddress("0x5011")
	Deployer = ir.MustAddress("0xD0")
	AAA      = ir.MustAddress("0xAAA")
	BBB      = ir.MustAddress("0xBBB")
	CCC      = ir.MustAddress("0xCCC")
)

// Hash returns a hash whose last byte is b, for hand-built blocks.
func Hash(b byte) ir.Hash {
	var h ir.Hash
	h[ir.HashLength-1] = b
	return h
}
