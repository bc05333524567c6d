package driver

import "github.com/holiman/uint256"

func bytesToUint256(b []byte) *uint256.Int {
	return new(uint256.Int).SetBytes(b)
}
