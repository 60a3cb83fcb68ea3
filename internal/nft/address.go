package nft

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ValidAddress reports whether s looks like a base58 account address.
func ValidAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isBase58(s[i]) {
			return false
		}
	}
	return true
}

func isBase58(b byte) bool {
	for i := 0; i < len(base58Alphabet); i++ {
		if base58Alphabet[i] == b {
			return true
		}
	}
	return false
}
