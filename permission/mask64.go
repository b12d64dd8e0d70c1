package permission

// Mask64 is a 64-bit permission set. Bit positions come from the order of
// family.AllPermissions and never change at runtime.
type Mask64 uint64

// Has reports whether bit is set. Out-of-range bits are never set.
func (m Mask64) Has(bit int) bool {
	if bit < 0 || bit >= 64 {
		return false
	}
	return m&(1<<bit) != 0
}

// With returns m with bit set.
func (m Mask64) With(bit int) Mask64 {
	if bit < 0 || bit >= 64 {
		return m
	}
	return m | (1 << bit)
}

// Without returns m with bit cleared.
func (m Mask64) Without(bit int) Mask64 {
	if bit < 0 || bit >= 64 {
		return m
	}
	return m &^ (1 << bit)
}

func (m Mask64) Raw() uint64 {
	return uint64(m)
}
