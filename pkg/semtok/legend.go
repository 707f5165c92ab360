package semtok

// TypeName resolves a token type index against the legend. Returns "" when
// the index is out of range; the caller is expected to skip the record, a
// bad index from the server must never abort a decode.
func (l Legend) TypeName(idx int) string {
	if idx < 0 || idx >= len(l.Types) {
		return ""
	}
	return l.Types[idx]
}

// ModifierNames decodes a modifier bitmask into the names it selects, in
// legend order. Bit k selects Modifiers[k]. The loop runs until the mask is
// exhausted rather than to the width of the table: servers routinely encode
// fewer bits than the table has entries. Set bits past the end of the table
// are dropped.
func (l Legend) ModifierNames(mask uint32) []string {
	var names []string
	for bit := 0; mask != 0; bit++ {
		if mask&1 != 0 && bit < len(l.Modifiers) {
			names = append(names, l.Modifiers[bit])
		}
		mask >>= 1
	}
	return names
}
