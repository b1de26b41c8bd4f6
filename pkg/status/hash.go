package status

// Hash returns the djb2 hash of the descriptor's icon name, class and
// tooltip concatenated in that order. It only identifies the last matched
// binding; it is not a content fingerprint.
func Hash(d Descriptor) uint32 {
	return djb2(d.IconName + d.IconClass + d.Tooltip)
}

// djb2 is Bernstein's string hash (h*33 + c, seeded with 5381), wrapping at
// 32 bits.
func djb2(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = h<<5 + h + uint32(s[i])
	}
	return h
}
