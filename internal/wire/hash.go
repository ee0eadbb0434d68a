package wire

// HashTopic computes the 16-bit reproducible topic hash. Both broker
// and client must compute this bit-for-bit identically; it is a wire
// contract, not an implementation detail.
func HashTopic(topic string) uint16 {
	var h uint16
	for i := 0; i < len(topic); i++ {
		h = h*31 + uint16(topic[i])
	}
	return h
}
