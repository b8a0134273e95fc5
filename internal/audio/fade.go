package audio

// ApplyFade ramps the first n samples of every channel linearly up from
// silence (gain j/n) and the last n samples down towards it (gain 1 - j/n).
// Channels shorter than n are silenced entirely. n <= 0 leaves data untouched.
func ApplyFade(data [][]float64, n int) {
	if n <= 0 {
		return
	}
	for _, ch := range data {
		if len(ch) < n {
			clear(ch)
			continue
		}
		tail := len(ch) - n
		for j := 0; j < n; j++ {
			gain := float64(j) / float64(n)
			ch[j] *= gain
			ch[tail+j] *= 1 - gain
		}
	}
}
