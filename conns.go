package hostcore

import "math/rand/v2"

// indexOfConn returns the index of c in s, or -1 if absent.
func indexOfConn[C comparable](s []C, c C) int {
	for i, v := range s {
		if v == c {
			return i
		}
	}
	return -1
}

// insertAtRandom returns a copy of s with c inserted at a uniformly random index,
// decorrelating selection order across hosts that all just gained a new connection.
func insertAtRandom[C comparable](s []C, c C) []C {
	idx := 0
	if len(s) > 0 {
		idx = rand.IntN(len(s) + 1)
	}
	out := make([]C, 0, len(s)+1)
	out = append(out, s[:idx]...)
	out = append(out, c)
	out = append(out, s[idx:]...)
	return out
}

// removeAtIndex returns a copy of s with the element at idx removed, preserving the
// relative order of the rest.
func removeAtIndex[C comparable](s []C, idx int) []C {
	out := make([]C, 0, len(s)-1)
	out = append(out, s[:idx]...)
	out = append(out, s[idx+1:]...)
	return out
}
