// Package chroma converts 4:2:0 chroma between the planar layout (Cb block
// then Cr block) and the interleaved layout (CbCrCbCr…) used by the hardware
// codec.
package chroma

import "fmt"

// Interleave writes planar (Cb[0..n/2) followed by Cr[0..n/2)) into dst as
// Cb[0],Cr[0],Cb[1],Cr[1],… . dst and planar must have the same even length
// and must not overlap.
func Interleave(dst, planar []byte) error {
	if err := check(dst, planar); err != nil {
		return err
	}
	half := len(planar) / 2
	cb, cr := planar[:half], planar[half:]
	for i := 0; i < half; i++ {
		dst[2*i] = cb[i]
		dst[2*i+1] = cr[i]
	}
	return nil
}

// Deinterleave is the inverse of Interleave.
func Deinterleave(dst, interleaved []byte) error {
	if err := check(dst, interleaved); err != nil {
		return err
	}
	half := len(interleaved) / 2
	for i := 0; i < half; i++ {
		dst[i] = interleaved[2*i]
		dst[half+i] = interleaved[2*i+1]
	}
	return nil
}

func check(dst, src []byte) error {
	if len(src)%2 != 0 {
		return fmt.Errorf("chroma: plane size %d is odd", len(src))
	}
	if len(dst) != len(src) {
		return fmt.Errorf("chroma: destination size %d, want %d", len(dst), len(src))
	}
	return nil
}
