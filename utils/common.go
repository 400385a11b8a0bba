package utils

const (
	NODETOL = 1.e-12
	// RANKTOL is the relative size below which a pivot of a triangular
	// factor is treated as zero.
	RANKTOL = 1.e-10
)
