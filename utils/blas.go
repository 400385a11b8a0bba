package utils

// BLASBackend names the BLAS implementation behind gonum for this build.
var BLASBackend = "gonum"
