//go:build cgo && netlib
// +build cgo,netlib

package utils

/*
#cgo CFLAGS: -march=native -mavx -mavx2
#cgo LDFLAGS: -lopenblas -llapacke -lgfortran -lm -lpthread
#include <cblas.h>
#include <lapacke.h>
*/
import "C"

import (
	"gonum.org/v1/gonum/blas/blas64"
	netblas "gonum.org/v1/netlib/blas/netlib"
)

// The least-squares factorizations go through gonum's lapack64, which calls
// blas64; with the netlib tag those calls land in OpenBLAS.
func init() {
	blas64.Use(netblas.Implementation{})
	BLASBackend = "netlib"
}
