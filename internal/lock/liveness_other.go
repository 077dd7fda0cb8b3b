//go:build !unix

package lock

func processAlive(int) Liveness {
	return LivenessUnknown
}
