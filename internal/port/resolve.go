// resolve.go selects the host port that `run` publishes the container's
// bind port on. The selection is deterministic for a given host state:
// the same free ports always resolve to the same choice.
package port

import (
	"fmt"
)

// maxPort is the highest valid TCP/UDP port number (2^16 - 1).
const maxPort = 65535

// ResolveHostPort picks the host port to publish a container's bind port on.
//
// Selection order:
//  1. The preferred port itself, when it is free on the host and not in
//     the taken list. Preferring the bind port means the common case maps
//     1:1 (container 8001 → host 8001), so the URL a developer types is
//     the port the server actually bound.
//  2. Otherwise, the first free port scanning upward from preferred+1.
//
// The taken list holds host ports already claimed by other managed
// containers. It is a separate layer from the OS probe because a stopped
// container keeps its published port assignment in its labels while
// nothing is actually listening — the OS probe alone would hand that
// port out twice.
//
// Parameters:
//   - preferred: the port to try first (the container's bind port, or an
//     explicit --publish override)
//   - taken: host ports claimed by other managed containers
//
// Returns the selected port, or an error when preferred is out of range
// or every candidate up to 65535 is occupied.
func (s *Scanner) ResolveHostPort(preferred int, taken []int) (int, error) {
	return s.ResolveHostPortInRange(preferred, taken, preferred+1, maxPort)
}

// ResolveHostPortInRange behaves like ResolveHostPort but confines the
// fallback scan to [rangeMin, rangeMax]. The preferred port itself is
// still probed first even when it lies outside the range — the bind port
// always gets first shot at a 1:1 mapping; the range only governs where
// the search lands when that fails.
func (s *Scanner) ResolveHostPortInRange(preferred int, taken []int, rangeMin, rangeMax int) (int, error) {
	if preferred < 1 || preferred > maxPort {
		return 0, fmt.Errorf("preferred port %d out of range (1-%d)", preferred, maxPort)
	}

	takenSet := make(map[int]bool, len(taken))
	for _, p := range taken {
		takenSet[p] = true
	}

	if s.isFree(preferred, takenSet) {
		return preferred, nil
	}

	if rangeMin < 1 {
		rangeMin = 1
	}
	if rangeMax > maxPort {
		rangeMax = maxPort
	}

	// The preferred port is busy. Scan upward so the result stays
	// predictable; a bounded random pick would dodge collisions faster
	// but make reruns land on different ports.
	for candidate := rangeMin; candidate <= rangeMax; candidate++ {
		if candidate == preferred {
			continue
		}
		if s.isFree(candidate, takenSet) {
			return candidate, nil
		}
	}

	return 0, fmt.Errorf("port %d is in use and no free port found between %d and %d",
		preferred, rangeMin, rangeMax)
}

// isFree checks both layers: the port is not claimed by another managed
// container and the OS reports it unbound.
func (s *Scanner) isFree(port int, taken map[int]bool) bool {
	if taken[port] {
		return false
	}
	return s.IsPortAvailable(port, "tcp")
}
