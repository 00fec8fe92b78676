package appcontext

import "strings"

// Environment identifies the deployment environment, derived once from host
// URL signals at bootstrap and never recomputed.
type Environment int

const (
	EnvDev Environment = iota
	EnvUAT
	EnvProd
)

// String returns the string representation of an environment
func (e Environment) String() string {
	switch e {
	case EnvDev:
		return "dev"
	case EnvUAT:
		return "uat"
	case EnvProd:
		return "prod"
	default:
		return "unknown"
	}
}

// DetectEnvironment derives the environment from host URL heuristics.
// Detection failures fall open to prod, the most conservative logging
// posture, rather than failing bootstrap.
func DetectEnvironment(hostURL string) Environment {
	url := strings.ToLower(strings.TrimSpace(hostURL))
	if url == "" {
		return EnvProd
	}

	devMarkers := []string{"localhost", "127.0.0.1", "-dev", "dev.", "/dev", ".local"}
	for _, marker := range devMarkers {
		if strings.Contains(url, marker) {
			return EnvDev
		}
	}

	uatMarkers := []string{"-uat", "uat.", "/uat", "-test", "test.", "staging", "-qa", "qa."}
	for _, marker := range uatMarkers {
		if strings.Contains(url, marker) {
			return EnvUAT
		}
	}

	return EnvProd
}
