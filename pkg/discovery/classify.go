package discovery

import "strings"

// ClassifyRole assigns exactly one role to a pod or deployment given its
// name and labels. Rules apply in priority order, first match wins:
// explicit role label, then name substrings, then the unified-server
// default. Pure function; the vocabulary lives in rules.go.
func ClassifyRole(name string, labels map[string]string) Role {
	if value, ok := labels[RoleLabel]; ok {
		if role, ok := roleLabelValues[strings.ToLower(value)]; ok {
			return role
		}
	}

	lower := strings.ToLower(name)
	if strings.Contains(lower, "prefill") {
		return RolePrefill
	}
	if strings.Contains(lower, "decode") {
		return RoleDecode
	}
	for _, indicator := range eppIndicators {
		if strings.Contains(lower, indicator) {
			return RoleEPP
		}
	}

	// No rule matched; treat as a unified server.
	return RoleBoth
}

// IsServingCandidate reports whether a deployment name looks like an
// inference serving workload. Used only during deployment-based fallback
// discovery when a namespace has no role-labeled pods.
func IsServingCandidate(name, namespace string) bool {
	lower := strings.ToLower(name)
	for _, indicator := range servingIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	// Gateways are claimed only inside inference-looking namespaces
	if isInferenceNamespace(namespace) {
		for _, indicator := range gatewayIndicators {
			if strings.Contains(lower, indicator) {
				return true
			}
		}
	}
	return false
}

// FallbackRole decides epp vs gateway vs serving role for a candidate
// deployment discovered without role labels.
func FallbackRole(name, namespace string) Role {
	lower := strings.ToLower(name)
	for _, indicator := range eppIndicators {
		if strings.Contains(lower, indicator) {
			return RoleEPP
		}
	}
	if isInferenceNamespace(namespace) {
		for _, indicator := range gatewayIndicators {
			if strings.Contains(lower, indicator) {
				return RoleGateway
			}
		}
	}
	if strings.Contains(lower, "prefill") {
		return RolePrefill
	}
	if strings.Contains(lower, "decode") {
		return RoleDecode
	}
	return RoleBoth
}

func isInferenceNamespace(namespace string) bool {
	lower := strings.ToLower(namespace)
	for _, indicator := range inferenceNamespaceIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
