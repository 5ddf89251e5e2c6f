package constants

import "fmt"

// Method names one extraction variant. The set is closed.
type Method string

const (
	MethodDocumentAI Method = "documentai"
	MethodVision     Method = "vision"
	MethodManagedOCR Method = "managed_ocr"
	MethodLocal      Method = "local"
)

// AllMethods lists every variant in priority order.
var AllMethods = []Method{MethodDocumentAI, MethodVision, MethodManagedOCR, MethodLocal}

// Priority orders methods for deterministic tie-breaks; lower wins.
func (m Method) Priority() int {
	for i, v := range AllMethods {
		if v == m {
			return i
		}
	}
	return len(AllMethods)
}

// ParseMethod validates a stored method name.
func ParseMethod(s string) (Method, error) {
	for _, m := range AllMethods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown extraction method %q", s)
}
