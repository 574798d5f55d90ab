package orchestrator

import (
	"fmt"
	"strings"
)

// SanitizeFilePath scans generated code line by line and replaces the first
// line whose non-comment portion assigns file_path with an assignment of the
// actual resolved path, overriding whatever the model produced. All other
// lines pass through byte-identical; code with no such line is returned
// unmodified (execution may then fail downstream, which is treated as an
// execution error, not a sanitization error).
func SanitizeFilePath(code, filePath string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		codePart := line
		if idx := strings.Index(codePart, "#"); idx >= 0 {
			codePart = codePart[:idx]
		}
		codePart = strings.TrimSpace(codePart)
		if strings.Contains(codePart, "file_path") && strings.Contains(codePart, "=") {
			lines[i] = fmt.Sprintf("file_path = '%s'", filePath)
			break
		}
	}
	return strings.Join(lines, "\n")
}
