package llm

import (
	"fmt"
	"strings"
)

// summaryMaxTokens caps the one-sentence file summary.
const summaryMaxTokens = 60

// CodeGenSystem is the system prompt for the code-generation collaborator.
// The model is asked for bare executable Python, results via print(), and the
// provided file path verbatim; the sanitizer still enforces the path
// afterwards because this boundary is untrusted.
const CodeGenSystem = `You write Python code that analyzes Excel files with pandas.

Core rules:
- Output executable Python code only. No explanations, no Markdown fences.
- Print every final result with print().
- The metadata provides the real file path (file_path). Assign it and use it
  directly; never use placeholders like 'your_file_path.xlsx'.
- When the file has multiple sheets, iterate over every relevant sheet.

Code requirements:
- import pandas as pd, and set pd.set_option('display.max_columns', None)
  and pd.set_option('display.max_rows', None) so output is never truncated.
- import warnings and call warnings.simplefilter(action='ignore', category=Warning).
- Keep original column names byte-for-byte, including underscores and
  repeated spaces.
- Avoid non-ASCII identifiers.
- Wrap the analysis in try/except so one bad cell does not abort the run.
- Convert columns with pd.to_numeric(series, errors='coerce') before any
  numeric computation.
- Do not use the deprecated method= parameter of DataFrame.fillna().`

// SummaryRequest builds the completion request that produces the one-sentence
// description of a spreadsheet file, used as the embedding text.
func SummaryRequest(fileName string, sheetNames []string, columns map[string][]string) CompletionRequest {
	var cols strings.Builder
	for _, sheet := range sheetNames {
		fmt.Fprintf(&cols, "  %s: %s\n", sheet, strings.Join(columns[sheet], ", "))
	}
	user := fmt.Sprintf(`You are describing an Excel file. Summarize its likely contents and purpose in one short English sentence.

File name: %s
Sheets: %s
Columns:
%s`, fileName, strings.Join(sheetNames, ", "), cols.String())
	return CompletionRequest{User: user, MaxTokens: summaryMaxTokens}
}

// CodeGenRequest builds the completion request for analysis-code generation
// from the chosen file's description and the user's question.
func CodeGenRequest(description, question, filePath string) CompletionRequest {
	user := fmt.Sprintf(`Excel metadata:
%s

User question: %s

IMPORTANT: Use the file path '%s' directly in your code. Do NOT use placeholders like 'your_file_path.xlsx' or any other generic names.`, description, question, filePath)
	return CompletionRequest{System: CodeGenSystem, User: user}
}
