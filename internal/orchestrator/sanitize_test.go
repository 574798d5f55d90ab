package orchestrator

import (
	"strings"
	"testing"
)

func TestSanitizeFilePath_ReplacesFirstAssignment(t *testing.T) {
	code := strings.Join([]string{
		"import pandas as pd",
		"file_path = '/tmp/model-guess.xlsx'",
		"df = pd.read_excel(file_path)",
		"print(df.head())",
	}, "\n")

	got := SanitizeFilePath(code, "/data/sales.xlsx")
	lines := strings.Split(got, "\n")
	if lines[1] != "file_path = '/data/sales.xlsx'" {
		t.Errorf("assignment line = %q", lines[1])
	}
	if lines[0] != "import pandas as pd" || lines[2] != "df = pd.read_excel(file_path)" {
		t.Errorf("other lines changed: %q", got)
	}
}

func TestSanitizeFilePath_OnlyFirstMatch(t *testing.T) {
	code := "file_path = 'a'\nfile_path = 'b'"
	got := SanitizeFilePath(code, "/real.xlsx")
	want := "file_path = '/real.xlsx'\nfile_path = 'b'"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitizeFilePath_IgnoresCommentedAssignment(t *testing.T) {
	code := strings.Join([]string{
		"# file_path = 'old'",
		"file_path = 'guess'",
	}, "\n")
	got := SanitizeFilePath(code, "/real.xlsx")
	lines := strings.Split(got, "\n")
	if lines[0] != "# file_path = 'old'" {
		t.Errorf("comment line changed: %q", lines[0])
	}
	if lines[1] != "file_path = '/real.xlsx'" {
		t.Errorf("assignment line = %q", lines[1])
	}
}

func TestSanitizeFilePath_InlineCommentStripped(t *testing.T) {
	// The '=' lives only in the comment, so this line must not match.
	code := "print(df) # file_path = note\nfile_path='x'"
	got := SanitizeFilePath(code, "/real.xlsx")
	lines := strings.Split(got, "\n")
	if lines[0] != "print(df) # file_path = note" {
		t.Errorf("non-assignment line changed: %q", lines[0])
	}
	if lines[1] != "file_path = '/real.xlsx'" {
		t.Errorf("assignment line = %q", lines[1])
	}
}

func TestSanitizeFilePath_NoMatchPassthrough(t *testing.T) {
	code := "import pandas as pd\ndf = pd.read_excel('/hardcoded.xlsx')\nprint(df)"
	if got := SanitizeFilePath(code, "/real.xlsx"); got != code {
		t.Errorf("code without assignment modified: %q", got)
	}
}
