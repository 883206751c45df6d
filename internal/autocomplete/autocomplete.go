package autocomplete

import (
	"regexp"
	"strings"
)

type Request struct {
	Code           string `json:"code"`
	CursorPosition int    `json:"cursorPosition"`
	Language       string `json:"language"`
}

type Response struct {
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence"`
}

var printCallPattern = regexp.MustCompile(`print\($`)

// Suggest returns a rule-based completion for the text before the cursor.
// It stands in for a real AI backend and is a pure function of its input.
func Suggest(req Request) Response {
	before := req.Code
	if req.CursorPosition >= 0 && req.CursorPosition <= len(req.Code) {
		before = req.Code[:req.CursorPosition]
	}

	switch req.Language {
	case "", "python":
		switch {
		case strings.HasSuffix(before, "def "):
			return Response{Suggestion: "function_name(param1, param2):", Confidence: 0.85}
		case strings.HasSuffix(before, "class "):
			return Response{Suggestion: "ClassName:", Confidence: 0.85}
		case strings.HasSuffix(before, "import "):
			return Response{Suggestion: "numpy as np", Confidence: 0.75}
		case strings.HasSuffix(before, "for "):
			return Response{Suggestion: "i in range(10):", Confidence: 0.80}
		case strings.HasSuffix(before, "if "):
			return Response{Suggestion: "condition:", Confidence: 0.80}
		case printCallPattern.MatchString(before):
			return Response{Suggestion: `"Hello, World!")`, Confidence: 0.70}
		}

	case "javascript":
		switch {
		case strings.HasSuffix(before, "function "):
			return Response{Suggestion: "functionName() {", Confidence: 0.85}
		case strings.HasSuffix(before, "const "):
			return Response{Suggestion: "variable = ", Confidence: 0.80}
		}
	}

	return Response{Suggestion: "", Confidence: 0.0}
}
