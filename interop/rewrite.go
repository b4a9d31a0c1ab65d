package interop

import (
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// token is one lexed token with its raw text.
type token struct {
	tt   js.TokenType
	data []byte
}

// lex tokenizes src completely. It returns nil on a lexer error; callers fall
// back to the untouched source and let the parser report the failure.
func lex(src string) []token {
	l := js.NewLexer(parse.NewInputString(src))
	var tokens []token
	for {
		tt, data := l.Next()
		if tt == js.ErrorToken {
			if l.Err() == io.EOF {
				return tokens
			}
			return nil
		}
		tokens = append(tokens, token{tt, data})
	}
}

func isTrivia(tt js.TokenType) bool {
	switch tt {
	case js.WhitespaceToken, js.LineTerminatorToken, js.CommentToken, js.CommentLineTerminatorToken:
		return true
	}
	return false
}

// nextSignificant returns the index of the first non-trivia token at or after
// i, or -1.
func nextSignificant(tokens []token, i int) int {
	for ; i < len(tokens); i++ {
		if !isTrivia(tokens[i].tt) {
			return i
		}
	}
	return -1
}

// RewriteImportExpressions replaces the host-native import operator with the
// injected execution-unit surface: import.meta becomes the importMeta
// parameter and dynamic import(...) calls go through the dynamicImport
// parameter. Working on the token stream keeps string literals, comments and
// regular expressions intact.
func RewriteImportExpressions(src string) string {
	if !strings.Contains(src, "import") {
		return src
	}
	tokens := lex(src)
	if tokens == nil {
		return src
	}

	var sb strings.Builder
	sb.Grow(len(src))
	prevSig := js.ErrorToken
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		// Member access like a.import must not be rewritten.
		if t.tt == js.ImportToken && prevSig != js.DotToken {
			if j := nextSignificant(tokens, i+1); j >= 0 {
				switch tokens[j].tt {
				case js.OpenParenToken:
					sb.WriteString("dynamicImport")
					prevSig = js.IdentifierToken
					continue
				case js.DotToken:
					if k := nextSignificant(tokens, j+1); k >= 0 && string(tokens[k].data) == "meta" {
						sb.WriteString("importMeta")
						prevSig = js.IdentifierToken
						i = k
						continue
					}
				}
			}
		}
		sb.Write(t.data)
		if !isTrivia(t.tt) {
			prevSig = t.tt
		}
	}
	return sb.String()
}

// DetectModule reports whether src uses import or export declarations and
// therefore needs the interop transform even when its extension alone does
// not mark it as an ECMAScript module.
func DetectModule(src string) bool {
	if !strings.Contains(src, "import") && !strings.Contains(src, "export") {
		return false
	}
	tokens := lex(src)
	prevSig := js.ErrorToken
	for i, t := range tokens {
		switch t.tt {
		case js.ExportToken:
			return true
		case js.ImportToken:
			if prevSig == js.DotToken {
				break
			}
			j := nextSignificant(tokens, i+1)
			// import( and import.meta are expressions, not declarations.
			if j >= 0 && tokens[j].tt != js.OpenParenToken && tokens[j].tt != js.DotToken {
				return true
			}
		}
		if !isTrivia(t.tt) {
			prevSig = t.tt
		}
	}
	return false
}
