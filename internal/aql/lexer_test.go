package aql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lex(t *testing.T, src string) []Token {
	t.Helper()
	tokens, err := newLexer(src).tokenize()
	require.NoError(t, err)
	return tokens
}

func kinds(tokens []Token) []Kind {
	out := make([]Kind, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok.Kind)
	}
	return out
}

func TestTokenize_SimpleQuery(t *testing.T) {
	tokens := lex(t, `FOR doc IN users RETURN doc`)

	assert.Equal(t, []Kind{TokFor, TokIdent, TokIn, TokIdent, TokReturn, TokIdent, TokEOF}, kinds(tokens))
	assert.Equal(t, "doc", tokens[1].Text)
	assert.Equal(t, "users", tokens[3].Text)
}

func TestTokenize_KeywordsAreCaseInsensitive(t *testing.T) {
	tokens := lex(t, `for doc In users return doc`)

	assert.Equal(t, []Kind{TokFor, TokIdent, TokIn, TokIdent, TokReturn, TokIdent, TokEOF}, kinds(tokens))
}

func TestTokenize_Operators(t *testing.T) {
	tokens := lex(t, `== != <= >= < > + - * / %`)

	assert.Equal(t, []Kind{
		TokEq, TokNe, TokLe, TokGe, TokLt, TokGt,
		TokPlus, TokMinus, TokStar, TokSlash, TokPercent,
		TokEOF,
	}, kinds(tokens))
}

func TestTokenize_TripleEqualsRejected(t *testing.T) {
	_, err := newLexer(`doc.age === 21`).tokenize()

	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid operator "==="`)
}

func TestTokenize_DepthRange(t *testing.T) {
	// "1..2" must lex as number, dotdot, number - not as two floats.
	tokens := lex(t, `1..2`)

	require.Equal(t, []Kind{TokNumber, TokDotDot, TokNumber, TokEOF}, kinds(tokens))
	assert.Equal(t, "1", tokens[0].Text)
	assert.Equal(t, "2", tokens[2].Text)
}

func TestTokenize_FloatVersusFieldAccess(t *testing.T) {
	tokens := lex(t, `3.14 doc.age`)

	require.Equal(t, []Kind{TokNumber, TokIdent, TokDot, TokIdent, TokEOF}, kinds(tokens))
	assert.Equal(t, "3.14", tokens[0].Text)
}

func TestTokenize_Strings(t *testing.T) {
	tokens := lex(t, `'single' "double" "with \"escape\" and \n newline"`)

	require.Equal(t, []Kind{TokString, TokString, TokString, TokEOF}, kinds(tokens))
	assert.Equal(t, "single", tokens[0].Text)
	assert.Equal(t, "double", tokens[1].Text)
	assert.Equal(t, "with \"escape\" and \n newline", tokens[2].Text)
}

func TestTokenize_UnterminatedString(t *testing.T) {
	_, err := newLexer(`RETURN 'oops`).tokenize()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unterminated string")
}

func TestTokenize_LineComments(t *testing.T) {
	tokens := lex(t, "FOR doc IN users // trailing comment\nRETURN doc")

	assert.Equal(t, []Kind{TokFor, TokIdent, TokIn, TokIdent, TokReturn, TokIdent, TokEOF}, kinds(tokens))
}

func TestTokenize_Positions(t *testing.T) {
	tokens := lex(t, "FOR doc IN users\nRETURN doc")

	assert.Equal(t, 1, tokens[0].Line)
	assert.Equal(t, 1, tokens[0].Column)
	assert.Equal(t, 1, tokens[1].Line)
	assert.Equal(t, 5, tokens[1].Column)
	// RETURN starts the second line.
	assert.Equal(t, 2, tokens[4].Line)
	assert.Equal(t, 1, tokens[4].Column)
}
