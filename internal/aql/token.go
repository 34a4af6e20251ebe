package aql

import "fmt"

// Kind identifies a lexical token class.
type Kind int

const (
	TokEOF Kind = iota
	TokIdent
	TokNumber
	TokString

	// Keywords
	TokFor
	TokIn
	TokFilter
	TokSort
	TokLimit
	TokReturn
	TokLet
	TokCollect
	TokAggregate
	TokWith
	TokAs
	TokDistinct
	TokAsc
	TokDesc
	TokAnd
	TokOr
	TokXor
	TokNot
	TokTrue
	TokFalse
	TokNull
	TokGraph
	TokOutbound
	TokInbound
	TokAny

	// Operators
	TokEq     // ==
	TokNe     // !=
	TokLt     // <
	TokLe     // <=
	TokGt     // >
	TokGe     // >=
	TokAssign // =
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokPercent

	// Punctuation
	TokDot
	TokDotDot
	TokComma
	TokColon
	TokLParen
	TokRParen
	TokLBracket
	TokRBracket
	TokLBrace
	TokRBrace
)

var kindNames = map[Kind]string{
	TokEOF:      "end of input",
	TokIdent:    "identifier",
	TokNumber:   "number",
	TokString:   "string",
	TokFor:      "FOR",
	TokIn:       "IN",
	TokFilter:   "FILTER",
	TokSort:     "SORT",
	TokLimit:    "LIMIT",
	TokReturn:   "RETURN",
	TokLet:      "LET",
	TokCollect:  "COLLECT",
	TokAggregate: "AGGREGATE",
	TokWith:     "WITH",
	TokAs:       "AS",
	TokDistinct: "DISTINCT",
	TokAsc:      "ASC",
	TokDesc:     "DESC",
	TokAnd:      "AND",
	TokOr:       "OR",
	TokXor:      "XOR",
	TokNot:      "NOT",
	TokTrue:     "TRUE",
	TokFalse:    "FALSE",
	TokNull:     "NULL",
	TokGraph:    "GRAPH",
	TokOutbound: "OUTBOUND",
	TokInbound:  "INBOUND",
	TokAny:      "ANY",
	TokEq:       "==",
	TokNe:       "!=",
	TokLt:       "<",
	TokLe:       "<=",
	TokGt:       ">",
	TokGe:       ">=",
	TokAssign:   "=",
	TokPlus:     "+",
	TokMinus:    "-",
	TokStar:     "*",
	TokSlash:    "/",
	TokPercent:  "%",
	TokDot:      ".",
	TokDotDot:   "..",
	TokComma:    ",",
	TokColon:    ":",
	TokLParen:   "(",
	TokRParen:   ")",
	TokLBracket: "[",
	TokRBracket: "]",
	TokLBrace:   "{",
	TokRBrace:   "}",
}

// String returns a human-readable name for the token kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// keywords maps the upper-cased spelling of every reserved word to its kind.
// Keyword matching is case-insensitive; identifiers keep their original case.
var keywords = map[string]Kind{
	"FOR":       TokFor,
	"IN":        TokIn,
	"FILTER":    TokFilter,
	"SORT":      TokSort,
	"LIMIT":     TokLimit,
	"RETURN":    TokReturn,
	"LET":       TokLet,
	"COLLECT":   TokCollect,
	"AGGREGATE": TokAggregate,
	"WITH":      TokWith,
	"AS":        TokAs,
	"DISTINCT":  TokDistinct,
	"ASC":       TokAsc,
	"DESC":      TokDesc,
	"AND":       TokAnd,
	"OR":        TokOr,
	"XOR":       TokXor,
	"NOT":       TokNot,
	"TRUE":      TokTrue,
	"FALSE":     TokFalse,
	"NULL":      TokNull,
	"GRAPH":     TokGraph,
	"OUTBOUND":  TokOutbound,
	"INBOUND":   TokInbound,
	"ANY":       TokAny,
}

// Token is one lexical unit of a query string.
type Token struct {
	Kind   Kind
	Text   string // raw lexeme (string tokens hold the unquoted value)
	Line   int    // 1-based
	Column int    // 1-based
}

func (t Token) String() string {
	switch t.Kind {
	case TokIdent, TokNumber, TokString:
		return fmt.Sprintf("%s %q", t.Kind, t.Text)
	default:
		return t.Kind.String()
	}
}
