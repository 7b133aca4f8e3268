package script

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// ScriptLexer tokenizes debug scripts. Commands may be separated by
// newlines or semicolons; # starts a comment.
var ScriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
	{Name: "Newline", Pattern: `\n`},

	// Durations come before numbers so "10ms" is not split.
	{Name: "Duration", Pattern: `[0-9]+(\.[0-9]+)?(ns|us|ms|s|m)\b`},
	{Name: "Number", Pattern: `0[xX][0-9a-fA-F_]+|0[bB][01_]+|[0-9]+`},

	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_.]*`},
	{Name: "Semicolon", Pattern: `;`},
})
