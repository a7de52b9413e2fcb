/*
Package template fills ${...} placeholders in node configuration from the
values flowing through a run.

# Paths

A placeholder names a dotted path into the variables map:

	vars := map[string]any{"input": map[string]any{"user": map[string]any{"email": "a@b.c"}}}
	template.Expand("mail ${input.user.email}", vars) // "mail a@b.c"

If a string consists of a single placeholder, the value is substituted
as-is rather than formatted, so maps and numbers survive:

	template.ExpandValue("${input.user}", vars) // map[string]any{"email": "a@b.c"}

# Missing Variables

Missing paths are kept verbatim by default. Use WithMissingAction to blank
them or to fail with *UndefinedVariableError.
*/
package template
