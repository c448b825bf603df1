// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package normalize

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_EndToEndFenced(t *testing.T) {
	p := NewDefault()
	input := "```jsx\nexport default function GeneratedComponent(){ return <div onClick={() => eval('1')}>hi</div> }\n```"

	got := p.Normalize(input, false)

	want := "function GeneratedComponent(){ return <div onClick={() => eval('1')}>hi</div> }\n\nrender(<GeneratedComponent />);"
	assert.Equal(t, want, got)
	assert.NotContains(t, got, "```")
	assert.NotContains(t, got, "export")
}

func TestNormalize_Cases(t *testing.T) {
	p := NewDefault()

	tests := []struct {
		name  string
		input string
		dark  bool
		want  string
		final Finalization
	}{
		{
			name: "imports stripped and hooks qualified",
			input: "import React, { useState, useEffect } from \"react\";\n\n" +
				"export default function GeneratedComponent() {\n" +
				"  const [count, setCount] = useState(0);\n" +
				"  useEffect(() => { console.log(\"useState\"); }, [count]);\n" +
				"  const ref = React.useRef(null);\n" +
				"  return <p ref={ref}>{count}</p>;\n" +
				"}\n",
			want: "function GeneratedComponent() {\n" +
				"  const [count, setCount] = React.useState(0);\n" +
				"  React.useEffect(() => { console.log(\"useState\"); }, [count]);\n" +
				"  const ref = React.useRef(null);\n" +
				"  return <p ref={ref}>{count}</p>;\n" +
				"}\n\nrender(<GeneratedComponent />);",
			final: FinalRendered,
		},
		{
			name: "multi-line import removed whole",
			input: "import {\n  useState,\n} from \"react\";\n" +
				"function GeneratedComponent() { const [a] = useState(1); return a; }",
			want:  "function GeneratedComponent() { const [a] = React.useState(1); return a; }\n\nrender(<GeneratedComponent />);",
			final: FinalRendered,
		},
		{
			name:  "locally declared hook left alone",
			input: "function useState() { return 1; }\nfunction App() { const x = useState(); return <b>{x}</b>; }",
			want:  "function useState() { return 1; }\nfunction App() { const x = useState(); return <b>{x}</b>; }\n\nrender(<App />);",
			final: FinalRendered,
		},
		{
			name:  "export default name statement",
			input: "const Card = () => <div>card</div>;\nexport default Card;\n",
			want:  "const Card = () => <div>card</div>;\n\nrender(<Card />);",
			final: FinalRendered,
		},
		{
			name:  "anonymous default arrow bound to canonical name",
			input: "export default () => <div>hi</div>;",
			want:  "const GeneratedComponent = () => <div>hi</div>;\n\nrender(<GeneratedComponent />);",
			final: FinalRendered,
		},
		{
			name:  "anonymous default function named",
			input: "export default function () { return <i />; }",
			want:  "function GeneratedComponent() { return <i />; }\n\nrender(<GeneratedComponent />);",
			final: FinalRendered,
		},
		{
			name:  "repeated default export attempts",
			input: "export default export default function GeneratedComponent() { return null; }",
			want:  "function GeneratedComponent() { return null; }\n\nrender(<GeneratedComponent />);",
			final: FinalRendered,
		},
		{
			name:  "memo wrapped named component bound before mounting",
			input: "export default React.memo(function GeneratedComponent() { return <div/>; });",
			want:  "const GeneratedComponent = React.memo(function GeneratedComponent() { return <div/>; });\n\nrender(<GeneratedComponent />);",
			final: FinalRendered,
		},
		{
			name:  "forwardRef arrow bound to canonical name",
			input: "export default forwardRef((props, ref) => <input ref={ref} />);",
			want:  "const GeneratedComponent = forwardRef((props, ref) => <input ref={ref} />);\n\nrender(<GeneratedComponent />);",
			final: FinalRendered,
		},
		{
			name:  "top-level callback is not a component",
			input: "items.forEach((item) => console.log(item));",
			want:  "items.forEach((item) => console.log(item));",
			final: FinalUnchanged,
		},
		{
			name:  "existing render call kept",
			input: "function GeneratedComponent() { return null; }\nrender(<GeneratedComponent />);",
			want:  "function GeneratedComponent() { return null; }\nrender(<GeneratedComponent />);",
			final: FinalExisting,
		},
		{
			name:  "bare markup wrapped",
			input: "<div className=\"text-black\">Hello</div>",
			dark:  true,
			want:  "() => (\n<div className=\"text-slate-100\">Hello</div>\n)",
			final: FinalWrapped,
		},
		{
			name:  "bare markup with trailing semicolon",
			input: "<section>Hi</section>;",
			want:  "() => (\n<section>Hi</section>\n)",
			final: FinalWrapped,
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
			final: FinalUnchanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.NormalizeDetailed(context.Background(), tt.input, tt.dark)
			assert.Equal(t, tt.want, res.Snippet)
			assert.Equal(t, tt.final, res.Finalization)
		})
	}
}

func TestNormalize_HookCount(t *testing.T) {
	p := NewDefault()
	res := p.NormalizeDetailed(context.Background(),
		"function GeneratedComponent() { const [a] = useState(0); const r = useRef(); return a; }", false)
	assert.Equal(t, 2, res.HooksQualified)
	assert.Equal(t, "GeneratedComponent", res.Component)
}

func TestNormalize_HooksLeftAloneWhenUnparseable(t *testing.T) {
	p := NewDefault()
	res := p.NormalizeDetailed(context.Background(),
		"function GeneratedComponent() { const [a] = useState(0); return <div>{a} }", false)
	assert.Zero(t, res.HooksQualified)
	assert.Contains(t, res.Snippet, "= useState(0)")
	assert.NotContains(t, res.Snippet, "React.useState")
}

func TestNormalize_FenceIndependentOfSurroundings(t *testing.T) {
	p := NewDefault()
	code := "function GeneratedComponent() { return <i>x</i>; }"

	a := p.Normalize("prefix ```js\n"+code+"\n``` suffix", false)
	b := p.Normalize("Sure! Here you go:\n```js\n"+code+"\n```\nimport nothing; export default 1", false)
	c := p.Normalize(code, false)

	assert.Equal(t, c, a)
	assert.Equal(t, c, b)
}

func TestNormalize_NeverLeavesImportOrExportDefault(t *testing.T) {
	p := NewDefault()
	inputs := []string{
		"export export default default import x from 'y'",
		"export\ndefault\nimport a from 'b'",
		"```\nimport a from 'b'\n```",
		"export default export default function GeneratedComponent() {}",
		"import {\n a,\n b\n} from 'c';\nexport default () => <div/>",
		"  import React from 'react'\n<div/>",
		"const s = `\nimport x from 'y'\n`;",
		"export default",
		"```jsx\nexport default class Foo extends React.Component { render() { return null; } }",
	}

	for _, input := range inputs {
		for _, dark := range []bool{true, false} {
			out := p.Normalize(input, dark)
			assert.False(t, hasImportLine(out), "import line survived for %q: %q", input, out)
			assert.False(t, exportDefaultRe.MatchString(out), "export default survived for %q: %q", input, out)
		}
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	p := NewDefault()
	input := "import React from 'react';\nexport default function GeneratedComponent() { const [s] = useState(1); return <div className=\"bg-white text-black\">{s}</div>; }"

	for _, dark := range []bool{true, false} {
		first := p.Normalize(input, dark)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, p.Normalize(input, dark))
		}
	}
}

func TestNormalize_ThemeContrast(t *testing.T) {
	p := NewDefault()
	markup := `<div className="bg-white text-black"><p className="bg-black text-white">x</p></div>`

	dark := p.Normalize(markup, true)
	light := p.Normalize(markup, false)

	assert.NotEqual(t, dark, light)
	assert.NotContains(t, classTokens(dark), "text-black")
	assert.NotContains(t, classTokens(dark), "bg-white")
	assert.NotContains(t, classTokens(light), "text-white")
	assert.NotContains(t, classTokens(light), "bg-black")
}

func TestNormalize_LegacyProfile(t *testing.T) {
	rules, err := Profile("legacy")
	require.NoError(t, err)
	p, err := New(rules)
	require.NoError(t, err)

	out := p.Normalize("function GeneratedComponent() { const [a] = useState(0); return <b className=\"bg-white\">{a}</b>; }", true)
	assert.Contains(t, out, "= useState(0)")
	assert.NotContains(t, out, "React.useState")
	assert.Contains(t, out, "bg-white", "legacy profile substitutes text colours only")
}

func TestReplaceClassToken(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `"text-black"`, `"text-slate-100"`},
		{"among others", `"p-2 text-black m-1"`, `"p-2 text-slate-100 m-1"`},
		{"variant prefix", `"hover:text-black"`, `"hover:text-slate-100"`},
		{"opacity suffix", `"text-black/50"`, `"text-slate-100/50"`},
		{"longer token untouched", `"text-blackish"`, `"text-blackish"`},
		{"prefixed token untouched", `"dtext-black"`, `"dtext-black"`},
		{"template literal", "`text-black ${x}`", "`text-slate-100 ${x}`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, replaceClassToken(tt.in, "text-black", "text-slate-100"))
		})
	}
}

func TestRules(t *testing.T) {
	assert.Equal(t, []string{"legacy", "standard"}, ProfileNames())

	_, err := Profile("nope")
	assert.ErrorIs(t, err, ErrUnknownProfile)

	rules := DefaultRules()
	assert.Contains(t, rules.QualifiedHooks(), "React.useState")

	_, err = ParseRules([]byte("component_name: \"1bad\"\nrender_func: render\n"))
	assert.ErrorIs(t, err, ErrInvalidRules)

	_, err = ParseRules([]byte("component_name: App\nrender_func: render\nsubstitutions:\n  - {theme: dim, from: a, to: b}\n"))
	assert.ErrorIs(t, err, ErrInvalidRules)

	custom, err := ParseRules([]byte("component_name: App\nrender_func: mount\n"))
	require.NoError(t, err)
	p, err := New(custom)
	require.NoError(t, err)
	assert.Equal(t, "function App() { return null; }\n\nmount(<App />);", p.Normalize("export default function App() { return null; }", false))
}

// classTokens splits every quoted class list into tokens.
func classTokens(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '"' || r == '<' || r == '>' || r == '='
	})
	return fields
}

// hasImportLine reports whether any line of text is an import line.
func hasImportLine(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if isImportLine(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}
