// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultScope(t *testing.T) {
	s := DefaultScope()
	assert.Same(t, s, DefaultScope())

	assert.True(t, s.Has("React"))
	assert.True(t, s.Has("render"))
	assert.True(t, s.Has("React.useState"))
	assert.False(t, s.Has("useState"))

	c, ok := s.Lookup("React.useEffect")
	assert.True(t, ok)
	assert.Equal(t, KindHook, c.Kind)

	names := s.Names()
	assert.Equal(t, "React", names[0])
	assert.Len(t, s.Capabilities(), len(names))
}

func TestPreviewScope_NoNamespace(t *testing.T) {
	s := PreviewScope("", "mount", []string{"useState"})
	assert.Equal(t, []string{"mount", "useState"}, s.Names())
	assert.Empty(t, s.Missing("mount", "useState"))
	assert.Equal(t, []string{"React"}, s.Missing("React"))
}

func TestUnresolvedHooks(t *testing.T) {
	s := DefaultScope()
	snippet := "const [a] = React.useState(0); React.useTransition(); React.useTransition(); Other.useThing();"

	assert.Equal(t, []string{"React.useTransition"}, s.UnresolvedHooks(snippet, "React"))
}

type fakeEvaluator struct{ message string }

func (f fakeEvaluator) Evaluate(_ context.Context, _ string, _ *Scope) error {
	if f.message == "" {
		return nil
	}
	return NewExecutionError(f.message)
}

func TestExecutionError_Verbatim(t *testing.T) {
	var ev Evaluator = fakeEvaluator{message: "ReferenceError: foo is not defined\n"}
	err := ev.Evaluate(context.Background(), "foo()", DefaultScope())

	var execErr *ExecutionError
	assert.True(t, errors.As(err, &execErr))
	assert.Equal(t, "ReferenceError: foo is not defined\n", execErr.Message)
	assert.Contains(t, err.Error(), "sandbox execution error")
}
