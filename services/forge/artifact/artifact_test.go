// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifact

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const componentSource = `import abc


@register("ingest")
class Ingestor(base.Component[dict], metaclass=abc.ABCMeta):
    """Reads records."""

    # configuration
    def __init__(self, cfg):
        self.cfg = cfg

    async def process(self, item):
        """Handle one item."""
        return item

    @property
    def name(self):
        return "ingest"


def helper():
    def inner():
        return 1
    return inner()
`

func TestNew_TextAndHash(t *testing.T) {
	a := New("x = 1\n")
	b := New("x = 1\n")
	c := New("x = 2\n")

	assert.Equal(t, "x = 1\n", a.Text())
	assert.Len(t, a.Hash(), 64)
	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.Equal(t, 6, a.Len())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", "x = 1\n", "x = 1\n"},
		{"python fence", "Here you go:\n```python\nx = 1\n```\nDone.", "x = 1\n"},
		{"bare fence", "```\ny = 2\n```", "y = 2\n"},
		{"first fence wins", "```py\na = 1\n```\n```py\nb = 2\n```", "a = 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestRoot_Valid(t *testing.T) {
	a := New(componentSource)
	root, err := a.Root()
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, "module", root.Type())
}

func TestRoot_SyntaxError(t *testing.T) {
	a := New("class Broken(Base):\n    def process(self:\n        return 1\n")
	root, err := a.Root()
	assert.Nil(t, root)
	require.Error(t, err)

	var se *SyntaxError
	require.True(t, errors.As(err, &se))
	assert.GreaterOrEqual(t, se.Line, 1)
	assert.NotEmpty(t, se.Message)
}

func TestRoot_InvalidUTF8(t *testing.T) {
	a := New(string([]byte{0xff, 0xfe, 'x'}))
	_, err := a.Root()

	var se *SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Message, "UTF-8")
}

func TestRoot_ConcurrentFirstUse(t *testing.T) {
	a := New(componentSource)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Root()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestClasses(t *testing.T) {
	a := New(componentSource)
	classes := a.Classes()
	require.Len(t, classes, 1)

	c := classes[0]
	assert.Equal(t, "Ingestor", c.Name)
	assert.Equal(t, []string{"base.Component[dict]"}, c.Bases)
	assert.Equal(t, []string{"register"}, c.Decorators)
	assert.Equal(t, "Reads records.", c.Docstring)
	assert.True(t, c.DerivesFrom("Component"))
	assert.True(t, c.DerivesFrom("base.Component"))
	assert.False(t, c.DerivesFrom("ABCMeta"))

	require.Len(t, c.Methods, 3)
	assert.Equal(t, "__init__", c.Methods[0].Name)
	assert.False(t, c.Methods[0].Async)
	assert.Equal(t, "process", c.Methods[1].Name)
	assert.True(t, c.Methods[1].Async)
	assert.True(t, c.Methods[1].HasDoc)
	assert.Equal(t, "Handle one item.", c.Methods[1].Docstring)
	assert.Equal(t, "name", c.Methods[2].Name)
	assert.True(t, c.Methods[2].HasDecorator("property"))
	assert.Equal(t, "Ingestor", c.Methods[2].Class)
}

func TestFunctions_IncludesNested(t *testing.T) {
	a := New(componentSource)
	var names []string
	for _, f := range a.Functions() {
		names = append(names, f.Name+":"+f.Class)
	}
	assert.Equal(t, []string{
		"__init__:Ingestor",
		"process:Ingestor",
		"name:Ingestor",
		"helper:",
		"inner:",
	}, names)
}

func TestClasses_UnparseableIsNil(t *testing.T) {
	a := New("class (:\n")
	assert.Nil(t, a.Classes())
	assert.Nil(t, a.Functions())
}

func TestBaseIdent(t *testing.T) {
	assert.Equal(t, "Base", BaseIdent("Base"))
	assert.Equal(t, "Base", BaseIdent("pkg.mod.Base"))
	assert.Equal(t, "Base", BaseIdent("Base[T]"))
	assert.Equal(t, "Base", BaseIdent(" pkg.Base[int, str] "))
}

func TestStringValue(t *testing.T) {
	assert.Equal(t, "abc", StringValue(`"abc"`))
	assert.Equal(t, "abc", StringValue(`'abc'`))
	assert.Equal(t, "a\nb", StringValue("\"\"\"a\nb\"\"\""))
	assert.Equal(t, `\d+`, StringValue(`r"\d+"`))
	assert.Equal(t, "{x}", StringValue(`f'{x}'`))
	assert.Equal(t, "", StringValue(`""`))
}
