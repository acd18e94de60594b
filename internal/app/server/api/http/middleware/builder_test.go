package middleware

import (
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
)

func TestContainer(t *testing.T) {
	var order []string
	mw := func(name string) func(huma.Context, func(huma.Context)) {
		return func(ctx huma.Context, next func(huma.Context)) {
			order = append(order, name)
			next(ctx)
		}
	}

	c := NewContainer()
	c.Add(mw("auth"), mw("logger"))

	got := c.GetAllAndClear()
	assert.Len(t, got, 2)
	assert.Empty(t, c.GetAllAndClear())

	got.Handler(func(huma.Context) {})(nil)
	assert.Equal(t, []string{"auth", "logger"}, order)
}
